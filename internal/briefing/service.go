// Package briefing aggregates data from a user's connected providers and
// turns it into a persisted daily briefing via one model call.
package briefing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/orbit-hq/orbit/config"
	"github.com/orbit-hq/orbit/internal/connector"
	"github.com/orbit-hq/orbit/internal/store"
	"github.com/orbit-hq/orbit/provider"
)

// fallbackPriorities is used when the model reply cannot be parsed as JSON.
var fallbackPriorities = []string{
	"Review and respond to messages",
	"Attend scheduled meetings",
	"Complete pending tasks",
}

// Service generates and aggregates briefings.
type Service struct {
	Store  *store.Store
	LLM    provider.Provider
	Cfg    *config.Config
	Logger *log.Logger

	// NewConnector builds the connector for a provider tag; overridable in
	// tests. Nil means connector.New with the service config.
	NewConnector func(providerTag string) (connector.Connector, error)
}

func (s *Service) connector(providerTag string) (connector.Connector, error) {
	if s.NewConnector != nil {
		return s.NewConnector(providerTag)
	}
	return connector.New(providerTag, s.Cfg)
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Aggregate pulls data from every active integration the user holds. A
// failing provider contributes nothing; the bundle itself never fails on a
// provider error.
func (s *Service) Aggregate(ctx context.Context, userID string) (Bundle, error) {
	bundle := NewBundle()

	integrations, err := s.Store.ListActiveIntegrations(ctx, userID)
	if err != nil {
		return bundle, err
	}

	for _, in := range integrations {
		if !connector.Known(in.Provider) {
			continue
		}
		conn, err := s.connector(in.Provider)
		if err != nil {
			s.logf("connector %s: %v", in.Provider, err)
			continue
		}
		data, err := conn.FetchData(ctx, in.AccessToken)
		if err != nil {
			s.logf("fetch %s: %v", in.Provider, err)
			fetchFailures.WithLabelValues(in.Provider).Inc()
			continue
		}
		switch in.Provider {
		case connector.ProviderGoogle:
			bundle.CalendarEvents = listSlot(data.Data, "calendar_events")
			bundle.Emails = listSlot(data.Data, "emails")
		case connector.ProviderSlack:
			bundle.SlackMessages = listSlot(data.Data, "messages")
		case connector.ProviderNotion:
			bundle.NotionTasks = listSlot(data.Data, "tasks")
		case connector.ProviderStripe:
			bundle.StripeMetrics = data.Data
		}
	}
	return bundle, nil
}

// Generate aggregates, invokes the model once, parses its structured reply
// and persists the result. Only the model invocation itself failing surfaces
// as an error; unparseable output degrades to fallback content.
func (s *Service) Generate(ctx context.Context, userID string) (store.Briefing, error) {
	bundle, err := s.Aggregate(ctx, userID)
	if err != nil {
		generations.WithLabelValues("error").Inc()
		return store.Briefing{}, err
	}

	prompt := renderPrompt(bundle)
	reply, err := s.LLM.Complete(ctx, prompt)
	if err != nil {
		generations.WithLabelValues("error").Inc()
		return store.Briefing{}, fmt.Errorf("model invocation: %w", err)
	}

	content := parseReply(reply)

	contentJSON, err := json.Marshal(content)
	if err != nil {
		generations.WithLabelValues("error").Inc()
		return store.Briefing{}, err
	}
	prioritiesJSON, _ := json.Marshal(stringList(content["priorities"]))
	alertsJSON, _ := json.Marshal(stringList(content["alerts"]))
	rawJSON, err := json.Marshal(bundle)
	if err != nil {
		generations.WithLabelValues("error").Inc()
		return store.Briefing{}, err
	}
	summary, _ := content["summary"].(string)

	b, err := s.Store.CreateBriefing(ctx, userID, contentJSON, summary, prioritiesJSON, alertsJSON, rawJSON)
	if err != nil {
		generations.WithLabelValues("error").Inc()
		return store.Briefing{}, err
	}
	generations.WithLabelValues("ok").Inc()
	return b, nil
}

// parseReply decodes the span between the first '{' and the last '}' as JSON.
// Any failure yields canned priorities with the raw reply as the summary, so
// generation never fails on malformed model output.
func parseReply(raw string) map[string]interface{} {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err == nil {
			return parsed
		}
	}
	return map[string]interface{}{
		"priorities": fallbackPriorities,
		"summary":    raw,
		"alerts":     []string{},
	}
}

func stringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func listSlot(data map[string]interface{}, key string) []map[string]interface{} {
	switch v := data[key].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return []map[string]interface{}{}
}
