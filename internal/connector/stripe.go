package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// weeksPerMonth normalizes weekly plan amounts to a monthly figure.
const weeksPerMonth = 52.0 / 12.0

// stripeConnector authenticates with a static API key instead of OAuth; the
// interface stays uniform by treating the key as the authorization code.
type stripeConnector struct {
	client  *http.Client
	apiBase string
}

func newStripe(client *http.Client) *stripeConnector {
	return &stripeConnector{client: client, apiBase: "https://api.stripe.com/v1"}
}

func (s *stripeConnector) Provider() string { return ProviderStripe }

// AuthURL points at the app-internal form where the user enters their key.
// There is no cross-site redirect on this path, so no CSRF state is needed,
// but the state rides along to keep the flow uniform.
func (s *stripeConnector) AuthURL(state string) string {
	return "/integrations/stripe/setup?state=" + url.QueryEscape(state)
}

// ExchangeCode validates the API key with one live balance call.
func (s *stripeConnector) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+"/balance", nil)
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+code)
	resp, err := s.client.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return TokenResponse{}, &CredentialError{Provider: ProviderStripe, Detail: "invalid API key"}
	}
	return TokenResponse{AccessToken: code, Scopes: []string{"read"}}, nil
}

func (s *stripeConnector) RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error) {
	return TokenResponse{}, ErrRefreshUnsupported
}

type stripeSubscription struct {
	Items struct {
		Data []struct {
			Price struct {
				UnitAmount int64 `json:"unit_amount"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeCharge struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Customer string `json:"customer"`
	Created  int64  `json:"created"`
}

// FetchData collects active subscription count, normalized MRR, recent
// charges, and today's subscription created/deleted event counts.
func (s *stripeConnector) FetchData(ctx context.Context, accessToken string) (ProviderData, error) {
	metrics := map[string]interface{}{
		"mrr":                     0.0,
		"active_subscriptions":    0,
		"new_subscriptions_today": 0,
		"churned_today":           0,
		"recent_charges":          []map[string]interface{}{},
	}

	var subs struct {
		Data []stripeSubscription `json:"data"`
	}
	if err := s.getJSON(ctx, accessToken, "/subscriptions?status=active&limit=100", &subs); err == nil {
		metrics["active_subscriptions"] = len(subs.Data)
		mrr := 0.0
		for _, sub := range subs.Data {
			for _, item := range sub.Items.Data {
				amount := float64(item.Price.UnitAmount) / 100
				mrr += monthlyAmount(amount, item.Price.Recurring.Interval)
			}
		}
		metrics["mrr"] = mrr
	}

	var charges struct {
		Data []stripeCharge `json:"data"`
	}
	if err := s.getJSON(ctx, accessToken, "/charges?limit=10", &charges); err == nil {
		recent := make([]map[string]interface{}, 0, len(charges.Data))
		for _, charge := range charges.Data {
			recent = append(recent, map[string]interface{}{
				"id":       charge.ID,
				"amount":   float64(charge.Amount) / 100,
				"currency": charge.Currency,
				"status":   charge.Status,
				"customer": charge.Customer,
				"created":  time.Unix(charge.Created, 0).UTC().Format(time.RFC3339),
			})
		}
		metrics["recent_charges"] = recent
	}

	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
	metrics["new_subscriptions_today"] = s.countEvents(ctx, accessToken, "customer.subscription.created", todayStart)
	metrics["churned_today"] = s.countEvents(ctx, accessToken, "customer.subscription.deleted", todayStart)

	return ProviderData{
		Provider:  ProviderStripe,
		Data:      metrics,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// monthlyAmount normalizes a plan amount to its monthly contribution.
func monthlyAmount(amount float64, interval string) float64 {
	switch interval {
	case "year":
		return amount / 12
	case "week":
		return amount * weeksPerMonth
	default:
		return amount
	}
}

func (s *stripeConnector) countEvents(ctx context.Context, accessToken, eventType string, since int64) int {
	params := url.Values{}
	params.Set("type", eventType)
	params.Set("created[gte]", strconv.FormatInt(since, 10))
	params.Set("limit", "100")
	var events struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := s.getJSON(ctx, accessToken, "/events?"+params.Encode(), &events); err != nil {
		return 0
	}
	return len(events.Data)
}

func (s *stripeConnector) getJSON(ctx context.Context, accessToken, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stripe api status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
