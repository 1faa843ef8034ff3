package briefing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/orbit-hq/orbit/internal/connector"
	"github.com/orbit-hq/orbit/internal/store"
)

func TestParseReplyWellFormed(t *testing.T) {
	raw := "Here is your briefing:\n{\"priorities\":[\"A\",\"B\"],\"summary\":\"all good\",\"alerts\":[]}\nHave a great day."
	content := parseReply(raw)
	if content["summary"] != "all good" {
		t.Fatalf("summary = %v", content["summary"])
	}
	priorities := stringList(content["priorities"])
	if len(priorities) != 2 || priorities[0] != "A" {
		t.Fatalf("priorities = %v", priorities)
	}
}

func TestParseReplyGarbageFallsBack(t *testing.T) {
	raw := "I could not produce JSON today, sorry."
	content := parseReply(raw)
	if content["summary"] != raw {
		t.Fatalf("summary should carry raw reply, got %v", content["summary"])
	}
	priorities := stringList(content["priorities"])
	if len(priorities) != 3 {
		t.Fatalf("expected 3 fallback priorities, got %v", priorities)
	}
	alerts := stringList(content["alerts"])
	if len(alerts) != 0 {
		t.Fatalf("alerts = %v", alerts)
	}
}

func TestParseReplyBrokenJSONFallsBack(t *testing.T) {
	content := parseReply(`prefix {"priorities": [unterminated`)
	if stringList(content["priorities"])[0] != fallbackPriorities[0] {
		t.Fatalf("expected fallback priorities, got %v", content["priorities"])
	}
}

type stubConnector struct {
	provider string
	data     map[string]interface{}
	err      error
}

func (s *stubConnector) Provider() string          { return s.provider }
func (s *stubConnector) AuthURL(state string) string { return "" }
func (s *stubConnector) ExchangeCode(ctx context.Context, code string) (connector.TokenResponse, error) {
	return connector.TokenResponse{}, nil
}
func (s *stubConnector) RefreshToken(ctx context.Context, refreshToken string) (connector.TokenResponse, error) {
	return connector.TokenResponse{}, connector.ErrRefreshUnsupported
}
func (s *stubConnector) FetchData(ctx context.Context, accessToken string) (connector.ProviderData, error) {
	if s.err != nil {
		return connector.ProviderData{}, s.err
	}
	return connector.ProviderData{Provider: s.provider, Data: s.data, FetchedAt: time.Now()}, nil
}

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func integrationRows(provs ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "user_id", "provider", "access_token", "refresh_token", "token_expires_at", "scopes", "is_active", "created_at", "updated_at"})
	now := time.Now()
	for i, p := range provs {
		rows.AddRow("int-"+p, "user-1", p, "tok-"+p, nil, nil, "{}", true, now.Add(time.Duration(i)*time.Second), now)
	}
	return rows
}

func TestAggregatePartialFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM integrations WHERE user_id=\$1 AND is_active=TRUE`).
		WithArgs("user-1").
		WillReturnRows(integrationRows("google", "slack", "notion"))

	connectors := map[string]connector.Connector{
		"google": &stubConnector{provider: "google", data: map[string]interface{}{
			"calendar_events": []map[string]interface{}{{"summary": "Standup"}},
			"emails":          []map[string]interface{}{{"from": "a@x.com"}},
		}},
		"slack":  &stubConnector{provider: "slack", err: errors.New("slack down")},
		"notion": &stubConnector{provider: "notion", data: map[string]interface{}{
			"tasks": []map[string]interface{}{{"title": "Ship it"}},
		}},
	}

	svc := &Service{
		Store: &store.Store{DB: db},
		NewConnector: func(tag string) (connector.Connector, error) {
			return connectors[tag], nil
		},
	}

	bundle, err := svc.Aggregate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(bundle.CalendarEvents) != 1 || len(bundle.Emails) != 1 {
		t.Fatalf("google slots not filled: %+v", bundle)
	}
	if len(bundle.SlackMessages) != 0 {
		t.Fatalf("failed provider should yield empty slot, got %v", bundle.SlackMessages)
	}
	if len(bundle.NotionTasks) != 1 {
		t.Fatalf("notion tasks = %v", bundle.NotionTasks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGeneratePersistsBriefing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM integrations WHERE user_id=\$1 AND is_active=TRUE`).
		WithArgs("user-1").
		WillReturnRows(integrationRows())

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO briefings`).
		WithArgs("user-1", sqlmock.AnyArg(), "quiet day ahead", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "content", "summary", "priorities", "alerts", "raw_data", "generated_at", "read_at"}).
			AddRow("b-1", "user-1", []byte(`{}`), "quiet day ahead", []byte(`["Rest"]`), []byte(`[]`), []byte(`{}`), now, nil))

	svc := &Service{
		Store: &store.Store{DB: db},
		LLM:   &stubLLM{reply: `{"priorities":["Rest"],"summary":"quiet day ahead","alerts":[]}`},
		NewConnector: func(tag string) (connector.Connector, error) {
			t.Fatalf("no connector expected for tag %s", tag)
			return nil, nil
		},
	}

	b, err := svc.Generate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if b.ID != "b-1" || b.Summary != "quiet day ahead" {
		t.Fatalf("unexpected briefing: %+v", b)
	}
	var priorities []string
	if err := json.Unmarshal(b.Priorities, &priorities); err != nil || priorities[0] != "Rest" {
		t.Fatalf("priorities = %s", b.Priorities)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGenerateModelFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM integrations WHERE user_id=\$1 AND is_active=TRUE`).
		WithArgs("user-1").
		WillReturnRows(integrationRows())

	svc := &Service{
		Store: &store.Store{DB: db},
		LLM:   &stubLLM{err: errors.New("model unavailable")},
	}

	_, err = svc.Generate(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
}
