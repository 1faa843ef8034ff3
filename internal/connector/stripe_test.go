package connector

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMonthlyAmount(t *testing.T) {
	cases := []struct {
		amount   float64
		interval string
		want     float64
	}{
		{1200, "year", 100},
		{100, "month", 100},
		{100, "week", 433.3333},
		{50, "day", 50},
	}
	for _, c := range cases {
		got := monthlyAmount(c.amount, c.interval)
		if math.Abs(got-c.want) > 0.01 {
			t.Errorf("monthlyAmount(%v, %q) = %v, want %v", c.amount, c.interval, got, c.want)
		}
	}
}

func TestStripeExchangeCodeValidatesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/balance" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"available":[]}`))
	}))
	defer srv.Close()

	conn := &stripeConnector{client: srv.Client(), apiBase: srv.URL}

	tok, err := conn.ExchangeCode(context.Background(), "sk_test_good")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if tok.AccessToken != "sk_test_good" {
		t.Fatalf("expected key stored as access token, got %q", tok.AccessToken)
	}

	_, err = conn.ExchangeCode(context.Background(), "sk_test_bad")
	var credErr *CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
}

func TestStripeRefreshUnsupported(t *testing.T) {
	conn := newStripe(http.DefaultClient)
	_, err := conn.RefreshToken(context.Background(), "anything")
	if !errors.Is(err, ErrRefreshUnsupported) {
		t.Fatalf("expected ErrRefreshUnsupported, got %v", err)
	}
}

func TestStripeFetchData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/subscriptions"):
			w.Write([]byte(`{"data":[
				{"items":{"data":[{"price":{"unit_amount":120000,"recurring":{"interval":"year"}}}]}},
				{"items":{"data":[{"price":{"unit_amount":5000,"recurring":{"interval":"month"}}}]}}
			]}`))
		case strings.HasPrefix(r.URL.Path, "/charges"):
			w.Write([]byte(`{"data":[{"id":"ch_1","amount":2500,"currency":"usd","status":"succeeded","customer":"cus_1","created":1700000000}]}`))
		case strings.HasPrefix(r.URL.Path, "/events"):
			if r.URL.Query().Get("type") == "customer.subscription.created" {
				w.Write([]byte(`{"data":[{},{}]}`))
			} else {
				w.Write([]byte(`{"data":[{}]}`))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	conn := &stripeConnector{client: srv.Client(), apiBase: srv.URL}
	data, err := conn.FetchData(context.Background(), "sk_test")
	if err != nil {
		t.Fatalf("FetchData: %v", err)
	}
	if data.Provider != ProviderStripe {
		t.Fatalf("provider = %q", data.Provider)
	}
	mrr := data.Data["mrr"].(float64)
	// 1200/year -> 100, 50/month -> 50
	if math.Abs(mrr-150) > 0.01 {
		t.Fatalf("mrr = %v, want 150", mrr)
	}
	if got := data.Data["active_subscriptions"].(int); got != 2 {
		t.Fatalf("active_subscriptions = %d", got)
	}
	if got := data.Data["new_subscriptions_today"].(int); got != 2 {
		t.Fatalf("new_subscriptions_today = %d", got)
	}
	if got := data.Data["churned_today"].(int); got != 1 {
		t.Fatalf("churned_today = %d", got)
	}
	charges := data.Data["recent_charges"].([]map[string]interface{})
	if len(charges) != 1 || charges[0]["amount"].(float64) != 25 {
		t.Fatalf("unexpected charges: %v", charges)
	}
}
