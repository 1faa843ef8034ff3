package anthropic_provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCompleteConcatenatesTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		if req.Model != "test-model" || req.MaxTokens != 256 {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"tool_use","text":"skip"},{"type":"text","text":"world"}]}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", "test-model", 256, 5*time.Second)
	c.baseURL = srv.URL

	out, err := c.Complete(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "Hello world" {
		t.Fatalf("out = %q", out)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := NewClient("sk-bad", "test-model", 256, 5*time.Second)
	c.baseURL = srv.URL

	_, err := c.Complete(context.Background(), "say hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "authentication_error") {
		t.Fatalf("error = %v", err)
	}
}
