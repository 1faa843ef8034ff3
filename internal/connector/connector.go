// Package connector implements the four-operation capability set shared by
// every third-party provider: building an authorization URL, exchanging a
// code (or API key) for tokens, refreshing tokens, and fetching the
// provider-specific slice of briefing data.
package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/orbit-hq/orbit/config"
)

// Provider tags, one per supported integration.
const (
	ProviderGoogle = "google"
	ProviderSlack  = "slack"
	ProviderNotion = "notion"
	ProviderStripe = "stripe"
)

// ErrRefreshUnsupported is returned by providers whose tokens never expire.
// Callers distinguish it from provider rejections to surface a specific
// message.
var ErrRefreshUnsupported = errors.New("provider does not support token refresh")

// CredentialError reports a provider rejecting an exchange or refresh,
// carrying the provider's own error detail.
type CredentialError struct {
	Provider string
	Detail   string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s credential rejected: %s", e.Provider, e.Detail)
}

// TokenResponse is the normalized output of every authorization exchange.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Scopes       []string
}

// ProviderData carries one provider's fetched contribution to a briefing.
type ProviderData struct {
	Provider  string
	Data      map[string]interface{}
	FetchedAt time.Time
}

// Connector is implemented once per provider.
type Connector interface {
	Provider() string
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenResponse, error)
	FetchData(ctx context.Context, accessToken string) (ProviderData, error)
}

// New builds the connector for a provider tag.
func New(provider string, cfg *config.Config) (Connector, error) {
	client := &http.Client{Timeout: cfg.Providers.FetchTimeout}
	switch provider {
	case ProviderGoogle:
		return newGoogle(cfg.Providers.Google, client), nil
	case ProviderSlack:
		return newSlack(cfg.Providers.Slack, client), nil
	case ProviderNotion:
		return newNotion(cfg.Providers.Notion, client), nil
	case ProviderStripe:
		return newStripe(client), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// Known reports whether a provider tag has a connector.
func Known(provider string) bool {
	switch provider {
	case ProviderGoogle, ProviderSlack, ProviderNotion, ProviderStripe:
		return true
	}
	return false
}

// Providers lists all supported provider tags.
func Providers() []string {
	return []string{ProviderGoogle, ProviderSlack, ProviderNotion, ProviderStripe}
}
