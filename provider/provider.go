package provider

import (
	"context"
	"errors"

	anthropic_provider "github.com/orbit-hq/orbit/provider/anthropic"

	"github.com/orbit-hq/orbit/config"
)

// Client represents different LLM providers
type Client string

const (
	Anthropic Client = "anthropic"
	OpenAI    Client = "openai"
)

// Provider is the interface all LLM implementations must satisfy.
type Provider interface {
	// Complete sends one prompt and returns the raw text reply.
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewProvider creates a new LLM client based on the provided configuration.
func NewProvider(client Client, cfg config.LLMConfig) (Provider, error) {
	switch client {
	case Anthropic:
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return anthropic_provider.NewClient(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Timeout), nil
	case OpenAI:
		return nil, errors.New("openai client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}
