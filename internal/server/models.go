package server

import (
	"encoding/json"
	"time"

	"github.com/orbit-hq/orbit/internal/store"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthRegisterRequest represents the signup payload.
type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthRefreshRequest carries a refresh token.
type AuthRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenPairResponse carries a fresh access/refresh token pair.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Timezone     string    `json:"timezone"`
	BriefingTime string    `json:"briefing_time"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

func userResponse(u store.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Timezone:     u.Timezone,
		BriefingTime: u.BriefingTime,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
	}
}

// UpdateUserRequest updates profile fields; nil fields are left untouched.
type UpdateUserRequest struct {
	FullName     *string `json:"full_name"`
	Timezone     *string `json:"timezone"`
	BriefingTime *string `json:"briefing_time"`
}

// IntegrationResponse is the public view of a connected integration.
// Tokens never leave the server.
type IntegrationResponse struct {
	ID             string     `json:"id"`
	Provider       string     `json:"provider"`
	Scopes         []string   `json:"scopes"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func integrationResponse(in store.Integration) IntegrationResponse {
	scopes := in.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	return IntegrationResponse{
		ID:             in.ID,
		Provider:       in.Provider,
		Scopes:         scopes,
		TokenExpiresAt: in.TokenExpiresAt,
		IsActive:       in.IsActive,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
	}
}

// OAuthURLResponse carries the provider consent URL and its state token.
type OAuthURLResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// BriefingResponse is the full view of a generated briefing.
type BriefingResponse struct {
	ID          string          `json:"id"`
	Content     json.RawMessage `json:"content"`
	Summary     string          `json:"summary"`
	Priorities  json.RawMessage `json:"priorities"`
	Alerts      json.RawMessage `json:"alerts"`
	RawData     json.RawMessage `json:"raw_data"`
	GeneratedAt time.Time       `json:"generated_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

func briefingResponse(b store.Briefing) BriefingResponse {
	return BriefingResponse{
		ID:          b.ID,
		Content:     b.Content,
		Summary:     b.Summary,
		Priorities:  b.Priorities,
		Alerts:      b.Alerts,
		RawData:     b.RawData,
		GeneratedAt: b.GeneratedAt,
		ReadAt:      b.ReadAt,
	}
}

// BriefingSummaryResponse is the list view of a briefing.
type BriefingSummaryResponse struct {
	ID          string          `json:"id"`
	Summary     string          `json:"summary"`
	Priorities  json.RawMessage `json:"priorities"`
	GeneratedAt time.Time       `json:"generated_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}

func briefingSummaryResponse(b store.Briefing) BriefingSummaryResponse {
	return BriefingSummaryResponse{
		ID:          b.ID,
		Summary:     b.Summary,
		Priorities:  b.Priorities,
		GeneratedAt: b.GeneratedAt,
		ReadAt:      b.ReadAt,
	}
}
