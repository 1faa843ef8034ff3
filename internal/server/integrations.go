package server

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/orbit-hq/orbit/config"
	"github.com/orbit-hq/orbit/internal/connector"
	"github.com/orbit-hq/orbit/internal/runtime"
	"github.com/orbit-hq/orbit/internal/store"
)

type IntegrationsHandler struct {
	Store      *store.Store
	States     StateStore
	Cfg        *config.Config
	Logger     *log.Logger
	SuccessURL string
	StateTTL   time.Duration

	// NewConnector is overridable in tests; nil means connector.New.
	NewConnector func(providerTag string) (connector.Connector, error)
}

func (h *IntegrationsHandler) Register(g *echo.Group, secret []byte) {
	auth := runtime.EchoAuthMiddleware(secret)
	g.GET("", h.list, auth)
	g.GET("/:provider/auth", h.authURL, auth)
	// callback is reached by provider redirect, so it carries no session
	g.GET("/:provider/callback", h.callback)
	g.DELETE("/:id", h.disconnect, auth)
	g.POST("/:id/refresh", h.refresh, auth)
}

func (h *IntegrationsHandler) connector(providerTag string) (connector.Connector, error) {
	if h.NewConnector != nil {
		return h.NewConnector(providerTag)
	}
	return connector.New(providerTag, h.Cfg)
}

func (h *IntegrationsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	items, err := h.Store.ListActiveIntegrations(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]IntegrationResponse, 0, len(items))
	for _, in := range items {
		out = append(out, integrationResponse(in))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *IntegrationsHandler) authURL(c echo.Context) error {
	userID := c.Get("user_id").(string)
	providerTag := c.Param("provider")
	if !connector.Known(providerTag) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown provider: "+providerTag)
	}
	conn, err := h.connector(providerTag)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	state, err := newStateToken()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.States.Put(c.Request().Context(), state, userID, h.StateTTL); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, OAuthURLResponse{AuthURL: conn.AuthURL(state), State: state})
}

func (h *IntegrationsHandler) callback(c echo.Context) error {
	providerTag := c.Param("provider")
	if !connector.Known(providerTag) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown provider: "+providerTag)
	}
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code and state required")
	}

	userID, err := h.States.Consume(c.Request().Context(), state)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid or expired state")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	conn, err := h.connector(providerTag)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	tokens, err := conn.ExchangeCode(c.Request().Context(), code)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to exchange code: "+err.Error())
	}

	if _, err := h.Store.UpsertIntegration(c.Request().Context(), userID, providerTag,
		tokens.AccessToken, optional(tokens.RefreshToken), tokens.ExpiresAt, tokens.Scopes); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Redirect(http.StatusFound, h.SuccessURL)
}

func (h *IntegrationsHandler) disconnect(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	// a malformed id would fail the uuid cast in Postgres with a 500
	if uuid.Validate(id) != nil {
		return echo.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	if err := h.Store.DeactivateIntegration(c.Request().Context(), id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "integration not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *IntegrationsHandler) refresh(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		return echo.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	in, err := h.Store.GetIntegration(c.Request().Context(), id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "integration not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if in.RefreshToken == nil || *in.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no refresh token available")
	}

	conn, err := h.connector(in.Provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	tokens, err := conn.RefreshToken(c.Request().Context(), *in.RefreshToken)
	if err != nil {
		if errors.Is(err, connector.ErrRefreshUnsupported) {
			return echo.NewHTTPError(http.StatusBadRequest, "this provider does not support token refresh")
		}
		var credErr *connector.CredentialError
		if errors.As(err, &credErr) {
			return echo.NewHTTPError(http.StatusBadGateway, "failed to refresh token: "+credErr.Detail)
		}
		return echo.NewHTTPError(http.StatusBadGateway, "failed to refresh token: "+err.Error())
	}

	// providers that rotate refresh tokens return a new one; others omit it
	newRefresh := optional(tokens.RefreshToken)
	if newRefresh == nil {
		newRefresh = in.RefreshToken
	}
	updated, err := h.Store.UpdateIntegrationToken(c.Request().Context(), id, userID,
		tokens.AccessToken, newRefresh, tokens.ExpiresAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, integrationResponse(updated))
}

func newStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
