package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/orbit-hq/orbit/internal/runtime"
	"github.com/orbit-hq/orbit/internal/store"
)

type AuthHandler struct {
	Store      *store.Store
	Secret     []byte
	Env        string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/register", a.register)
	g.POST("/login", a.login)
	g.POST("/refresh", a.refresh)
	g.POST("/logout", a.logout)
	g.GET("/me", a.me, runtime.EchoAuthMiddleware(a.Secret))
}

func (a *AuthHandler) register(c echo.Context) error {
	var req AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.FullName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and full_name required")
	}
	if len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	user, err := a.Store.CreateUser(c.Request().Context(), req.Email, string(hash), req.FullName)
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			return echo.NewHTTPError(http.StatusConflict, "email already registered")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, userResponse(user))
}

func (a *AuthHandler) login(c echo.Context) error {
	var req AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	user, err := a.Store.GetUserByEmail(c.Request().Context(), req.Email)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if !user.IsActive {
		return echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	}
	pair, err := a.tokenPair(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	a.setAuthCookie(c, pair.AccessToken)
	return c.JSON(http.StatusOK, pair)
}

func (a *AuthHandler) refresh(c echo.Context) error {
	var req AuthRefreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub, err := runtime.ParseJWT(req.RefreshToken, a.Secret, runtime.TokenTypeRefresh)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired refresh token")
	}
	user, err := a.Store.GetUserByID(c.Request().Context(), sub)
	if err != nil || !user.IsActive {
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found or inactive")
	}
	pair, err := a.tokenPair(user.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	a.setAuthCookie(c, pair.AccessToken)
	return c.JSON(http.StatusOK, pair)
}

func (a *AuthHandler) me(c echo.Context) error {
	userID := c.Get("user_id").(string)
	user, err := a.Store.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "user not found")
	}
	return c.JSON(http.StatusOK, userResponse(user))
}

func (a *AuthHandler) logout(c echo.Context) error {
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = ""
	cookie.Path = "/"
	cookie.MaxAge = -1
	c.SetCookie(cookie)
	return c.NoContent(http.StatusOK)
}

func (a *AuthHandler) tokenPair(userID string) (TokenPairResponse, error) {
	access, err := runtime.SignJWT(userID, a.Secret, runtime.TokenTypeAccess, a.AccessTTL)
	if err != nil {
		return TokenPairResponse{}, err
	}
	refresh, err := runtime.SignJWT(userID, a.Secret, runtime.TokenTypeRefresh, a.RefreshTTL)
	if err != nil {
		return TokenPairResponse{}, err
	}
	return TokenPairResponse{AccessToken: access, RefreshToken: refresh}, nil
}

func (a *AuthHandler) setAuthCookie(c echo.Context, token string) {
	cookie := new(http.Cookie)
	cookie.Name = "auth"
	cookie.Value = token
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	if a.Env == "prod" {
		cookie.Secure = true
	}
	c.SetCookie(cookie)
}
