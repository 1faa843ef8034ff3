package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/orbit-hq/orbit/config"
	"github.com/orbit-hq/orbit/internal/briefing"
	"github.com/orbit-hq/orbit/internal/store"
	"github.com/orbit-hq/orbit/provider"
)

func Run(cfg *config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}
	if err := cfg.LLM.Validate(); err != nil {
		return err
	}

	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Printf("migrate: %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Databases.Redis.Addr(),
		Password: cfg.Databases.Redis.Pass,
		DB:       cfg.Databases.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
	}

	llm, err := provider.NewProvider(provider.Anthropic, cfg.LLM)
	if err != nil {
		return err
	}

	svc := &briefing.Service{
		Store:  st,
		LLM:    llm,
		Cfg:    cfg,
		Logger: log.New(log.Writer(), "[BRIEFING] ", log.LstdFlags),
	}

	api := e.Group("/api")

	ah := &AuthHandler{
		Store:      st,
		Secret:     []byte(secret),
		Env:        cfg.General.Env,
		AccessTTL:  cfg.General.AccessTokenTTL,
		RefreshTTL: cfg.General.RefreshTokenTTL,
	}
	ah.Register(api.Group("/auth"))

	uh := &UsersHandler{Store: st}
	uh.Register(api.Group("/users"), ah.Secret)

	ih := &IntegrationsHandler{
		Store:      st,
		States:     &RedisStateStore{Rdb: rdb},
		Cfg:        cfg,
		Logger:     log.New(log.Writer(), "[OAUTH] ", log.LstdFlags),
		SuccessURL: cfg.General.SuccessURL,
		StateTTL:   cfg.Providers.StateTTL,
	}
	ih.Register(api.Group("/integrations"), ah.Secret)

	bh := &BriefingsHandler{Store: st, Service: svc}
	bh.Register(api.Group("/briefings"), ah.Secret)

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":8080"
	}
	if addr[0] != ':' {
		addr = ":" + addr
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
