package server

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/orbit-hq/orbit/internal/briefing"
	"github.com/orbit-hq/orbit/internal/runtime"
	"github.com/orbit-hq/orbit/internal/store"
)

type BriefingsHandler struct {
	Store   *store.Store
	Service *briefing.Service
}

func (h *BriefingsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("", h.list)
	g.POST("/generate", h.generate)
	g.GET("/latest", h.latest)
	g.GET("/:id", h.get)
	g.POST("/:id/read", h.markRead)
}

func (h *BriefingsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			offset = v
		}
	}
	items, err := h.Store.ListBriefings(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]BriefingSummaryResponse, 0, len(items))
	for _, b := range items {
		out = append(out, briefingSummaryResponse(b))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *BriefingsHandler) generate(c echo.Context) error {
	userID := c.Get("user_id").(string)
	b, err := h.Service.Generate(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "failed to generate briefing: "+err.Error())
	}
	return c.JSON(http.StatusCreated, briefingResponse(b))
}

func (h *BriefingsHandler) latest(c echo.Context) error {
	userID := c.Get("user_id").(string)
	b, err := h.Store.LatestBriefing(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.NoContent(http.StatusNoContent)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if b.ReadAt == nil {
		if marked, err := h.Store.MarkBriefingRead(c.Request().Context(), b.ID, userID); err == nil {
			b = marked
		}
	}
	return c.JSON(http.StatusOK, briefingResponse(b))
}

func (h *BriefingsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		return echo.NewHTTPError(http.StatusNotFound, "briefing not found")
	}
	b, err := h.Store.GetBriefing(c.Request().Context(), id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "briefing not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, briefingResponse(b))
}

func (h *BriefingsHandler) markRead(c echo.Context) error {
	userID := c.Get("user_id").(string)
	id := c.Param("id")
	if uuid.Validate(id) != nil {
		return echo.NewHTTPError(http.StatusNotFound, "briefing not found")
	}
	b, err := h.Store.MarkBriefingRead(c.Request().Context(), id, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "briefing not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, briefingResponse(b))
}
