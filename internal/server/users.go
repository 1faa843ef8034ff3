package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/orbit-hq/orbit/internal/runtime"
	"github.com/orbit-hq/orbit/internal/store"
)

type UsersHandler struct {
	Store *store.Store
}

func (h *UsersHandler) Register(g *echo.Group, secret []byte) {
	g.Use(runtime.EchoAuthMiddleware(secret))
	g.GET("/me", h.get)
	g.PATCH("/me", h.update)
	g.DELETE("/me", h.deactivate)
}

func (h *UsersHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	user, err := h.Store.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.JSON(http.StatusOK, userResponse(user))
}

func (h *UsersHandler) update(c echo.Context) error {
	userID := c.Get("user_id").(string)
	var req UpdateUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.BriefingTime != nil {
		if _, err := time.Parse("15:04", *req.BriefingTime); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "briefing_time must be HH:MM")
		}
	}
	user, err := h.Store.UpdateUser(c.Request().Context(), userID, req.FullName, req.Timezone, req.BriefingTime)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, userResponse(user))
}

func (h *UsersHandler) deactivate(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeactivateUser(c.Request().Context(), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
