package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	database bool
}

// New creates the base handler. database reports whether storage is
// connected; /health reflects it without failing.
func New(database bool) *Handler {
	return &Handler{database: database}
}

// Health returns application health status
// @Summary Health check
// @Description Returns the health status of the application
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Health(c echo.Context) error {
	db := "connected"
	if !h.database {
		db = "unavailable"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"database": db,
	})
}
