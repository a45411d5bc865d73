package apiv1

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Pinger is anything whose backing store can be health checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthGroup struct {
	backend     Pinger
	routerGroup *echo.Group
}

func NewHealthGroup(g *echo.Group, backend Pinger) *HealthGroup {
	group := &HealthGroup{routerGroup: g, backend: backend}

	g.GET("", group.HealthCheck)

	return group
}

func (h *HealthGroup) HealthCheck(c echo.Context) error {
	err := h.backend.Ping(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("health check failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"status": "not ok",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
