// Package httpserver exposes the satellite's local control surface: health,
// state inspection, and an external trigger that starts a turn without the
// wake phrase.
package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lmor152/jarvis-monorepo/internal/satellite"
)

// Controller is the part of the satellite the control surface needs.
type Controller interface {
	State() satellite.Snapshot
	ExternalTrigger() bool
}

// New creates a configured Echo server instance with the control routes.
func New(ctrl Controller) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/state", func(c echo.Context) error {
		return c.JSON(http.StatusOK, ctrl.State())
	})

	e.POST("/trigger", func(c echo.Context) error {
		if !ctrl.ExternalTrigger() {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "satellite is busy",
			})
		}
		return c.JSON(http.StatusAccepted, map[string]string{
			"status": "listening",
		})
	})

	return e
}
