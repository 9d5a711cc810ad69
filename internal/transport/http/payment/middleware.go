package payment

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Trigger starts a background pass without blocking the caller.
type Trigger interface {
	Trigger(ctx context.Context)
}

// skippedPrefixes never trigger an opportunistic pass: the webhook and admin
// paths reconcile explicitly, the rest is infrastructure.
var skippedPrefixes = []string{"/payments/", "/admin/", "/health", "/metrics"}

// PollerSkipper reports requests that must not trigger an opportunistic sync.
func PollerSkipper(c echo.Context) bool {
	path := c.Request().URL.Path
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// OpportunisticSync fires the poller on ordinary page traffic, after the
// request has been served.
func OpportunisticSync(trigger Trigger, skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = PollerSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if !skipper(c) {
				trigger.Trigger(c.Request().Context())
			}
			return err
		}
	}
}
