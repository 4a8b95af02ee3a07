// Package router registers the HTTP routes of the gate API.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/gate-presence/internal/handler"
	"github.com/iliyamo/gate-presence/internal/middleware"
)

// Routes bundles the handlers and route-level middleware.
type Routes struct {
	Health  *handler.HealthHandler
	Scans   *handler.ScanHandler
	Tokens  *handler.TokenHandler
	Tickets *handler.TicketHandler
	Metrics http.Handler

	// StaffSecret signs staff bearer tokens.  Staff routes reject every
	// request while it is empty.
	StaffSecret string
	// RateLimit guards the gate-facing endpoints.
	RateLimit echo.MiddlewareFunc
	// KeyCache caches the public key set.
	KeyCache echo.MiddlewareFunc
}

func passthrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// Register mounts every route on e.
func Register(e *echo.Echo, r Routes) {
	if r.RateLimit == nil {
		r.RateLimit = passthrough
	}
	if r.KeyCache == nil {
		r.KeyCache = passthrough
	}
	auth := middleware.StaffAuth(r.StaffSecret)
	staff := []echo.MiddlewareFunc{auth, middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin)}
	admin := []echo.MiddlewareFunc{auth, middleware.RequireRole(middleware.RoleAdmin)}

	e.GET("/healthz", r.Health.Health)
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}

	// Guest devices fetch tokens; scanners verify offline with the key set.
	e.POST("/v1/tokens", r.Tokens.Issue, r.RateLimit)
	e.GET("/v1/tokens/keys", r.Tokens.Keys, r.KeyCache)

	gate := e.Group("/v1/scan", append(staff, r.RateLimit)...)
	gate.POST("", r.Scans.Scan)
	gate.POST("/token", r.Scans.ScanByToken)

	t := e.Group("/v1/tickets/:id")
	t.GET("/scans", r.Tickets.Scans, staff...)
	t.GET("/guard", r.Tickets.GuardState, staff...)
	t.POST("/unblock", r.Tickets.Unblock, admin...)
}
