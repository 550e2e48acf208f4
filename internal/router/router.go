package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/gatehouse/visit-registry/internal/config"
	"github.com/gatehouse/visit-registry/internal/handler"
	"github.com/gatehouse/visit-registry/internal/middleware"
)

// Handlers bundles every handler the API mounts.
type Handlers struct {
	Auth       *handler.AuthHandler
	Visits     *handler.VisitHandler
	Attendance *handler.AttendanceHandler
	Entities   *handler.EntityHandler
	Recalc     *handler.RecalcHandler
}

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check
// and the login endpoint.
func RegisterRoutes(e *echo.Echo, h Handlers) {
	// Health check for load balancers and monitoring.
	e.GET("/healthz", handler.Health)
	e.POST("/v1/auth/login", h.Auth.Login)
}

// RegisterProtected registers every staff-scoped endpoint under /v1.
// All routes require a valid JWT; individual routes additionally require
// the matching capability for the token's role.
func RegisterProtected(e *echo.Echo, h Handlers, caps config.CapabilityTable, jwtSecret string) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.GET("/me", h.Auth.Me)

	// ---- Visits ----
	g.POST("/visits", h.Visits.Register, middleware.RequireCapability(caps, "register"))
	g.POST("/visits/:id/cancel", h.Visits.Cancel, middleware.RequireCapability(caps, "cancel"))
	g.POST("/visits/:id/signin", h.Attendance.SignIn, middleware.RequireCapability(caps, "signin"))
	g.POST("/visits/:id/signout", h.Attendance.SignOut, middleware.RequireCapability(caps, "signout"))

	// ---- Entities ----
	g.POST("/entities", h.Entities.Create, middleware.RequireCapability(caps, "admin-entity"))
	g.GET("/entities/:id", h.Entities.Get, middleware.RequireCapability(caps, "counters"))
	g.PATCH("/entities/:id/status", h.Entities.SetStatus, middleware.RequireCapability(caps, "admin-entity"))
	g.DELETE("/entities/:id", h.Entities.Delete, middleware.RequireCapability(caps, "admin-entity"))
	g.GET("/entities/:id/visits", h.Entities.ListVisits, middleware.RequireCapability(caps, "counters"))
	g.GET("/entities/:id/counters", h.Entities.Counters, middleware.RequireCapability(caps, "counters"))

	// ---- Recalculation ----
	g.POST("/recalc", h.Recalc.RunAll, middleware.RequireCapability(caps, "recalc"))
	g.POST("/entities/:id/recalc", h.Recalc.RunEntity, middleware.RequireCapability(caps, "recalc"))
}
