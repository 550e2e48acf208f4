package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/gatehouse/visit-registry/internal/config"
)

// RequireCapability returns a middleware that enforces that the
// authenticated staff role is allowed to perform the named operation
// according to the capability table.  It assumes JWTAuth has already
// stored the role in the context under the key "role".  Requests from
// roles without the capability are aborted with 403 Forbidden.
func RequireCapability(caps config.CapabilityTable, operation string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !caps.Allows(role, operation) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
