package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/service"
)

// reqTimeout bounds every handler's downstream work the same way.
const reqTimeout = 5 * time.Second

// writeError maps service and repository errors onto HTTP responses.
// Validation failures carry every reason at once; conflicts and blocks
// carry a single message.
func writeError(c echo.Context, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, echo.Map{"errors": ve.Reasons})
	}
	var be *service.EntityBlockedError
	if errors.As(err, &be) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": be.Error()})
	}
	var sc *service.StateConflictError
	if errors.As(err, &sc) {
		return c.JSON(http.StatusConflict, echo.Map{"error": sc.Reason})
	}
	switch {
	case errors.Is(err, repository.ErrDuplicateVisit):
		return c.JSON(http.StatusConflict, echo.Map{"error": "visit already registered for this day"})
	case errors.Is(err, repository.ErrEntityHasVisits):
		return c.JSON(http.StatusConflict, echo.Map{"error": "entity has registered visits"})
	case errors.Is(err, repository.ErrEntityNotFound),
		errors.Is(err, repository.ErrVisitNotFound),
		errors.Is(err, repository.ErrStaffNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrStaleStatus):
		return c.JSON(http.StatusConflict, echo.Map{"error": "status changed concurrently"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// pathID parses a numeric path parameter, rejecting zero.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
