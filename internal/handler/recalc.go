package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/visit-registry/internal/service"
)

// RecalcHandler triggers the recalculation engine on demand, either for
// one entity or for every entity with visit history.
type RecalcHandler struct {
	Recalc  *service.RecalcEngine
	Sweeper *service.Sweeper
}

func NewRecalcHandler(recalc *service.RecalcEngine, sweeper *service.Sweeper) *RecalcHandler {
	return &RecalcHandler{Recalc: recalc, Sweeper: sweeper}
}

// RunEntity replays one entity and reports the status changes made.
func (h *RecalcHandler) RunEntity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	changes, err := h.Recalc.ReplayEntity(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entity_id": id, "changes": changes})
}

// RunAll sweeps overdue sign-outs first, then replays every entity.
// Full runs can take a while, so the timeout is wider here.
func (h *RecalcHandler) RunAll(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Minute)
	defer cancel()

	closed, err := h.Sweeper.RunOnce(ctx)
	if err != nil {
		return writeError(c, err)
	}
	replayed, err := h.Recalc.RunAll(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"auto_signed_out": closed, "entities_replayed": replayed})
}
