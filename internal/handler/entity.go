package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/visit-registry/internal/model"
	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/service"
	"github.com/gatehouse/visit-registry/internal/visit"
)

// EntityHandler exposes entity administration: creation, status changes,
// deletion, visit history with derived statuses, and quota counters.
type EntityHandler struct {
	Entities *repository.EntityRepo
	Visits   *repository.VisitRepo
	Policies visit.PolicyTable
	Recalc   *service.RecalcEngine
	Clock    service.Clock
}

func NewEntityHandler(entities *repository.EntityRepo, visits *repository.VisitRepo,
	policies visit.PolicyTable, recalc *service.RecalcEngine, clock service.Clock) *EntityHandler {
	return &EntityHandler{Entities: entities, Visits: visits, Policies: policies, Recalc: recalc, Clock: clock}
}

type createEntityReq struct {
	EntityType   string  `json:"entity_type"`
	FullName     string  `json:"full_name"`
	Phone        string  `json:"phone"`
	Email        *string `json:"email"`
	GovernmentID *string `json:"government_id"`
	ReceiveSMS   bool    `json:"receive_sms"`
	ReceiveEmail bool    `json:"receive_email"`
}

type entityResp struct {
	ID           uint64  `json:"id"`
	EntityType   string  `json:"entity_type"`
	FullName     string  `json:"full_name"`
	Phone        string  `json:"phone"`
	Email        *string `json:"email,omitempty"`
	GovernmentID *string `json:"government_id,omitempty"`
	Status       string  `json:"status"`
}

func toEntityResp(e *model.Entity) entityResp {
	return entityResp{
		ID:           e.ID,
		EntityType:   e.Type,
		FullName:     e.FullName,
		Phone:        e.Phone,
		Email:        e.Email,
		GovernmentID: e.GovernmentID,
		Status:       e.Status,
	}
}

// Create registers an entity without a visit, for pre-enrollment.
func (h *EntityHandler) Create(c echo.Context) error {
	var req createEntityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.EntityType = strings.ToLower(strings.TrimSpace(req.EntityType))
	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.FullName == "" || req.Phone == "" || !h.Policies.Known(req.EntityType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "entity_type, full_name and phone are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	e := &model.Entity{
		Type:         req.EntityType,
		FullName:     req.FullName,
		Phone:        req.Phone,
		Email:        req.Email,
		GovernmentID: req.GovernmentID,
		Status:       model.EntityActive,
		ReceiveSMS:   req.ReceiveSMS,
		ReceiveEmail: req.ReceiveEmail,
	}
	if err := h.Entities.Create(ctx, e); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toEntityResp(e))
}

// Get returns one entity.
func (h *EntityHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	e, err := h.Entities.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toEntityResp(e))
}

type setStatusReq struct {
	Status string `json:"status"`
}

// SetStatus moves an entity between active, suspended and banned.  Bans
// and unbans only happen here; the recalculation engine never touches
// the banned state on its own.  The subsequent replay cascades the new
// state onto the entity's future visits.
func (h *EntityHandler) SetStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	to := strings.ToLower(strings.TrimSpace(req.Status))
	switch to {
	case model.EntityActive, model.EntitySuspended, model.EntityBanned:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	e, err := h.Entities.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	if e.Status != to {
		if err := h.Entities.UpdateStatus(ctx, id, e.Status, to); err != nil {
			return writeError(c, err)
		}
	}
	if _, err := h.Recalc.ReplayEntity(ctx, id); err != nil {
		return writeError(c, err)
	}
	e, err = h.Entities.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toEntityResp(e))
}

// Delete removes an entity with no visit history.
func (h *EntityHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	if err := h.Entities.Delete(ctx, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type visitResp struct {
	ID            uint64     `json:"id"`
	HostID        *uint64    `json:"host_id,omitempty"`
	VisitDate     string     `json:"visit_date"`
	Purpose       *string    `json:"purpose,omitempty"`
	Courtesy      bool       `json:"courtesy"`
	Status        string     `json:"status"`
	DisplayStatus string     `json:"display_status"`
	SignInTime    *time.Time `json:"sign_in_time,omitempty"`
	SignOutTime   *time.Time `json:"sign_out_time,omitempty"`
}

// ListVisits returns the entity's visit history with derived display
// statuses computed against the current day.  ?include_cancelled=true
// adds cancelled rows.
func (h *EntityHandler) ListVisits(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	includeCancelled := c.QueryParam("include_cancelled") == "true"

	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	if _, err := h.Entities.GetByID(ctx, id); err != nil {
		return writeError(c, err)
	}
	history, err := h.Visits.ListByEntity(ctx, id, includeCancelled)
	if err != nil {
		return writeError(c, err)
	}
	today := visit.DateOnly(h.Clock.Now())
	out := make([]visitResp, 0, len(history))
	for _, v := range history {
		out = append(out, visitResp{
			ID:            v.ID,
			HostID:        v.HostID,
			VisitDate:     v.VisitDate.Format("2006-01-02"),
			Purpose:       v.Purpose,
			Courtesy:      v.Courtesy,
			Status:        v.Status,
			DisplayStatus: visit.DisplayStatus(v, today),
			SignInTime:    v.SignInTime,
			SignOutTime:   v.SignOutTime,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"entity_id": id, "visits": out})
}

type countersResp struct {
	EntityID     uint64 `json:"entity_id"`
	Month        string `json:"month"`
	Year         string `json:"year"`
	MonthUsed    int    `json:"month_used"`
	MonthLimit   int    `json:"month_limit"` // 0 means unlimited
	YearUsed     int    `json:"year_used"`
	YearLimit    int    `json:"year_limit"` // 0 means unlimited
	EntityStatus string `json:"entity_status"`
}

// Counters reports the entity's quota consumption for the current month
// and year, computed from the stored history.
func (h *EntityHandler) Counters(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	e, err := h.Entities.GetByID(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	history, err := h.Visits.ListByEntity(ctx, id, false)
	if err != nil {
		return writeError(c, err)
	}
	now := h.Clock.Now()
	pol := h.Policies.For(e.Type)
	counts := visit.CountForDate(history, pol, now, visit.DateOnly(now))
	return c.JSON(http.StatusOK, countersResp{
		EntityID:     e.ID,
		Month:        visit.MonthKey(now),
		Year:         visit.YearKey(now),
		MonthUsed:    counts.Month,
		MonthLimit:   pol.MonthlyLimit,
		YearUsed:     counts.Year,
		YearLimit:    pol.YearlyLimit,
		EntityStatus: e.Status,
	})
}
