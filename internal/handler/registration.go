package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/visit-registry/internal/config"
	"github.com/gatehouse/visit-registry/internal/service"
)

// VisitHandler exposes visit registration and cancellation.
type VisitHandler struct {
	Reg  *service.RegistrationService
	Caps config.CapabilityTable
}

func NewVisitHandler(reg *service.RegistrationService, caps config.CapabilityTable) *VisitHandler {
	return &VisitHandler{Reg: reg, Caps: caps}
}

type registerVisitReq struct {
	EntityType   string  `json:"entity_type"`
	FullName     string  `json:"full_name"`
	Phone        string  `json:"phone"`
	Email        *string `json:"email"`
	GovernmentID *string `json:"government_id"`
	ReceiveSMS   bool    `json:"receive_sms"`
	ReceiveEmail bool    `json:"receive_email"`
	HostID       *uint64 `json:"host_id"`
	VisitDate    string  `json:"visit_date"` // YYYY-MM-DD
	Purpose      *string `json:"purpose"`
	Courtesy     bool    `json:"courtesy"`
}

type registerVisitResp struct {
	VisitID         uint64   `json:"visit_id"`
	EntityID        uint64   `json:"entity_id"`
	EntityCreated   bool     `json:"entity_created"`
	Status          string   `json:"status"`
	CapacityPending bool     `json:"capacity_pending"`
	Reasons         []string `json:"reasons,omitempty"`
}

// Register admits a visit request.  Quota overruns still return 201; the
// degraded status and reasons are reported in the body.
func (h *VisitHandler) Register(c echo.Context) error {
	var req registerVisitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.EntityType = strings.ToLower(strings.TrimSpace(req.EntityType))

	role, _ := c.Get("role").(string)
	if !h.Caps.MayRegister(role, req.EntityType) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "role may not register this entity type"})
	}

	var date time.Time
	if req.VisitDate != "" {
		d, err := time.ParseInLocation("2006-01-02", req.VisitDate, time.UTC)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid visit_date, expected YYYY-MM-DD"})
		}
		date = d
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	res, err := h.Reg.Register(ctx, service.RegistrationInput{
		EntityType:   req.EntityType,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		Email:        req.Email,
		GovernmentID: req.GovernmentID,
		ReceiveSMS:   req.ReceiveSMS,
		ReceiveEmail: req.ReceiveEmail,
		HostID:       req.HostID,
		VisitDate:    date,
		Purpose:      req.Purpose,
		Courtesy:     req.Courtesy,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, registerVisitResp{
		VisitID:         res.Visit.ID,
		EntityID:        res.Entity.ID,
		EntityCreated:   res.EntityCreated,
		Status:          res.Visit.Status,
		CapacityPending: res.CapacityPending,
		Reasons:         res.Reasons,
	})
}

// Cancel releases a scheduled visit's slot.
func (h *VisitHandler) Cancel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	v, err := h.Reg.Cancel(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"visit_id": v.ID, "status": v.Status})
}
