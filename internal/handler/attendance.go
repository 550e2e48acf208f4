package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/visit-registry/internal/service"
)

// AttendanceHandler exposes the sign-in and sign-out endpoints.
type AttendanceHandler struct {
	Att *service.AttendanceService
}

func NewAttendanceHandler(att *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{Att: att}
}

type signInReq struct {
	Purpose *string `json:"purpose"`
}

// SignIn records an arrival at the gate.
func (h *AttendanceHandler) SignIn(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req signInReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	v, err := h.Att.SignIn(ctx, id, req.Purpose)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"visit_id":     v.ID,
		"sign_in_time": v.SignInTime,
	})
}

// SignOut records a departure.
func (h *AttendanceHandler) SignOut(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	v, err := h.Att.SignOut(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"visit_id":      v.ID,
		"sign_in_time":  v.SignInTime,
		"sign_out_time": v.SignOutTime,
	})
}
