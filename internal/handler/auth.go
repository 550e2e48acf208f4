package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gatehouse/visit-registry/internal/config"
	"github.com/gatehouse/visit-registry/internal/repository"
	"github.com/gatehouse/visit-registry/internal/utils"
)

// AuthHandler bundles dependencies for staff auth endpoints.
type AuthHandler struct {
	Cfg   config.Config
	Staff *repository.StaffRepo
}

func NewAuthHandler(cfg config.Config, s *repository.StaffRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Staff: s}
}

// ----- DTOs -----

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type staffPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	Staff  staffPart `json:"staff"`
	Access tokenPart `json:"access"`
}

// Login verifies credentials and returns a short-lived access token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), reqTimeout)
	defer cancel()

	acct, err := h.Staff.GetByEmail(ctx, req.Email)
	if err != nil {
		// Same answer for unknown email and bad password.
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if !acct.IsActive || !utils.VerifyPassword(acct.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, acct.ID, acct.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}

	return c.JSON(http.StatusOK, authResp{
		Staff:  staffPart{ID: acct.ID, Email: acct.Email, Role: acct.Role},
		Access: tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Me echoes the authenticated staff identity from the token claims.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"staff_id": c.Get("staff_id"),
		"role":     c.Get("role"),
	})
}
