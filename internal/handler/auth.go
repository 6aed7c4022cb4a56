package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"staffattend/internal/apperrors"
	"staffattend/internal/auth"
	"staffattend/internal/httpmiddleware"
)

func (h *Handler) issue(c *gin.Context, subject, role string, status int) {
	pair, err := h.Issuer.Issue(subject, role)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	if err := h.Devices.Store().SaveRefreshToken(c.Request.Context(), subject, pair.RefreshToken, pair.RefreshExp); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(status, pair)
}

func (h *Handler) registerDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.Devices.Register(c.Request.Context(), req.DeviceID); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	h.issue(c, req.DeviceID, auth.RoleDevice, http.StatusCreated)
}

func (h *Handler) adminLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if !auth.CheckAdmin(h.AdminUser, h.AdminPasswordHash, req.Username, req.Password) {
		httpmiddleware.Error(c, apperrors.New(apperrors.ErrUnauthorized, "invalid credentials"))
		return
	}
	h.issue(c, req.Username, auth.RoleAdmin, http.StatusOK)
}

// refresh rotates a refresh token. Each refresh token is accepted once.
func (h *Handler) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	claims, err := h.Issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		httpmiddleware.Error(c, apperrors.New(apperrors.ErrUnauthorized, "invalid refresh token"))
		return
	}
	ok, err := h.Devices.Store().ConsumeRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	if !ok {
		httpmiddleware.Error(c, apperrors.New(apperrors.ErrUnauthorized, "refresh token revoked"))
		return
	}
	h.issue(c, claims.Subject, claims.Role, http.StatusOK)
}
