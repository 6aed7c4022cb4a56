// Package handler exposes the attendance services over HTTP with gin.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/auth"
	"staffattend/internal/catalog"
	"staffattend/internal/cloudinary"
	"staffattend/internal/httpmiddleware"
	"staffattend/internal/mutation"
	"staffattend/internal/queue"
)

// Uploader stores images and returns their public URL.
type Uploader interface {
	UploadBase64(ctx context.Context, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler holds the dependencies of the HTTP API.
type Handler struct {
	Attendance *attendance.Service
	Devices    *attendance.Devices
	Captures   attendance.CaptureStore
	Catalog    *catalog.Service
	Applier    *mutation.Applier
	Queue      queue.Queue
	Issuer     *auth.Issuer
	// Uploader is nil when image storage is not configured.
	Uploader Uploader

	AdminUser         string
	AdminPasswordHash string

	Checks map[string]HealthCheck
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/v1/devices/register", h.registerDevice)
	r.POST("/v1/auth/admin", h.adminLogin)
	r.POST("/v1/auth/refresh", h.refresh)

	v1 := r.Group("/v1", auth.Authenticate(h.Issuer))
	admin := auth.RequireRole(auth.RoleAdmin)

	v1.GET("/staff", h.listStaff)
	v1.POST("/staff", admin, h.createStaff)
	v1.POST("/staff/import", admin, h.importStaff)
	v1.GET("/staff/:id", h.getStaff)
	v1.PUT("/staff/:id", admin, h.updateStaff)
	v1.DELETE("/staff/:id", admin, h.deleteStaff)
	v1.PUT("/staff/:id/enrollment", h.enroll)
	v1.DELETE("/staff/:id/enrollment", admin, h.unenroll)
	v1.GET("/gallery", h.gallery)

	v1.POST("/recognize", h.recognize)
	v1.POST("/attendance", h.checkIn)
	v1.POST("/attendance/checkout", h.checkOut)
	v1.POST("/attendance/absent", admin, h.markAbsent)
	v1.GET("/attendance", h.history)
	v1.GET("/attendance/summary", h.summary)
	v1.GET("/attendance/export", h.export)
	v1.GET("/attendance/:id", h.getRecord)
	v1.PATCH("/attendance/:id", admin, h.correctRecord)
	v1.DELETE("/attendance/:id", admin, h.deleteRecord)

	v1.POST("/captures", h.createCapture)
	v1.GET("/captures/:id", h.getCapture)
	v1.POST("/upload", h.upload)
	v1.POST("/sync", h.sync)

	h.registerCatalog(v1, admin)
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.Checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// bind decodes a JSON body, reporting malformed input as a validation error.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		httpmiddleware.Error(c, apperrors.Validation(err.Error()))
		return false
	}
	return true
}

// pageParams reads limit and offset; a missing limit defaults to 50.
func pageParams(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = 50, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpmiddleware.Error(c, apperrors.Validation("limit must be a non-negative integer"))
			return 0, 0, false
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpmiddleware.Error(c, apperrors.Validation("offset must be a non-negative integer"))
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// deviceFor resolves the device id of a request. Device tokens may only act
// as themselves; admins may name any device.
func deviceFor(c *gin.Context, requested string) (string, bool) {
	own := auth.DeviceID(c)
	if own == "" {
		return requested, true
	}
	if requested != "" && requested != own {
		httpmiddleware.Error(c, apperrors.New(apperrors.ErrForbidden, "device mismatch"))
		return "", false
	}
	return own, true
}
