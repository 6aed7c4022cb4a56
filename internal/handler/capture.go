package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/auth"
	"staffattend/internal/cloudinary"
	"staffattend/internal/httpmiddleware"
	"staffattend/internal/logger"
	"staffattend/internal/metrics"
	"staffattend/internal/queue"
)

// createCapture stores a pending capture and hands it to the worker.
func (h *Handler) createCapture(c *gin.Context) {
	var req struct {
		ImageURL string `json:"image_url" binding:"required"`
		DeviceID string `json:"device_id"`
	}
	if !bind(c, &req) {
		return
	}
	device, ok := deviceFor(c, req.DeviceID)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	capture := &attendance.Capture{
		ID:       uuid.NewString(),
		DeviceID: device,
		ImageURL: req.ImageURL,
		Status:   attendance.CapturePending,
	}
	if err := h.Captures.InsertCapture(ctx, capture); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	metrics.CaptureJobs.WithLabelValues(string(attendance.CapturePending)).Inc()

	job := queue.Job{Kind: queue.KindCapture, CaptureID: capture.ID, EnqueuedAt: time.Now().UTC()}
	if err := h.Queue.Publish(ctx, job); err != nil {
		logger.Error().Err(err).Str("capture_id", capture.ID).Msg("queue publish failed")
		capture.Status, capture.Error = attendance.CaptureFailed, "queue unavailable"
		if uerr := h.Captures.UpdateCapture(ctx, capture); uerr != nil {
			logger.Error().Err(uerr).Str("capture_id", capture.ID).Msg("mark capture failed")
		}
		httpmiddleware.Error(c, apperrors.New(apperrors.ErrBackendUnavailable, "capture queue unavailable"))
		return
	}
	c.JSON(http.StatusAccepted, capture)
}

func (h *Handler) getCapture(c *gin.Context) {
	capture, err := h.Captures.GetCapture(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	if device := auth.DeviceID(c); device != "" && capture.DeviceID != device {
		httpmiddleware.Error(c, apperrors.NotFound("capture not found"))
		return
	}
	c.JSON(http.StatusOK, capture)
}

// upload accepts a multipart "file" field or a JSON {"data": "<base64 data URL>"}.
func (h *Handler) upload(c *gin.Context) {
	if h.Uploader == nil {
		httpmiddleware.Error(c, apperrors.New(apperrors.ErrBackendUnavailable, "image storage not configured"))
		return
	}
	ctx := c.Request.Context()

	var (
		result *cloudinary.UploadResult
		err    error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			httpmiddleware.Error(c, apperrors.Validation("file field required"))
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			httpmiddleware.Error(c, ferr)
			return
		}
		result, err = h.Uploader.UploadBytes(ctx, data, header.Filename)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if !bind(c, &body) {
			return
		}
		result, err = h.Uploader.UploadBase64(ctx, body.Data)
	}
	if err != nil {
		logger.Error().Err(err).Msg("cloudinary upload failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "image upload failed", "code": "upload_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":       result.SecureURL,
		"public_id": result.PublicID,
		"width":     result.Width,
		"height":    result.Height,
		"bytes":     result.Bytes,
	})
}
