package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/export"
	"staffattend/internal/httpmiddleware"
)

func (h *Handler) recognize(c *gin.Context) {
	var req struct {
		Embedding []float32 `json:"embedding"`
		DeviceID  string    `json:"device_id"`
		ImageURL  string    `json:"image_url"`
	}
	if !bind(c, &req) {
		return
	}
	device, ok := deviceFor(c, req.DeviceID)
	if !ok {
		return
	}
	res, err := h.Attendance.Recognize(c.Request.Context(), req.Embedding, device, req.ImageURL)
	if errors.Is(err, apperrors.ErrLowConfidence) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
			"code":  apperrors.Code(err),
			"match": res.Match,
		})
		return
	}
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *Handler) checkIn(c *gin.Context) {
	var in attendance.CheckIn
	if !bind(c, &in) {
		return
	}
	device, ok := deviceFor(c, in.DeviceID)
	if !ok {
		return
	}
	in.DeviceID = device
	rec, created, err := h.Attendance.CheckIn(c.Request.Context(), in)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"record": rec, "created": created})
}

func (h *Handler) checkOut(c *gin.Context) {
	var req struct {
		StaffID  string     `json:"staff_id"`
		RecordID string     `json:"record_id"`
		At       *time.Time `json:"at"`
	}
	if !bind(c, &req) {
		return
	}
	var (
		rec attendance.Record
		err error
	)
	switch {
	case req.RecordID != "":
		at := h.Attendance.Now()
		if req.At != nil {
			at = *req.At
		}
		rec, err = h.Attendance.CheckOutRecord(c.Request.Context(), req.RecordID, at)
	case req.StaffID != "":
		rec, err = h.Attendance.CheckOut(c.Request.Context(), req.StaffID, req.At)
	default:
		err = apperrors.Validation("staff_id or record_id is required")
	}
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) markAbsent(c *gin.Context) {
	var req struct {
		Date string `json:"date"`
	}
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	if req.Date == "" {
		req.Date = h.Attendance.Policy().Date(h.Attendance.Now())
	}
	n, err := h.Attendance.MarkAbsent(c.Request.Context(), req.Date)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": req.Date, "marked": n})
}

func historyFilter(c *gin.Context) attendance.Filter {
	return attendance.Filter{
		From:         c.Query("from"),
		To:           c.Query("to"),
		StaffID:      c.Query("staff_id"),
		DepartmentID: c.Query("department_id"),
		Status:       attendance.Status(c.Query("status")),
		Method:       attendance.Method(c.Query("method")),
	}
}

func (h *Handler) history(c *gin.Context) {
	f := historyFilter(c)
	var ok bool
	if f.Limit, f.Offset, ok = pageParams(c); !ok {
		return
	}
	records, err := h.Attendance.History(c.Request.Context(), f)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (h *Handler) summary(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	counts, err := h.Attendance.Summary(c.Request.Context(), from, to)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "counts": counts})
}

// export streams every record matching the history filters.
func (h *Handler) export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		httpmiddleware.Error(c, apperrors.Validation(err.Error()))
		return
	}
	records, err := h.Attendance.History(c.Request.Context(), historyFilter(c))
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	name := fmt.Sprintf("attendance-%s.%s", h.Attendance.Policy().Date(h.Attendance.Now()), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Header("Content-Type", format.ContentType())
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, records); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) getRecord(c *gin.Context) {
	rec, err := h.Attendance.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) correctRecord(c *gin.Context) {
	var corr attendance.Correction
	if !bind(c, &corr) {
		return
	}
	rec, err := h.Attendance.CorrectRecord(c.Request.Context(), c.Param("id"), corr)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteRecord(c *gin.Context) {
	if err := h.Attendance.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
