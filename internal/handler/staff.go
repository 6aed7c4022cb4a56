package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/export"
	"staffattend/internal/httpmiddleware"
)

type staffRequest struct {
	StaffNo          string                      `json:"staff_no"`
	Name             string                      `json:"name"`
	Email            string                      `json:"email"`
	DepartmentID     *string                     `json:"department_id"`
	EmploymentStatus attendance.EmploymentStatus `json:"employment_status"`
	Embedding        []float32                   `json:"embedding"`
	PhotoURL         string                      `json:"photo_url"`
}

func (h *Handler) listStaff(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	staff, err := h.Attendance.ListStaff(c.Request.Context(), attendance.StaffFilter{
		DepartmentID:     c.Query("department_id"),
		EmploymentStatus: attendance.EmploymentStatus(c.Query("employment_status")),
		EnrollmentStatus: attendance.EnrollmentStatus(c.Query("enrollment_status")),
		Search:           c.Query("q"),
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staff": staff})
}

func (h *Handler) createStaff(c *gin.Context) {
	var req staffRequest
	if !bind(c, &req) {
		return
	}
	st := &attendance.Staff{
		StaffNo:          req.StaffNo,
		Name:             req.Name,
		Email:            req.Email,
		DepartmentID:     req.DepartmentID,
		EmploymentStatus: req.EmploymentStatus,
		Embedding:        req.Embedding,
		PhotoURL:         req.PhotoURL,
	}
	if err := h.Attendance.CreateStaff(c.Request.Context(), st); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	created, err := h.Attendance.GetStaff(c.Request.Context(), st.ID)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) getStaff(c *gin.Context) {
	st, err := h.Attendance.GetStaff(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) updateStaff(c *gin.Context) {
	var patch attendance.StaffPatch
	if !bind(c, &patch) {
		return
	}
	st, err := h.Attendance.UpdateStaff(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteStaff(c *gin.Context) {
	if err := h.Attendance.DeleteStaff(c.Request.Context(), c.Param("id")); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) enroll(c *gin.Context) {
	var req struct {
		Embedding []float32 `json:"embedding"`
		PhotoURL  string    `json:"photo_url"`
	}
	if !bind(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.Attendance.Enroll(c.Request.Context(), id, req.Embedding, req.PhotoURL); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	st, err := h.Attendance.GetStaff(c.Request.Context(), id)
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) unenroll(c *gin.Context) {
	if err := h.Attendance.Unenroll(c.Request.Context(), c.Param("id")); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) gallery(c *gin.Context) {
	gallery, err := h.Attendance.Gallery(c.Request.Context())
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"gallery":   gallery,
		"threshold": h.Attendance.Matcher().Threshold,
		"dim":       h.Attendance.Matcher().Dim,
	})
}

// importStaff reads an XLSX roster from the "file" form field.
func (h *Handler) importStaff(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		httpmiddleware.Error(c, apperrors.Validation("file field required"))
		return
	}
	defer file.Close()

	res, err := export.ImportStaff(c.Request.Context(), file, h.Attendance, h.Catalog.Store())
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
