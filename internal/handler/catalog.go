package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"staffattend/internal/catalog"
	"staffattend/internal/httpmiddleware"
)

func (h *Handler) registerCatalog(v1 *gin.RouterGroup, admin gin.HandlerFunc) {
	cat := h.Catalog

	v1.GET("/departments", listHandler("departments", cat.ListDepartments))
	v1.POST("/departments", admin, createHandler(cat.CreateDepartment))
	v1.GET("/departments/:id", getHandler(cat.GetDepartment))
	v1.PUT("/departments/:id", admin, updateHandler(cat.GetDepartment, cat.UpdateDepartment,
		func(d *catalog.Department, id string) { d.ID = id }))
	v1.DELETE("/departments/:id", admin, deleteHandler(cat.DeleteDepartment))

	v1.GET("/courses", h.listCourses)
	v1.POST("/courses", admin, createHandler(cat.CreateCourse))
	v1.GET("/courses/:id", getHandler(cat.GetCourse))
	v1.PUT("/courses/:id", admin, updateHandler(cat.GetCourse, cat.UpdateCourse,
		func(c *catalog.Course, id string) { c.ID = id }))
	v1.DELETE("/courses/:id", admin, deleteHandler(cat.DeleteCourse))
	v1.GET("/courses/:id/students", h.courseStudents)
	v1.POST("/courses/:id/students", admin, h.enrollStudent)
	v1.DELETE("/courses/:id/students/:student_id", admin, h.dropStudent)

	v1.GET("/students", listHandler("students", cat.ListStudents))
	v1.POST("/students", admin, createHandler(cat.CreateStudent))
	v1.GET("/students/:id", getHandler(cat.GetStudent))
	v1.PUT("/students/:id", admin, updateHandler(cat.GetStudent, cat.UpdateStudent,
		func(s *catalog.Student, id string) { s.ID = id }))
	v1.DELETE("/students/:id", admin, deleteHandler(cat.DeleteStudent))
}

func listHandler[T any](key string, list func(context.Context, catalog.Page) ([]T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset, ok := pageParams(c)
		if !ok {
			return
		}
		items, err := list(c.Request.Context(), catalog.Page{Search: c.Query("q"), Limit: limit, Offset: offset})
		if err != nil {
			httpmiddleware.Error(c, err)
			return
		}
		if items == nil {
			items = []T{}
		}
		c.JSON(http.StatusOK, gin.H{key: items})
	}
}

func createHandler[T any](create func(context.Context, *T) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var item T
		if !bind(c, &item) {
			return
		}
		if err := create(c.Request.Context(), &item); err != nil {
			httpmiddleware.Error(c, err)
			return
		}
		c.JSON(http.StatusCreated, &item)
	}
}

func getHandler[T any](get func(context.Context, string) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		item, err := get(c.Request.Context(), c.Param("id"))
		if err != nil {
			httpmiddleware.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

// updateHandler decodes the body onto the stored row, so omitted fields keep
// their current values.
func updateHandler[T any](get func(context.Context, string) (*T, error), update func(context.Context, *T) error, setID func(*T, string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		item, err := get(c.Request.Context(), id)
		if err != nil {
			httpmiddleware.Error(c, err)
			return
		}
		if !bind(c, item) {
			return
		}
		setID(item, id)
		if err := update(c.Request.Context(), item); err != nil {
			httpmiddleware.Error(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func deleteHandler(del func(context.Context, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := del(c.Request.Context(), c.Param("id")); err != nil {
			httpmiddleware.Error(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) listCourses(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}
	courses, err := h.Catalog.ListCourses(c.Request.Context(), c.Query("department_id"),
		catalog.Page{Search: c.Query("q"), Limit: limit, Offset: offset})
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	if courses == nil {
		courses = []catalog.Course{}
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *Handler) courseStudents(c *gin.Context) {
	students, err := h.Catalog.ListCourseStudents(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	if students == nil {
		students = []catalog.Student{}
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) enrollStudent(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if !bind(c, &req) {
		return
	}
	e := &catalog.Enrollment{CourseID: c.Param("id"), StudentID: req.StudentID}
	if err := h.Catalog.EnrollStudent(c.Request.Context(), e); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) dropStudent(c *gin.Context) {
	if err := h.Catalog.DropStudent(c.Request.Context(), c.Param("id"), c.Param("student_id")); err != nil {
		httpmiddleware.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
