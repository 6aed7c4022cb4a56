// Package catalog manages departments, courses, students and course
// enrollments.
package catalog

import (
	"context"
	"time"
)

type Department struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Course struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	DepartmentID string    `json:"department_id"`
	InstructorID *string   `json:"instructor_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Student struct {
	ID        string    `json:"id"`
	StudentNo string    `json:"student_no"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment links a student to a course. A student is enrolled in a course
// at most once.
type Enrollment struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// Page bounds list queries. A zero limit returns everything.
type Page struct {
	Search string
	Limit  int
	Offset int
}

// Store persists catalog rows. Lookups of a missing row return an error
// wrapping apperrors.ErrNotFound; duplicate natural keys wrap ErrConflict.
type Store interface {
	CreateDepartment(ctx context.Context, d *Department) error
	GetDepartment(ctx context.Context, id string) (*Department, error)
	GetDepartmentByCode(ctx context.Context, code string) (*Department, error)
	ListDepartments(ctx context.Context, p Page) ([]Department, error)
	UpdateDepartment(ctx context.Context, d *Department) error
	DeleteDepartment(ctx context.Context, id string) error

	CreateCourse(ctx context.Context, c *Course) error
	GetCourse(ctx context.Context, id string) (*Course, error)
	ListCourses(ctx context.Context, departmentID string, p Page) ([]Course, error)
	UpdateCourse(ctx context.Context, c *Course) error
	DeleteCourse(ctx context.Context, id string) error

	CreateStudent(ctx context.Context, s *Student) error
	GetStudent(ctx context.Context, id string) (*Student, error)
	ListStudents(ctx context.Context, p Page) ([]Student, error)
	UpdateStudent(ctx context.Context, s *Student) error
	DeleteStudent(ctx context.Context, id string) error

	EnrollStudent(ctx context.Context, e *Enrollment) error
	GetEnrollment(ctx context.Context, id string) (*Enrollment, error)
	DeleteEnrollment(ctx context.Context, id string) error
	DropStudent(ctx context.Context, courseID, studentID string) error
	ListCourseStudents(ctx context.Context, courseID string) ([]Student, error)
}
