package catalog

import (
	"context"
	"strings"

	"staffattend/internal/apperrors"
)

// Service validates catalog rows before they reach the store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Validation(field + " is required")
	}
	return nil
}

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	d.Code, d.Name = strings.TrimSpace(d.Code), strings.TrimSpace(d.Name)
	if err := validateDepartment(d); err != nil {
		return err
	}
	return s.store.CreateDepartment(ctx, d)
}

func validateDepartment(d *Department) error {
	if err := required("code", d.Code); err != nil {
		return err
	}
	return required("name", d.Name)
}

func (s *Service) GetDepartment(ctx context.Context, id string) (*Department, error) {
	return s.store.GetDepartment(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, p Page) ([]Department, error) {
	return s.store.ListDepartments(ctx, p)
}

func (s *Service) UpdateDepartment(ctx context.Context, d *Department) error {
	d.Code, d.Name = strings.TrimSpace(d.Code), strings.TrimSpace(d.Name)
	if err := validateDepartment(d); err != nil {
		return err
	}
	return s.store.UpdateDepartment(ctx, d)
}

func (s *Service) DeleteDepartment(ctx context.Context, id string) error {
	return s.store.DeleteDepartment(ctx, id)
}

func validateCourse(c *Course) error {
	if err := required("code", c.Code); err != nil {
		return err
	}
	if err := required("title", c.Title); err != nil {
		return err
	}
	if err := required("department_id", c.DepartmentID); err != nil {
		return err
	}
	if c.InstructorID != nil && *c.InstructorID == "" {
		c.InstructorID = nil
	}
	return nil
}

// CreateCourse checks the department exists so a missing one reads as a
// validation error rather than a foreign key failure.
func (s *Service) CreateCourse(ctx context.Context, c *Course) error {
	c.Code, c.Title = strings.TrimSpace(c.Code), strings.TrimSpace(c.Title)
	if err := validateCourse(c); err != nil {
		return err
	}
	if err := s.departmentExists(ctx, c.DepartmentID); err != nil {
		return err
	}
	return s.store.CreateCourse(ctx, c)
}

func (s *Service) departmentExists(ctx context.Context, id string) error {
	if _, err := s.store.GetDepartment(ctx, id); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Validation("department_id does not exist")
		}
		return err
	}
	return nil
}

func (s *Service) GetCourse(ctx context.Context, id string) (*Course, error) {
	return s.store.GetCourse(ctx, id)
}

func (s *Service) ListCourses(ctx context.Context, departmentID string, p Page) ([]Course, error) {
	return s.store.ListCourses(ctx, departmentID, p)
}

func (s *Service) UpdateCourse(ctx context.Context, c *Course) error {
	c.Code, c.Title = strings.TrimSpace(c.Code), strings.TrimSpace(c.Title)
	if err := validateCourse(c); err != nil {
		return err
	}
	if err := s.departmentExists(ctx, c.DepartmentID); err != nil {
		return err
	}
	return s.store.UpdateCourse(ctx, c)
}

func (s *Service) DeleteCourse(ctx context.Context, id string) error {
	return s.store.DeleteCourse(ctx, id)
}

func validateStudent(st *Student) error {
	if err := required("student_no", st.StudentNo); err != nil {
		return err
	}
	if err := required("name", st.Name); err != nil {
		return err
	}
	if st.Email != "" && !strings.Contains(st.Email, "@") {
		return apperrors.Validation("email is invalid")
	}
	return nil
}

func (s *Service) CreateStudent(ctx context.Context, st *Student) error {
	st.StudentNo, st.Name, st.Email = strings.TrimSpace(st.StudentNo), strings.TrimSpace(st.Name), strings.TrimSpace(st.Email)
	if err := validateStudent(st); err != nil {
		return err
	}
	return s.store.CreateStudent(ctx, st)
}

func (s *Service) GetStudent(ctx context.Context, id string) (*Student, error) {
	return s.store.GetStudent(ctx, id)
}

func (s *Service) ListStudents(ctx context.Context, p Page) ([]Student, error) {
	return s.store.ListStudents(ctx, p)
}

func (s *Service) UpdateStudent(ctx context.Context, st *Student) error {
	st.StudentNo, st.Name, st.Email = strings.TrimSpace(st.StudentNo), strings.TrimSpace(st.Name), strings.TrimSpace(st.Email)
	if err := validateStudent(st); err != nil {
		return err
	}
	return s.store.UpdateStudent(ctx, st)
}

func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	return s.store.DeleteStudent(ctx, id)
}

// EnrollStudent adds a student to a course. Enrolling twice is a conflict.
func (s *Service) EnrollStudent(ctx context.Context, e *Enrollment) error {
	if err := required("course_id", e.CourseID); err != nil {
		return err
	}
	if err := required("student_id", e.StudentID); err != nil {
		return err
	}
	if _, err := s.store.GetCourse(ctx, e.CourseID); err != nil {
		return err
	}
	if _, err := s.store.GetStudent(ctx, e.StudentID); err != nil {
		return err
	}
	return s.store.EnrollStudent(ctx, e)
}

func (s *Service) DropStudent(ctx context.Context, courseID, studentID string) error {
	return s.store.DropStudent(ctx, courseID, studentID)
}

// ListCourseStudents returns the students enrolled in a course.
func (s *Service) ListCourseStudents(ctx context.Context, courseID string) ([]Student, error) {
	if _, err := s.store.GetCourse(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListCourseStudents(ctx, courseID)
}
