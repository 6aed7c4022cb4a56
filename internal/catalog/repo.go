package catalog

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/store"
)

// Repository persists the catalog in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// validID short-circuits lookups of ids Postgres would reject as malformed.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func paging(p Page, args []any) (string, []any) {
	if p.Limit <= 0 {
		return "", args
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	n := len(args)
	return " LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2), append(args, p.Limit, offset)
}

func (r *Repository) deleteByID(ctx context.Context, table, id, what, inUse string) error {
	if !validID(id) {
		return apperrors.NotFound(what + " not found")
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return apperrors.Conflict(inUse)
		}
		return store.MapError(err, what)
	}
	return store.RequireAffected(res, what)
}

func (r *Repository) CreateDepartment(ctx context.Context, d *Department) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO departments (id, code, name) VALUES ($1,$2,$3) RETURNING created_at`,
		d.ID, d.Code, d.Name)
	return store.MapError(row.Scan(&d.CreatedAt), "department")
}

func (r *Repository) GetDepartment(ctx context.Context, id string) (*Department, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("department not found")
	}
	var d Department
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM departments WHERE id = $1`, id,
	).Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt)
	if err != nil {
		return nil, store.MapError(err, "department")
	}
	return &d, nil
}

func (r *Repository) GetDepartmentByCode(ctx context.Context, code string) (*Department, error) {
	var d Department
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name, created_at FROM departments WHERE code = $1`, code,
	).Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt)
	if err != nil {
		return nil, store.MapError(err, "department")
	}
	return &d, nil
}

func (r *Repository) ListDepartments(ctx context.Context, p Page) ([]Department, error) {
	query := `SELECT id, code, name, created_at FROM departments`
	var args []any
	if p.Search != "" {
		query += ` WHERE name ILIKE $1 OR code ILIKE $1`
		args = append(args, "%"+p.Search+"%")
	}
	query += ` ORDER BY code`
	tail, args := paging(p, args)

	rows, err := r.db.QueryContext(ctx, query+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r *Repository) UpdateDepartment(ctx context.Context, d *Department) error {
	if !validID(d.ID) {
		return apperrors.NotFound("department not found")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE departments SET code = $2, name = $3 WHERE id = $1`, d.ID, d.Code, d.Name)
	if err != nil {
		return store.MapError(err, "department")
	}
	return store.RequireAffected(res, "department")
}

func (r *Repository) DeleteDepartment(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "departments", id, "department", "department still has courses")
}

const courseColumns = `id, code, title, department_id, instructor_id, created_at`

func scanCourse(row interface{ Scan(...any) error }) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.DepartmentID, &c.InstructorID, &c.CreatedAt)
	return c, err
}

func (r *Repository) CreateCourse(ctx context.Context, c *Course) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO courses (id, code, title, department_id, instructor_id)
		VALUES ($1,$2,$3,$4,$5) RETURNING created_at
	`, c.ID, c.Code, c.Title, c.DepartmentID, c.InstructorID)
	return store.MapError(row.Scan(&c.CreatedAt), "course")
}

func (r *Repository) GetCourse(ctx context.Context, id string) (*Course, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("course not found")
	}
	c, err := scanCourse(r.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		return nil, store.MapError(err, "course")
	}
	return &c, nil
}

func (r *Repository) ListCourses(ctx context.Context, departmentID string, p Page) ([]Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE TRUE`
	var args []any
	if departmentID != "" {
		args = append(args, departmentID)
		query += ` AND department_id = $` + strconv.Itoa(len(args))
	}
	if p.Search != "" {
		args = append(args, "%"+p.Search+"%")
		query += ` AND (title ILIKE $` + strconv.Itoa(len(args)) + ` OR code ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY code`
	tail, args := paging(p, args)

	rows, err := r.db.QueryContext(ctx, query+tail, args...)
	if err != nil {
		return nil, store.MapError(err, "course")
	}
	defer rows.Close()

	var res []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repository) UpdateCourse(ctx context.Context, c *Course) error {
	if !validID(c.ID) {
		return apperrors.NotFound("course not found")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE courses SET code = $2, title = $3, department_id = $4, instructor_id = $5
		WHERE id = $1
	`, c.ID, c.Code, c.Title, c.DepartmentID, c.InstructorID)
	if err != nil {
		return store.MapError(err, "course")
	}
	return store.RequireAffected(res, "course")
}

func (r *Repository) DeleteCourse(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "courses", id, "course", "course is still referenced")
}

func (r *Repository) CreateStudent(ctx context.Context, s *Student) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO students (id, student_no, name, email) VALUES ($1,$2,$3,$4) RETURNING created_at`,
		s.ID, s.StudentNo, s.Name, s.Email)
	return store.MapError(row.Scan(&s.CreatedAt), "student")
}

func (r *Repository) GetStudent(ctx context.Context, id string) (*Student, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("student not found")
	}
	var s Student
	err := r.db.QueryRowContext(ctx,
		`SELECT id, student_no, name, email, created_at FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.StudentNo, &s.Name, &s.Email, &s.CreatedAt)
	if err != nil {
		return nil, store.MapError(err, "student")
	}
	return &s, nil
}

func (r *Repository) scanStudents(rows *sql.Rows) ([]Student, error) {
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.StudentNo, &s.Name, &s.Email, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r *Repository) ListStudents(ctx context.Context, p Page) ([]Student, error) {
	query := `SELECT id, student_no, name, email, created_at FROM students`
	var args []any
	if p.Search != "" {
		query += ` WHERE name ILIKE $1 OR student_no ILIKE $1`
		args = append(args, "%"+p.Search+"%")
	}
	query += ` ORDER BY student_no`
	tail, args := paging(p, args)

	rows, err := r.db.QueryContext(ctx, query+tail, args...)
	if err != nil {
		return nil, err
	}
	return r.scanStudents(rows)
}

func (r *Repository) UpdateStudent(ctx context.Context, s *Student) error {
	if !validID(s.ID) {
		return apperrors.NotFound("student not found")
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET student_no = $2, name = $3, email = $4 WHERE id = $1`,
		s.ID, s.StudentNo, s.Name, s.Email)
	if err != nil {
		return store.MapError(err, "student")
	}
	return store.RequireAffected(res, "student")
}

func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "students", id, "student", "student is still referenced")
}

func (r *Repository) EnrollStudent(ctx context.Context, e *Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO enrollments (id, course_id, student_id) VALUES ($1,$2,$3) RETURNING enrolled_at`,
		e.ID, e.CourseID, e.StudentID)
	return store.MapError(row.Scan(&e.EnrolledAt), "enrollment")
}

func (r *Repository) GetEnrollment(ctx context.Context, id string) (*Enrollment, error) {
	if !validID(id) {
		return nil, apperrors.NotFound("enrollment not found")
	}
	var e Enrollment
	err := r.db.QueryRowContext(ctx,
		`SELECT id, course_id, student_id, enrolled_at FROM enrollments WHERE id = $1`, id,
	).Scan(&e.ID, &e.CourseID, &e.StudentID, &e.EnrolledAt)
	if err != nil {
		return nil, store.MapError(err, "enrollment")
	}
	return &e, nil
}

func (r *Repository) DeleteEnrollment(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "enrollments", id, "enrollment", "enrollment is still referenced")
}

func (r *Repository) DropStudent(ctx context.Context, courseID, studentID string) error {
	if !validID(courseID) || !validID(studentID) {
		return apperrors.NotFound("enrollment not found")
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM enrollments WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		return store.MapError(err, "enrollment")
	}
	return store.RequireAffected(res, "enrollment")
}

func (r *Repository) ListCourseStudents(ctx context.Context, courseID string) ([]Student, error) {
	if !validID(courseID) {
		return nil, apperrors.NotFound("course not found")
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.student_no, s.name, s.email, s.created_at
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		WHERE e.course_id = $1
		ORDER BY s.student_no
	`, courseID)
	if err != nil {
		return nil, err
	}
	return r.scanStudents(rows)
}
