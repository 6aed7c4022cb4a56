// Package mock provides an in-memory catalog store for tests.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/catalog"
)

// Store implements catalog.Store in memory, enforcing the same unique and
// foreign key rules as the schema.
type Store struct {
	mu          sync.Mutex
	departments map[string]catalog.Department
	courses     map[string]catalog.Course
	students    map[string]catalog.Student
	enrollments map[string]catalog.Enrollment

	// Err, when set, is returned by every method.
	Err error
}

var _ catalog.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		departments: make(map[string]catalog.Department),
		courses:     make(map[string]catalog.Course),
		students:    make(map[string]catalog.Student),
		enrollments: make(map[string]catalog.Enrollment),
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func page[T any](items []T, p catalog.Page) []T {
	if p.Offset > 0 {
		if p.Offset >= len(items) {
			return nil
		}
		items = items[p.Offset:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

func (m *Store) CreateDepartment(_ context.Context, d *catalog.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	for _, cur := range m.departments {
		if cur.ID == d.ID || cur.Code == d.Code {
			return apperrors.Conflict("department already exists")
		}
	}
	d.CreatedAt = time.Now().UTC()
	m.departments[d.ID] = *d
	return nil
}

func (m *Store) GetDepartment(_ context.Context, id string) (*catalog.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	d, ok := m.departments[id]
	if !ok {
		return nil, apperrors.NotFound("department not found")
	}
	return &d, nil
}

func (m *Store) GetDepartmentByCode(_ context.Context, code string) (*catalog.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, d := range m.departments {
		if d.Code == code {
			return &d, nil
		}
	}
	return nil, apperrors.NotFound("department not found")
}

func (m *Store) ListDepartments(_ context.Context, p catalog.Page) ([]catalog.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []catalog.Department
	for _, d := range m.departments {
		if p.Search == "" || contains(d.Name, p.Search) || contains(d.Code, p.Search) {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return page(res, p), nil
}

func (m *Store) UpdateDepartment(_ context.Context, d *catalog.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cur, ok := m.departments[d.ID]
	if !ok {
		return apperrors.NotFound("department not found")
	}
	for _, other := range m.departments {
		if other.ID != d.ID && other.Code == d.Code {
			return apperrors.Conflict("department already exists")
		}
	}
	cur.Code, cur.Name = d.Code, d.Name
	m.departments[d.ID] = cur
	return nil
}

func (m *Store) DeleteDepartment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.departments[id]; !ok {
		return apperrors.NotFound("department not found")
	}
	for _, c := range m.courses {
		if c.DepartmentID == id {
			return apperrors.Conflict("department still has courses")
		}
	}
	delete(m.departments, id)
	return nil
}

func (m *Store) CreateCourse(_ context.Context, c *catalog.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if _, ok := m.departments[c.DepartmentID]; !ok {
		return apperrors.Validation("course references a missing row")
	}
	for _, cur := range m.courses {
		if cur.ID == c.ID || cur.Code == c.Code {
			return apperrors.Conflict("course already exists")
		}
	}
	c.CreatedAt = time.Now().UTC()
	m.courses[c.ID] = *c
	return nil
}

func (m *Store) GetCourse(_ context.Context, id string) (*catalog.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.courses[id]
	if !ok {
		return nil, apperrors.NotFound("course not found")
	}
	return &c, nil
}

func (m *Store) ListCourses(_ context.Context, departmentID string, p catalog.Page) ([]catalog.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []catalog.Course
	for _, c := range m.courses {
		if departmentID != "" && c.DepartmentID != departmentID {
			continue
		}
		if p.Search != "" && !contains(c.Title, p.Search) && !contains(c.Code, p.Search) {
			continue
		}
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Code < res[j].Code })
	return page(res, p), nil
}

func (m *Store) UpdateCourse(_ context.Context, c *catalog.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.courses[c.ID]; !ok {
		return apperrors.NotFound("course not found")
	}
	if _, ok := m.departments[c.DepartmentID]; !ok {
		return apperrors.Validation("course references a missing row")
	}
	cur := m.courses[c.ID]
	cur.Code, cur.Title, cur.DepartmentID, cur.InstructorID = c.Code, c.Title, c.DepartmentID, c.InstructorID
	m.courses[c.ID] = cur
	return nil
}

func (m *Store) DeleteCourse(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.courses[id]; !ok {
		return apperrors.NotFound("course not found")
	}
	delete(m.courses, id)
	for eid, e := range m.enrollments {
		if e.CourseID == id {
			delete(m.enrollments, eid)
		}
	}
	return nil
}

func (m *Store) CreateStudent(_ context.Context, s *catalog.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, cur := range m.students {
		if cur.ID == s.ID || cur.StudentNo == s.StudentNo {
			return apperrors.Conflict("student already exists")
		}
	}
	s.CreatedAt = time.Now().UTC()
	m.students[s.ID] = *s
	return nil
}

func (m *Store) GetStudent(_ context.Context, id string) (*catalog.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.students[id]
	if !ok {
		return nil, apperrors.NotFound("student not found")
	}
	return &s, nil
}

func (m *Store) ListStudents(_ context.Context, p catalog.Page) ([]catalog.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []catalog.Student
	for _, s := range m.students {
		if p.Search == "" || contains(s.Name, p.Search) || contains(s.StudentNo, p.Search) {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StudentNo < res[j].StudentNo })
	return page(res, p), nil
}

func (m *Store) UpdateStudent(_ context.Context, s *catalog.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cur, ok := m.students[s.ID]
	if !ok {
		return apperrors.NotFound("student not found")
	}
	cur.StudentNo, cur.Name, cur.Email = s.StudentNo, s.Name, s.Email
	m.students[s.ID] = cur
	return nil
}

func (m *Store) DeleteStudent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.students[id]; !ok {
		return apperrors.NotFound("student not found")
	}
	delete(m.students, id)
	for eid, e := range m.enrollments {
		if e.StudentID == id {
			delete(m.enrollments, eid)
		}
	}
	return nil
}

func (m *Store) EnrollStudent(_ context.Context, e *catalog.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, okC := m.courses[e.CourseID]
	_, okS := m.students[e.StudentID]
	if !okC || !okS {
		return apperrors.Validation("enrollment references a missing row")
	}
	for _, cur := range m.enrollments {
		if cur.ID == e.ID || (cur.CourseID == e.CourseID && cur.StudentID == e.StudentID) {
			return apperrors.Conflict("enrollment already exists")
		}
	}
	e.EnrolledAt = time.Now().UTC()
	m.enrollments[e.ID] = *e
	return nil
}

func (m *Store) GetEnrollment(_ context.Context, id string) (*catalog.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	e, ok := m.enrollments[id]
	if !ok {
		return nil, apperrors.NotFound("enrollment not found")
	}
	return &e, nil
}

func (m *Store) DeleteEnrollment(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.enrollments[id]; !ok {
		return apperrors.NotFound("enrollment not found")
	}
	delete(m.enrollments, id)
	return nil
}

func (m *Store) DropStudent(_ context.Context, courseID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	for id, e := range m.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID {
			delete(m.enrollments, id)
			return nil
		}
	}
	return apperrors.NotFound("enrollment not found")
}

func (m *Store) ListCourseStudents(_ context.Context, courseID string) ([]catalog.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []catalog.Student
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			if s, ok := m.students[e.StudentID]; ok {
				res = append(res, s)
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StudentNo < res[j].StudentNo })
	return res, nil
}
