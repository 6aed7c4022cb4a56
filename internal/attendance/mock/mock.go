// Package mock provides an in-memory attendance store for tests.
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/face"
)

// Store implements attendance.Store, CaptureStore and DeviceStore in memory.
type Store struct {
	mu       sync.Mutex
	staff    map[string]attendance.Staff
	records  map[string]attendance.Record
	captures map[string]attendance.Capture
	devices  map[string]time.Time
	tokens   map[string]token

	// Err, when set, is returned by every method.
	Err error
}

type token struct {
	subject string
	expires time.Time
	revoked bool
}

var (
	_ attendance.Store        = (*Store)(nil)
	_ attendance.CaptureStore = (*Store)(nil)
	_ attendance.DeviceStore  = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		staff:    make(map[string]attendance.Staff),
		records:  make(map[string]attendance.Record),
		captures: make(map[string]attendance.Capture),
		devices:  make(map[string]time.Time),
		tokens:   make(map[string]token),
	}
}

func cloneStaff(s attendance.Staff) attendance.Staff {
	if s.Embedding != nil {
		s.Embedding = append([]float32(nil), s.Embedding...)
	}
	return s
}

func (m *Store) CreateStaff(_ context.Context, s *attendance.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if _, ok := m.staff[s.ID]; ok {
		return apperrors.Conflict("staff already exists")
	}
	for _, existing := range m.staff {
		if existing.StaffNo == s.StaffNo {
			return apperrors.Conflict("staff already exists")
		}
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	// Embeddings are only written by SetEmbedding, as in the repository.
	row := *s
	row.Embedding, row.EnrolledAt = nil, nil
	m.staff[s.ID] = row
	return nil
}

func (m *Store) GetStaff(_ context.Context, id string) (*attendance.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	s, ok := m.staff[id]
	if !ok {
		return nil, apperrors.NotFound("staff not found")
	}
	s = cloneStaff(s)
	return &s, nil
}

func (m *Store) GetStaffByNo(_ context.Context, staffNo string) (*attendance.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, s := range m.staff {
		if s.StaffNo == staffNo {
			s = cloneStaff(s)
			return &s, nil
		}
	}
	return nil, apperrors.NotFound("staff not found")
}

func (m *Store) ListStaff(_ context.Context, f attendance.StaffFilter) ([]attendance.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []attendance.Staff
	for _, s := range m.staff {
		if f.DepartmentID != "" && (s.DepartmentID == nil || *s.DepartmentID != f.DepartmentID) {
			continue
		}
		if f.EmploymentStatus != "" && s.EmploymentStatus != f.EmploymentStatus {
			continue
		}
		if f.EnrollmentStatus != "" && s.EnrollmentStatus != f.EnrollmentStatus {
			continue
		}
		if f.Search != "" {
			needle := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(s.Name), needle) && !strings.Contains(strings.ToLower(s.StaffNo), needle) {
				continue
			}
		}
		res = append(res, cloneStaff(s))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StaffNo < res[j].StaffNo })
	return page(res, f.Limit, f.Offset), nil
}

func (m *Store) UpdateStaff(_ context.Context, s *attendance.Staff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cur, ok := m.staff[s.ID]
	if !ok {
		return apperrors.NotFound("staff not found")
	}
	cur.StaffNo, cur.Name, cur.Email = s.StaffNo, s.Name, s.Email
	cur.DepartmentID, cur.EmploymentStatus, cur.PhotoURL = s.DepartmentID, s.EmploymentStatus, s.PhotoURL
	cur.UpdatedAt = time.Now().UTC()
	s.UpdatedAt = cur.UpdatedAt
	m.staff[s.ID] = cur
	return nil
}

func (m *Store) DeleteStaff(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.staff[id]; !ok {
		return apperrors.NotFound("staff not found")
	}
	delete(m.staff, id)
	for rid, r := range m.records {
		if r.StaffID == id {
			delete(m.records, rid)
		}
	}
	return nil
}

func (m *Store) SetEmbedding(_ context.Context, id string, embedding []float32, photoURL string, enrolledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	s, ok := m.staff[id]
	if !ok {
		return apperrors.NotFound("staff not found")
	}
	if len(embedding) > 0 {
		s.Embedding = append([]float32(nil), embedding...)
		s.EnrollmentStatus = attendance.EnrollmentEnrolled
	} else {
		s.Embedding = nil
		s.EnrollmentStatus = attendance.EnrollmentPending
	}
	s.EnrolledAt = enrolledAt
	if photoURL != "" {
		s.PhotoURL = photoURL
	}
	m.staff[id] = s
	return nil
}

func (m *Store) Gallery(_ context.Context) ([]face.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []face.Candidate
	for _, s := range m.staff {
		if s.EnrollmentStatus != attendance.EnrollmentEnrolled || s.EmploymentStatus != attendance.EmploymentActive || len(s.Embedding) == 0 {
			continue
		}
		res = append(res, face.Candidate{StaffID: s.ID, Name: s.Name, Embedding: append([]float32(nil), s.Embedding...)})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StaffID < res[j].StaffID })
	return res, nil
}

func (m *Store) withName(r attendance.Record) attendance.Record {
	if s, ok := m.staff[r.StaffID]; ok {
		r.StaffName = s.Name
	}
	return r
}

func (m *Store) FindRecord(_ context.Context, staffID, date string) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, r := range m.records {
		if r.StaffID == staffID && r.Date == date {
			r = m.withName(r)
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Store) GetRecord(_ context.Context, id string) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.records[id]
	if !ok {
		return nil, apperrors.NotFound("attendance record not found")
	}
	r = m.withName(r)
	return &r, nil
}

func (m *Store) InsertRecord(_ context.Context, r *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := m.staff[r.StaffID]; !ok {
		return apperrors.Validation("attendance record references a missing row")
	}
	for _, existing := range m.records {
		if existing.ID == r.ID || (existing.StaffID == r.StaffID && existing.Date == r.Date) {
			return apperrors.Conflict("attendance record already exists")
		}
	}
	r.CreatedAt = time.Now().UTC()
	m.records[r.ID] = *r
	return nil
}

func (m *Store) UpdateRecord(_ context.Context, r *attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cur, ok := m.records[r.ID]
	if !ok {
		return apperrors.NotFound("attendance record not found")
	}
	cur.CheckInAt, cur.CheckOutAt, cur.Status, cur.Method = r.CheckInAt, r.CheckOutAt, r.Status, r.Method
	cur.Confidence, cur.DeviceID, cur.ImageURL, cur.Notes = r.Confidence, r.DeviceID, r.ImageURL, r.Notes
	m.records[r.ID] = cur
	return nil
}

func (m *Store) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.records[id]; !ok {
		return apperrors.NotFound("attendance record not found")
	}
	delete(m.records, id)
	return nil
}

func (m *Store) matches(r attendance.Record, f attendance.Filter) bool {
	if f.From != "" && r.Date < f.From {
		return false
	}
	if f.To != "" && r.Date > f.To {
		return false
	}
	if f.StaffID != "" && r.StaffID != f.StaffID {
		return false
	}
	if f.DepartmentID != "" {
		s := m.staff[r.StaffID]
		if s.DepartmentID == nil || *s.DepartmentID != f.DepartmentID {
			return false
		}
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	return true
}

func (m *Store) ListRecords(_ context.Context, f attendance.Filter) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var res []attendance.Record
	for _, r := range m.records {
		if m.matches(r, f) {
			res = append(res, m.withName(r))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date > res[j].Date
		}
		return res[i].StaffName < res[j].StaffName
	})
	return page(res, f.Limit, f.Offset), nil
}

func (m *Store) CountByStatus(_ context.Context, from, to string) (map[attendance.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	counts := make(map[attendance.Status]int)
	for _, r := range m.records {
		if m.matches(r, attendance.Filter{From: from, To: to}) {
			counts[r.Status]++
		}
	}
	return counts, nil
}

func (m *Store) StaffWithoutRecord(_ context.Context, date string) ([]attendance.Staff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	has := make(map[string]bool)
	for _, r := range m.records {
		if r.Date == date {
			has[r.StaffID] = true
		}
	}
	var res []attendance.Staff
	for _, s := range m.staff {
		if s.EmploymentStatus == attendance.EmploymentActive && !has[s.ID] {
			res = append(res, cloneStaff(s))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StaffNo < res[j].StaffNo })
	return res, nil
}

func (m *Store) InsertCapture(_ context.Context, c *attendance.Capture) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = attendance.CapturePending
	}
	c.CreatedAt = time.Now().UTC()
	m.captures[c.ID] = *c
	return nil
}

func (m *Store) GetCapture(_ context.Context, id string) (*attendance.Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.captures[id]
	if !ok {
		return nil, apperrors.NotFound("capture not found")
	}
	return &c, nil
}

func (m *Store) UpdateCapture(_ context.Context, c *attendance.Capture) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.captures[c.ID]; !ok {
		return apperrors.NotFound("capture not found")
	}
	m.captures[c.ID] = *c
	return nil
}

func (m *Store) UpsertDevice(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if _, ok := m.devices[deviceID]; !ok {
		m.devices[deviceID] = time.Now().UTC()
	}
	return nil
}

func (m *Store) SaveRefreshToken(_ context.Context, subject, tok string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.tokens[tok] = token{subject: subject, expires: expiresAt}
	return nil
}

func (m *Store) ConsumeRefreshToken(_ context.Context, tok string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	t, ok := m.tokens[tok]
	if !ok || t.revoked || time.Now().After(t.expires) {
		return false, nil
	}
	t.revoked = true
	m.tokens[tok] = t
	return true, nil
}

// Devices returns registered device ids.
func (m *Store) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
