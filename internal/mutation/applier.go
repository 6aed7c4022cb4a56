package mutation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/auth"
	"staffattend/internal/catalog"
	"staffattend/internal/logger"
	"staffattend/internal/metrics"
)

// AttendanceUpdate is the payload of an attendance_records update.
type AttendanceUpdate struct {
	CheckOutAt *time.Time         `json:"check_out_at,omitempty"`
	Status     *attendance.Status `json:"status,omitempty"`
	Notes      *string            `json:"notes,omitempty"`
}

// StaffInsert is the payload of a staff insert.
type StaffInsert struct {
	StaffNo          string                      `json:"staff_no"`
	Name             string                      `json:"name"`
	Email            string                      `json:"email,omitempty"`
	DepartmentID     *string                     `json:"department_id,omitempty"`
	EmploymentStatus attendance.EmploymentStatus `json:"employment_status,omitempty"`
	Embedding        []float32                   `json:"embedding,omitempty"`
	PhotoURL         string                      `json:"photo_url,omitempty"`
}

// Applier replays mutations against the services. Inserts are idempotent:
// replaying an insert whose record id already exists succeeds without
// writing, and deleting a missing row succeeds.
type Applier struct {
	attendance *attendance.Service
	catalog    *catalog.Service
}

func NewApplier(att *attendance.Service, cat *catalog.Service) *Applier {
	return &Applier{attendance: att, catalog: cat}
}

// Caller is the identity a batch is replayed for, taken from its token.
type Caller struct {
	Role     string
	DeviceID string
}

// authorize limits devices to what their token allows on the direct routes:
// recording arrivals and departures. Admins may replay anything.
func authorize(c Caller, m Mutation) error {
	switch c.Role {
	case auth.RoleAdmin:
		return nil
	case auth.RoleDevice:
		if m.Table == TableAttendance && (m.Op == OpInsert || m.Op == OpUpdate) {
			return nil
		}
	}
	return apperrors.New(apperrors.ErrForbidden, fmt.Sprintf("%s %s requires the admin role", m.Op, m.Table))
}

// ApplyAll replays mutations in order. A failed mutation does not stop the
// ones after it.
func (a *Applier) ApplyAll(ctx context.Context, c Caller, muts []Mutation) []Result {
	results := make([]Result, 0, len(muts))
	for _, m := range muts {
		res := Result{RecordID: m.RecordID, OK: true}
		if err := a.Apply(ctx, c, m); err != nil {
			res.OK, res.Error, res.Code = false, err.Error(), apperrors.Code(err)
			logger.Warn().Err(err).Str("table", m.Table).Str("record_id", m.RecordID).
				Str("op", string(m.Op)).Str("role", c.Role).Msg("sync mutation rejected")
		}
		results = append(results, res)
	}
	return results
}

// Apply replays a single mutation on behalf of c.
func (a *Applier) Apply(ctx context.Context, c Caller, m Mutation) error {
	if err := m.Validate(); err != nil {
		metrics.SyncMutations.WithLabelValues("invalid", "rejected").Inc()
		return err
	}
	err := authorize(c, m)
	if err == nil {
		switch m.Table {
		case TableAttendance:
			err = a.applyAttendance(ctx, c, m)
		case TableStaff:
			err = a.applyStaff(ctx, m)
		case TableDepartments:
			err = a.applyDepartment(ctx, m)
		case TableCourses:
			err = a.applyCourse(ctx, m)
		case TableStudents:
			err = a.applyStudent(ctx, m)
		case TableEnrollments:
			err = a.applyEnrollment(ctx, m)
		}
	}
	result := "applied"
	if err != nil {
		result = "rejected"
	}
	metrics.SyncMutations.WithLabelValues(m.Table, result).Inc()
	return err
}

func decode(m Mutation, v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return apperrors.Validation(fmt.Sprintf("%s payload: %v", m.Table, err))
	}
	return nil
}

// insertOnce skips create when lookup finds the record already present.
func insertOnce(lookup, create func() error) error {
	err := lookup()
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	return create()
}

func deleteOnce(err error) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	return err
}

func unsupported(m Mutation) error {
	return apperrors.Validation(fmt.Sprintf("%s does not support %s", m.Table, m.Op))
}

func (a *Applier) applyAttendance(ctx context.Context, c Caller, m Mutation) error {
	device := c.Role == auth.RoleDevice
	switch m.Op {
	case OpInsert:
		var in attendance.CheckIn
		if err := decode(m, &in); err != nil {
			return err
		}
		if device {
			if in.DeviceID != "" && in.DeviceID != c.DeviceID {
				return apperrors.New(apperrors.ErrForbidden, "device mismatch")
			}
			in.DeviceID = c.DeviceID
		}
		in.RecordID = m.RecordID
		if in.Method == "" {
			in.Method = attendance.MethodOffline
		}
		return insertOnce(
			func() error { _, err := a.attendance.GetRecord(ctx, m.RecordID); return err },
			func() error { _, _, err := a.attendance.CheckIn(ctx, in); return err },
		)
	case OpUpdate:
		var up AttendanceUpdate
		if err := decode(m, &up); err != nil {
			return err
		}
		if device && (up.Status != nil || up.Notes != nil) {
			return apperrors.New(apperrors.ErrForbidden, "correcting attendance requires the admin role")
		}
		if up.CheckOutAt != nil {
			if _, err := a.attendance.CheckOutRecord(ctx, m.RecordID, *up.CheckOutAt); err != nil {
				return err
			}
		}
		if up.Status != nil || up.Notes != nil {
			_, err := a.attendance.CorrectRecord(ctx, m.RecordID, attendance.Correction{Status: up.Status, Notes: up.Notes})
			return err
		}
		return nil
	case OpDelete:
		return deleteOnce(a.attendance.DeleteRecord(ctx, m.RecordID))
	}
	return unsupported(m)
}

func (a *Applier) applyStaff(ctx context.Context, m Mutation) error {
	switch m.Op {
	case OpInsert:
		var in StaffInsert
		if err := decode(m, &in); err != nil {
			return err
		}
		st := &attendance.Staff{
			ID:               m.RecordID,
			StaffNo:          in.StaffNo,
			Name:             in.Name,
			Email:            in.Email,
			DepartmentID:     in.DepartmentID,
			EmploymentStatus: in.EmploymentStatus,
			Embedding:        in.Embedding,
			PhotoURL:         in.PhotoURL,
		}
		return insertOnce(
			func() error { _, err := a.attendance.GetStaff(ctx, m.RecordID); return err },
			func() error { return a.attendance.CreateStaff(ctx, st) },
		)
	case OpUpdate:
		var p attendance.StaffPatch
		if err := decode(m, &p); err != nil {
			return err
		}
		_, err := a.attendance.UpdateStaff(ctx, m.RecordID, p)
		return err
	case OpDelete:
		return deleteOnce(a.attendance.DeleteStaff(ctx, m.RecordID))
	}
	return unsupported(m)
}

func (a *Applier) applyDepartment(ctx context.Context, m Mutation) error {
	switch m.Op {
	case OpInsert:
		var d catalog.Department
		if err := decode(m, &d); err != nil {
			return err
		}
		d.ID = m.RecordID
		return insertOnce(
			func() error { _, err := a.catalog.GetDepartment(ctx, m.RecordID); return err },
			func() error { return a.catalog.CreateDepartment(ctx, &d) },
		)
	case OpUpdate:
		d, err := a.catalog.GetDepartment(ctx, m.RecordID)
		if err != nil {
			return err
		}
		if err := decode(m, d); err != nil {
			return err
		}
		d.ID = m.RecordID
		return a.catalog.UpdateDepartment(ctx, d)
	case OpDelete:
		return deleteOnce(a.catalog.DeleteDepartment(ctx, m.RecordID))
	}
	return unsupported(m)
}

func (a *Applier) applyCourse(ctx context.Context, m Mutation) error {
	switch m.Op {
	case OpInsert:
		var c catalog.Course
		if err := decode(m, &c); err != nil {
			return err
		}
		c.ID = m.RecordID
		return insertOnce(
			func() error { _, err := a.catalog.GetCourse(ctx, m.RecordID); return err },
			func() error { return a.catalog.CreateCourse(ctx, &c) },
		)
	case OpUpdate:
		c, err := a.catalog.GetCourse(ctx, m.RecordID)
		if err != nil {
			return err
		}
		if err := decode(m, c); err != nil {
			return err
		}
		c.ID = m.RecordID
		return a.catalog.UpdateCourse(ctx, c)
	case OpDelete:
		return deleteOnce(a.catalog.DeleteCourse(ctx, m.RecordID))
	}
	return unsupported(m)
}

func (a *Applier) applyStudent(ctx context.Context, m Mutation) error {
	switch m.Op {
	case OpInsert:
		var s catalog.Student
		if err := decode(m, &s); err != nil {
			return err
		}
		s.ID = m.RecordID
		return insertOnce(
			func() error { _, err := a.catalog.GetStudent(ctx, m.RecordID); return err },
			func() error { return a.catalog.CreateStudent(ctx, &s) },
		)
	case OpUpdate:
		s, err := a.catalog.GetStudent(ctx, m.RecordID)
		if err != nil {
			return err
		}
		if err := decode(m, s); err != nil {
			return err
		}
		s.ID = m.RecordID
		return a.catalog.UpdateStudent(ctx, s)
	case OpDelete:
		return deleteOnce(a.catalog.DeleteStudent(ctx, m.RecordID))
	}
	return unsupported(m)
}

func (a *Applier) applyEnrollment(ctx context.Context, m Mutation) error {
	switch m.Op {
	case OpInsert:
		var e catalog.Enrollment
		if err := decode(m, &e); err != nil {
			return err
		}
		e.ID = m.RecordID
		return insertOnce(
			func() error { _, err := a.catalog.Store().GetEnrollment(ctx, m.RecordID); return err },
			func() error { return a.catalog.EnrollStudent(ctx, &e) },
		)
	case OpDelete:
		return deleteOnce(a.catalog.Store().DeleteEnrollment(ctx, m.RecordID))
	}
	return unsupported(m)
}
