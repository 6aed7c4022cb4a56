package mutation_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	attmock "staffattend/internal/attendance/mock"
	"staffattend/internal/catalog"
	catmock "staffattend/internal/catalog/mock"
	"staffattend/internal/auth"
	"staffattend/internal/face"
	"staffattend/internal/mutation"
)

var admin = mutation.Caller{Role: auth.RoleAdmin}

type fixture struct {
	att     *attendance.Service
	cat     *catalog.Service
	applier *mutation.Applier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	policy, err := attendance.NewPolicy(time.UTC, "09:00", "17:00", 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	att := attendance.NewService(attmock.New(), face.NewMatcher(0.4, 3), policy)
	att.SetClock(func() time.Time { return time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC) })
	cat := catalog.NewService(catmock.New())
	return fixture{att: att, cat: cat, applier: mutation.NewApplier(att, cat)}
}

func mustMutation(t *testing.T, table, id string, op mutation.Op, payload any) mutation.Mutation {
	t.Helper()
	m, err := mutation.New(table, id, op, payload)
	if err != nil {
		t.Fatalf("mutation.New: %v", err)
	}
	return m
}

func TestValidate(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		name string
		m    mutation.Mutation
	}{
		{"unknown table", mutation.Mutation{Table: "payroll", RecordID: id, Op: mutation.OpDelete}},
		{"bad op", mutation.Mutation{Table: mutation.TableStaff, RecordID: id, Op: "upsert", Payload: []byte(`{}`)}},
		{"bad id", mutation.Mutation{Table: mutation.TableStaff, RecordID: "42", Op: mutation.OpDelete}},
		{"insert without payload", mutation.Mutation{Table: mutation.TableStaff, RecordID: id, Op: mutation.OpInsert}},
		{"broken json", mutation.Mutation{Table: mutation.TableStaff, RecordID: id, Op: mutation.OpUpdate, Payload: []byte(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.Validate(); !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("err = %v, want validation", err)
			}
		})
	}
	if err := (mutation.Mutation{Table: mutation.TableStaff, RecordID: id, Op: mutation.OpDelete}).Validate(); err != nil {
		t.Errorf("delete without payload: %v", err)
	}
}

func TestStaffAndAttendanceReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staffID, recordID := uuid.NewString(), uuid.NewString()

	insertStaff := mustMutation(t, mutation.TableStaff, staffID, mutation.OpInsert, mutation.StaffInsert{
		StaffNo: "S-7", Name: "Lin", Embedding: []float32{1, 0, 0},
	})
	for i := 0; i < 2; i++ {
		if err := f.applier.Apply(ctx, admin, insertStaff); err != nil {
			t.Fatalf("staff insert replay %d: %v", i, err)
		}
	}
	st, err := f.att.GetStaff(ctx, staffID)
	if err != nil {
		t.Fatal(err)
	}
	if st.EnrollmentStatus != attendance.EnrollmentEnrolled {
		t.Errorf("embedding in insert payload should enroll: %+v", st)
	}

	checkIn := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	insertRec := mustMutation(t, mutation.TableAttendance, recordID, mutation.OpInsert, attendance.CheckIn{
		StaffID: staffID, At: &checkIn, DeviceID: "kiosk-9",
	})
	for i := 0; i < 2; i++ {
		if err := f.applier.Apply(ctx, admin, insertRec); err != nil {
			t.Fatalf("attendance insert replay %d: %v", i, err)
		}
	}
	rec, err := f.att.GetRecord(ctx, recordID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Method != attendance.MethodOffline || rec.Status != attendance.StatusPresent {
		t.Errorf("replayed record = %+v", rec)
	}

	out := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	note := "doctor"
	update := mustMutation(t, mutation.TableAttendance, recordID, mutation.OpUpdate, mutation.AttendanceUpdate{
		CheckOutAt: &out, Notes: &note,
	})
	if err := f.applier.Apply(ctx, admin, update); err != nil {
		t.Fatal(err)
	}
	rec, _ = f.att.GetRecord(ctx, recordID)
	if rec.Status != attendance.StatusEarlyDeparture || rec.Notes != note {
		t.Errorf("updated record = %+v", rec)
	}

	del := mutation.Mutation{Table: mutation.TableAttendance, RecordID: recordID, Op: mutation.OpDelete}
	for i := 0; i < 2; i++ {
		if err := f.applier.Apply(ctx, admin, del); err != nil {
			t.Fatalf("delete replay %d: %v", i, err)
		}
	}
}

func TestCatalogReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deptID, courseID, studentID, enrID := uuid.NewString(), uuid.NewString(), uuid.NewString(), uuid.NewString()

	muts := []mutation.Mutation{
		mustMutation(t, mutation.TableDepartments, deptID, mutation.OpInsert, map[string]string{"code": "ENG", "name": "Engineering"}),
		mustMutation(t, mutation.TableCourses, courseID, mutation.OpInsert, map[string]string{"code": "E1", "title": "Statics", "department_id": deptID}),
		mustMutation(t, mutation.TableStudents, studentID, mutation.OpInsert, map[string]string{"student_no": "N1", "name": "Kim"}),
		mustMutation(t, mutation.TableEnrollments, enrID, mutation.OpInsert, map[string]string{"course_id": courseID, "student_id": studentID}),
		mustMutation(t, mutation.TableDepartments, deptID, mutation.OpUpdate, map[string]string{"name": "Engineering & Design"}),
		mustMutation(t, mutation.TableEnrollments, enrID, mutation.OpUpdate, map[string]string{"course_id": courseID}),
	}
	results := f.applier.ApplyAll(ctx, admin, muts)
	if len(results) != len(muts) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results[:5] {
		if !r.OK {
			t.Errorf("mutation %d failed: %s", i, r.Error)
		}
	}
	if last := results[5]; last.OK || last.Code != "validation" {
		t.Errorf("enrollment update should be rejected: %+v", last)
	}

	d, err := f.cat.GetDepartment(ctx, deptID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Code != "ENG" || d.Name != "Engineering & Design" {
		t.Errorf("partial update lost fields: %+v", d)
	}
	students, _ := f.cat.ListCourseStudents(ctx, courseID)
	if len(students) != 1 {
		t.Errorf("course students = %+v", students)
	}

	// Replaying the whole batch changes nothing and reports success.
	again := f.applier.ApplyAll(ctx, admin, muts[:4])
	for i, r := range again {
		if !r.OK {
			t.Errorf("replay %d failed: %s", i, r.Error)
		}
	}
}

func TestApplyRejectsBadPayload(t *testing.T) {
	f := newFixture(t)
	m := mutation.Mutation{
		Table:    mutation.TableStudents,
		RecordID: uuid.NewString(),
		Op:       mutation.OpInsert,
		Payload:  json.RawMessage(`{"student_no": 12}`),
	}
	if err := f.applier.Apply(context.Background(), admin, m); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("err = %v, want validation", err)
	}
}

func TestDeviceCallerLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	device := mutation.Caller{Role: auth.RoleDevice, DeviceID: "kiosk-1"}

	st := &attendance.Staff{StaffNo: "S1", Name: "Ada"}
	if err := f.att.CreateStaff(ctx, st); err != nil {
		t.Fatal(err)
	}
	dept := uuid.NewString()
	recID, otherID := uuid.NewString(), uuid.NewString()
	note := "late bus"

	tests := []struct {
		name string
		m    mutation.Mutation
		want error
	}{
		{"staff delete", mutation.Mutation{Table: mutation.TableStaff, RecordID: st.ID, Op: mutation.OpDelete}, apperrors.ErrForbidden},
		{"department insert", mustMutation(t, mutation.TableDepartments, dept, mutation.OpInsert, map[string]string{"code": "X", "name": "X"}), apperrors.ErrForbidden},
		{"other device", mustMutation(t, mutation.TableAttendance, otherID, mutation.OpInsert, attendance.CheckIn{StaffID: st.ID, DeviceID: "kiosk-2"}), apperrors.ErrForbidden},
		{"own check-in", mustMutation(t, mutation.TableAttendance, recID, mutation.OpInsert, attendance.CheckIn{StaffID: st.ID}), nil},
		{"correction", mustMutation(t, mutation.TableAttendance, recID, mutation.OpUpdate, mutation.AttendanceUpdate{Notes: &note}), apperrors.ErrForbidden},
		{"record delete", mutation.Mutation{Table: mutation.TableAttendance, RecordID: recID, Op: mutation.OpDelete}, apperrors.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.applier.Apply(ctx, device, tt.m)
			if tt.want == nil && err != nil || tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := f.att.GetStaff(ctx, st.ID); err != nil {
		t.Errorf("staff should survive: %v", err)
	}
	if _, err := f.cat.GetDepartment(ctx, dept); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("department written by device: %v", err)
	}
	rec, err := f.att.GetRecord(ctx, recID)
	if err != nil || rec.DeviceID != "kiosk-1" || rec.Notes != "" {
		t.Errorf("device record = %+v, %v", rec, err)
	}
	if err := f.applier.Apply(ctx, mutation.Caller{}, mutation.Mutation{Table: mutation.TableStaff, RecordID: st.ID, Op: mutation.OpDelete}); !errors.Is(err, apperrors.ErrForbidden) {
		t.Errorf("anonymous caller err = %v", err)
	}
}
