//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/catalog"
	"staffattend/internal/face"
	"staffattend/internal/store"
)

func startPostgres(t *testing.T) *store.DB {
	t.Helper()
	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "pgvector/pgvector:pg16",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "attendance",
				"POSTGRES_PASSWORD": "attendance",
				"POSTGRES_DB":       "attendance",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Docker not available, skipping integration test: %v", err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(ctx) })

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := ctr.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	dsn := fmt.Sprintf("postgres://attendance:attendance@%s:%s/attendance?sslmode=disable", host, port.Port())
	db, err := store.NewDB(ctx, dsn, 4)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if err := store.Migrate(ctx, db.Client); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := store.Migrate(ctx, db.Client); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	return db
}

func TestPostgresAttendance(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()

	policy, _ := attendance.NewPolicy(time.UTC, "09:00", "17:00", 15*time.Minute)
	repo := attendance.NewRepository(db.Client)
	svc := attendance.NewService(repo, face.NewMatcher(0.4, 3), policy)
	svc.SetClock(func() time.Time { return time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC) })

	ada := &attendance.Staff{StaffNo: "S1", Name: "Ada", Embedding: []float32{1, 0, 0}}
	if err := svc.CreateStaff(ctx, ada); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateStaff(ctx, &attendance.Staff{StaffNo: "S1", Name: "Dup"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("duplicate staff_no err = %v", err)
	}

	got, err := svc.GetStaff(ctx, ada.ID)
	if err != nil || len(got.Embedding) != 3 || got.EnrollmentStatus != attendance.EnrollmentEnrolled {
		t.Fatalf("staff = %+v, %v", got, err)
	}
	gallery, err := svc.Gallery(ctx)
	if err != nil || len(gallery) != 1 || gallery[0].StaffID != ada.ID {
		t.Fatalf("gallery = %+v, %v", gallery, err)
	}

	res, err := svc.Recognize(ctx, []float32{0.9, 0.1, 0}, "kiosk-1", "")
	if err != nil || !res.Created || res.Record == nil {
		t.Fatalf("recognize = %+v, %v", res, err)
	}
	if res.Record.Status != attendance.StatusLate {
		t.Errorf("status = %s, want late", res.Record.Status)
	}
	res, err = svc.Recognize(ctx, []float32{1, 0, 0}, "kiosk-1", "")
	if err != nil || res.Created {
		t.Errorf("second recognize = %+v, %v", res, err)
	}

	if _, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: "00000000-0000-0000-0000-000000000000", Method: attendance.MethodManual}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("unknown staff err = %v", err)
	}

	capture := &attendance.Capture{DeviceID: "kiosk-1", ImageURL: "https://img/1.jpg"}
	if err := repo.InsertCapture(ctx, capture); err != nil {
		t.Fatal(err)
	}
	if c, err := repo.GetCapture(ctx, capture.ID); err != nil || c.Status != attendance.CapturePending {
		t.Errorf("capture = %+v, %v", c, err)
	}

	if err := repo.SaveRefreshToken(ctx, "kiosk-1", "tok", time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if ok, err := repo.ConsumeRefreshToken(ctx, "tok"); !ok || err != nil {
		t.Errorf("first consume = %v, %v", ok, err)
	}
	if ok, _ := repo.ConsumeRefreshToken(ctx, "tok"); ok {
		t.Error("refresh token consumed twice")
	}
}

func TestPostgresCatalog(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	svc := catalog.NewService(catalog.NewRepository(db.Client))

	eng := &catalog.Department{Code: "ENG", Name: "Engineering"}
	if err := svc.CreateDepartment(ctx, eng); err != nil {
		t.Fatal(err)
	}
	if err := svc.CreateDepartment(ctx, &catalog.Department{Code: "ENG", Name: "Again"}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("duplicate code err = %v", err)
	}

	course := &catalog.Course{Code: "CS101", Title: "Intro", DepartmentID: eng.ID}
	if err := svc.CreateCourse(ctx, course); err != nil {
		t.Fatal(err)
	}
	st := &catalog.Student{StudentNo: "N1", Name: "Grace"}
	if err := svc.CreateStudent(ctx, st); err != nil {
		t.Fatal(err)
	}
	if err := svc.EnrollStudent(ctx, &catalog.Enrollment{CourseID: course.ID, StudentID: st.ID}); err != nil {
		t.Fatal(err)
	}
	if err := svc.EnrollStudent(ctx, &catalog.Enrollment{CourseID: course.ID, StudentID: st.ID}); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("double enrollment err = %v", err)
	}
	students, err := svc.ListCourseStudents(ctx, course.ID)
	if err != nil || len(students) != 1 {
		t.Errorf("course students = %+v, %v", students, err)
	}

	if err := svc.DeleteDepartment(ctx, eng.ID); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("delete department in use err = %v", err)
	}
	if err := svc.DropStudent(ctx, course.ID, st.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteCourse(ctx, course.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteDepartment(ctx, eng.ID); err != nil {
		t.Errorf("delete empty department: %v", err)
	}
}
