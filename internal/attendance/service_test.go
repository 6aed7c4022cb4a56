package attendance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/attendance/mock"
	"staffattend/internal/face"
)

const dim = 4

func newService(t *testing.T, now time.Time) (*attendance.Service, *mock.Store) {
	t.Helper()
	policy, err := attendance.NewPolicy(time.UTC, "09:00", "17:00", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	st := mock.New()
	svc := attendance.NewService(st, face.NewMatcher(0.4, dim), policy)
	svc.SetClock(func() time.Time { return now })
	return svc, st
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func mustStaff(t *testing.T, svc *attendance.Service, no, name string, emb []float32) *attendance.Staff {
	t.Helper()
	s := &attendance.Staff{StaffNo: no, Name: name, Embedding: emb}
	if err := svc.CreateStaff(context.Background(), s); err != nil {
		t.Fatalf("CreateStaff(%s): %v", no, err)
	}
	return s
}

func TestParseClock(t *testing.T) {
	d, err := attendance.ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if d != 9*time.Hour+30*time.Minute {
		t.Errorf("got %v", d)
	}
	if _, err := attendance.ParseClock("9am"); err == nil {
		t.Error("expected error for 9am")
	}
	if _, err := attendance.NewPolicy(time.UTC, "17:00", "09:00", 0); err == nil {
		t.Error("expected error when end precedes start")
	}
}

func TestPolicyArrivalStatus(t *testing.T) {
	p, _ := attendance.NewPolicy(time.UTC, "09:00", "17:00", 15*time.Minute)
	tests := []struct {
		at   time.Time
		want attendance.Status
	}{
		{at(8, 0), attendance.StatusPresent},
		{at(9, 15), attendance.StatusPresent},
		{at(9, 16), attendance.StatusLate},
		{at(13, 0), attendance.StatusLate},
	}
	for _, tt := range tests {
		if got := p.ArrivalStatus(tt.at); got != tt.want {
			t.Errorf("ArrivalStatus(%s) = %s, want %s", tt.at.Format("15:04"), got, tt.want)
		}
	}
	if !p.LeftEarly(at(16, 59)) || p.LeftEarly(at(17, 0)) {
		t.Error("LeftEarly boundary is wrong")
	}
}

func TestPolicyDateUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	p, _ := attendance.NewPolicy(loc, "09:00", "17:00", 0)
	// 20:00 UTC on the 1st is 04:00 on the 2nd in UTC+8.
	if got := p.Date(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)); got != "2026-03-02" {
		t.Errorf("Date = %s", got)
	}
}

func TestPolicyAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	p, _ := attendance.NewPolicy(loc, "09:00", "17:00", 15*time.Minute)
	tests := []struct {
		name string
		at   time.Time
		want attendance.Status
	}{
		// Clocks spring forward at 02:00 on 2026-03-08 and fall back on 2026-11-01.
		{"spring 09:10", time.Date(2026, 3, 8, 9, 10, 0, 0, loc), attendance.StatusPresent},
		{"spring 10:10", time.Date(2026, 3, 8, 10, 10, 0, 0, loc), attendance.StatusLate},
		{"fall 08:30", time.Date(2026, 11, 1, 8, 30, 0, 0, loc), attendance.StatusPresent},
		{"fall 09:10", time.Date(2026, 11, 1, 9, 10, 0, 0, loc), attendance.StatusPresent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.ArrivalStatus(tt.at.UTC()); got != tt.want {
				t.Errorf("ArrivalStatus = %s, want %s", got, tt.want)
			}
		})
	}
	if !p.LeftEarly(time.Date(2026, 3, 8, 16, 30, 0, 0, loc)) {
		t.Error("16:30 on spring-forward day not early")
	}
	if p.LeftEarly(time.Date(2026, 11, 1, 17, 0, 0, 0, loc)) {
		t.Error("17:00 on fall-back day counted as early")
	}
}

func TestCreateStaffValidation(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()

	cases := []attendance.Staff{
		{Name: "No Number"},
		{StaffNo: "S1"},
		{StaffNo: "S1", Name: "Bad Mail", Email: "nope"},
		{StaffNo: "S1", Name: "Bad Status", EmploymentStatus: "retired"},
	}
	for _, c := range cases {
		c := c
		if err := svc.CreateStaff(ctx, &c); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("CreateStaff(%+v) err = %v, want validation", c, err)
		}
	}

	s := mustStaff(t, svc, " S1 ", " Ada ", nil)
	if s.StaffNo != "S1" || s.Name != "Ada" {
		t.Errorf("fields not trimmed: %+v", s)
	}
	if s.EmploymentStatus != attendance.EmploymentActive || s.EnrollmentStatus != attendance.EnrollmentPending {
		t.Errorf("defaults not applied: %+v", s)
	}

	dup := &attendance.Staff{StaffNo: "S1", Name: "Again"}
	if err := svc.CreateStaff(ctx, dup); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("duplicate staff_no err = %v, want conflict", err)
	}
}

func TestEnrollAndGallery(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()

	a := mustStaff(t, svc, "S1", "Ada", []float32{1, 0, 0, 0})
	b := mustStaff(t, svc, "S2", "Bob", nil)

	if err := svc.Enroll(ctx, b.ID, []float32{1, 2}, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("wrong dimension err = %v", err)
	}
	if err := svc.Enroll(ctx, b.ID, nil, ""); !errors.Is(err, apperrors.ErrNoFace) {
		t.Errorf("empty embedding err = %v", err)
	}

	got, err := svc.GetStaff(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EnrollmentStatus != attendance.EnrollmentEnrolled || got.EnrolledAt == nil {
		t.Errorf("staff not enrolled: %+v", got)
	}

	gallery, err := svc.Gallery(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(gallery) != 1 || gallery[0].StaffID != a.ID {
		t.Fatalf("gallery = %+v", gallery)
	}

	if err := svc.Unenroll(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	gallery, _ = svc.Gallery(ctx)
	if len(gallery) != 0 {
		t.Errorf("gallery after unenroll = %+v", gallery)
	}
}

func TestCreateStaffEnrollsOrLeavesNoRow(t *testing.T) {
	svc, st := newService(t, at(8, 0))
	ctx := context.Background()

	bad := &attendance.Staff{StaffNo: "S1", Name: "Ada", Embedding: []float32{1, 2}}
	if err := svc.CreateStaff(ctx, bad); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("wrong dimension err = %v, want validation", err)
	}
	if _, err := st.GetStaffByNo(ctx, "S1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("row left behind after failed create: %v", err)
	}
	if all, _ := svc.ListStaff(ctx, attendance.StaffFilter{}); len(all) != 0 {
		t.Errorf("staff after failed create = %+v", all)
	}

	retry := mustStaff(t, svc, "S1", "Ada", []float32{1, 0, 0, 0})
	got, err := svc.GetStaff(ctx, retry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.EnrollmentStatus != attendance.EnrollmentEnrolled || len(got.Embedding) != dim {
		t.Errorf("retried staff not enrolled: %+v", got)
	}
}

func TestMockCreateStaffDropsEmbedding(t *testing.T) {
	st := mock.New()
	ctx := context.Background()
	s := &attendance.Staff{StaffNo: "S1", Name: "Ada", Embedding: []float32{1, 0, 0, 0}}
	if err := st.CreateStaff(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetStaff(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Embedding != nil || got.EnrolledAt != nil {
		t.Errorf("embedding stored on create: %+v", got)
	}
	if gallery, _ := st.Gallery(ctx); len(gallery) != 0 {
		t.Errorf("gallery after plain create = %+v", gallery)
	}
}

func TestUpdateStaff(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()
	s := mustStaff(t, svc, "S1", "Ada", nil)

	name := "Ada Lovelace"
	inactive := attendance.EmploymentInactive
	got, err := svc.UpdateStaff(ctx, s.ID, attendance.StaffPatch{
		Name:             &name,
		EmploymentStatus: &inactive,
		Embedding:        []float32{0, 1, 0, 0},
	})
	if err != nil {
		t.Fatalf("UpdateStaff: %v", err)
	}
	if got.Name != name || got.EmploymentStatus != inactive || got.EnrollmentStatus != attendance.EnrollmentEnrolled {
		t.Errorf("update not applied: %+v", got)
	}

	empty := ""
	if _, err := svc.UpdateStaff(ctx, s.ID, attendance.StaffPatch{Name: &empty}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("empty name err = %v", err)
	}
	if _, err := svc.UpdateStaff(ctx, "missing", attendance.StaffPatch{Name: &name}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("missing staff err = %v", err)
	}
}

func TestCheckInStatusAndDedup(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()
	s := mustStaff(t, svc, "S1", "Ada", nil)

	late := at(9, 40)
	rec, created, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: s.ID, At: &late})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !created || rec.Status != attendance.StatusLate || rec.Method != attendance.MethodManual {
		t.Errorf("first check-in = %+v created=%v", rec, created)
	}
	if rec.Date != "2026-03-02" {
		t.Errorf("date = %s", rec.Date)
	}

	again := at(11, 0)
	dup, created, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: s.ID, At: &again})
	if err != nil {
		t.Fatal(err)
	}
	if created || dup.ID != rec.ID || !dup.CheckInAt.Equal(late) {
		t.Errorf("repeat check-in = %+v created=%v", dup, created)
	}
}

func TestCheckInRejects(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()
	s := mustStaff(t, svc, "S1", "Ada", nil)
	inactive := attendance.EmploymentOnLeave
	if _, err := svc.UpdateStaff(ctx, s.ID, attendance.StaffPatch{EmploymentStatus: &inactive}); err != nil {
		t.Fatal(err)
	}

	bad := 1.5
	tests := []struct {
		name string
		in   attendance.CheckIn
		want error
	}{
		{"no staff", attendance.CheckIn{}, apperrors.ErrValidation},
		{"bad method", attendance.CheckIn{StaffID: s.ID, Method: "telepathy"}, apperrors.ErrValidation},
		{"bad confidence", attendance.CheckIn{StaffID: s.ID, Confidence: &bad}, apperrors.ErrValidation},
		{"unknown staff", attendance.CheckIn{StaffID: "nobody"}, apperrors.ErrNotFound},
		{"on leave", attendance.CheckIn{StaffID: s.ID}, apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.CheckIn(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCheckOut(t *testing.T) {
	svc, _ := newService(t, at(8, 50))
	ctx := context.Background()
	s := mustStaff(t, svc, "S1", "Ada", nil)

	if _, err := svc.CheckOut(ctx, s.ID, nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("checkout without record err = %v", err)
	}

	rec, _, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: s.ID})
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != attendance.StatusPresent {
		t.Fatalf("status = %s", rec.Status)
	}

	early := at(15, 0)
	out, err := svc.CheckOut(ctx, s.ID, &early)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != attendance.StatusEarlyDeparture || out.CheckOutAt == nil {
		t.Errorf("early checkout = %+v", out)
	}

	// Checking out again after hours restores the arrival status.
	later := at(17, 30)
	out, err = svc.CheckOutRecord(ctx, rec.ID, later)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != attendance.StatusPresent || !out.CheckOutAt.Equal(later) {
		t.Errorf("late checkout = %+v", out)
	}

	if _, err := svc.CheckOutRecord(ctx, rec.ID, at(8, 0)); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("checkout before check-in err = %v", err)
	}
}

func TestMarkAbsentAndUpgrade(t *testing.T) {
	svc, _ := newService(t, at(10, 0))
	ctx := context.Background()
	a := mustStaff(t, svc, "S1", "Ada", nil)
	b := mustStaff(t, svc, "S2", "Bob", nil)
	c := mustStaff(t, svc, "S3", "Cy", nil)
	inactive := attendance.EmploymentInactive
	if _, err := svc.UpdateStaff(ctx, c.ID, attendance.StaffPatch{EmploymentStatus: &inactive}); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: a.ID}); err != nil {
		t.Fatal(err)
	}

	n, err := svc.MarkAbsent(ctx, "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("marked %d absent, want 1", n)
	}
	if n, _ := svc.MarkAbsent(ctx, "2026-03-02"); n != 0 {
		t.Errorf("second MarkAbsent marked %d", n)
	}
	if _, err := svc.MarkAbsent(ctx, "March 2"); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("bad date err = %v", err)
	}

	if _, err := svc.CheckOut(ctx, b.ID, nil); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("checkout of absent record err = %v", err)
	}

	rec, created, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: b.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !created || rec.Status != attendance.StatusLate || rec.CheckInAt == nil {
		t.Errorf("absent upgrade = %+v created=%v", rec, created)
	}
}

func TestRecognize(t *testing.T) {
	svc, _ := newService(t, at(8, 30))
	ctx := context.Background()

	if _, err := svc.Recognize(ctx, []float32{1, 0, 0, 0}, "kiosk-1", ""); !errors.Is(err, apperrors.ErrNotEnrolled) {
		t.Errorf("empty gallery err = %v", err)
	}

	ada := mustStaff(t, svc, "S1", "Ada", []float32{1, 0, 0, 0})
	mustStaff(t, svc, "S2", "Bob", []float32{0, 1, 0, 0})

	if _, err := svc.Recognize(ctx, nil, "kiosk-1", ""); !errors.Is(err, apperrors.ErrNoFace) {
		t.Errorf("no face err = %v", err)
	}

	res, err := svc.Recognize(ctx, []float32{0.9, 0.1, 0, 0}, "kiosk-1", "https://img/1.jpg")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Match.StaffID != ada.ID || !res.Created || res.Record == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Record.Method != attendance.MethodFace || res.Record.DeviceID != "kiosk-1" || res.Record.Confidence == nil {
		t.Errorf("record = %+v", res.Record)
	}

	res, err = svc.Recognize(ctx, []float32{0, 0, 1, 0}, "kiosk-1", "")
	if !errors.Is(err, apperrors.ErrLowConfidence) {
		t.Fatalf("distant embedding err = %v", err)
	}
	if res.Match.Matched || res.Record != nil {
		t.Errorf("low confidence result = %+v", res)
	}
}

func TestHistoryAndSummary(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()
	a := mustStaff(t, svc, "S1", "Ada", nil)
	b := mustStaff(t, svc, "S2", "Bob", nil)

	day1 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for _, in := range []attendance.CheckIn{
		{StaffID: a.ID, At: &day1},
		{StaffID: a.ID, At: &day2},
		{StaffID: b.ID, At: &day2},
	} {
		if _, _, err := svc.CheckIn(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := svc.History(ctx, attendance.Filter{From: "2026-03-02", To: "2026-03-02"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("history len = %d", len(recs))
	}

	recs, _ = svc.History(ctx, attendance.Filter{StaffID: a.ID})
	if len(recs) != 2 || recs[0].Date != "2026-03-02" {
		t.Errorf("history not newest first: %+v", recs)
	}

	for _, f := range []attendance.Filter{
		{From: "03/01/2026"},
		{From: "2026-03-05", To: "2026-03-01"},
		{Status: "gone"},
		{Method: "carrier-pigeon"},
	} {
		if _, err := svc.History(ctx, f); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("History(%+v) err = %v", f, err)
		}
	}

	sum, err := svc.Summary(ctx, "2026-03-01", "2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	want := map[attendance.Status]int{
		attendance.StatusPresent:        1,
		attendance.StatusLate:           2,
		attendance.StatusEarlyDeparture: 0,
		attendance.StatusAbsent:         0,
	}
	for k, v := range want {
		if sum[k] != v {
			t.Errorf("summary[%s] = %d, want %d", k, sum[k], v)
		}
	}
}

func TestCorrectAndDeleteRecord(t *testing.T) {
	svc, _ := newService(t, at(9, 30))
	ctx := context.Background()
	s := mustStaff(t, svc, "S1", "Ada", nil)
	rec, _, err := svc.CheckIn(ctx, attendance.CheckIn{StaffID: s.ID})
	if err != nil {
		t.Fatal(err)
	}

	present := attendance.StatusPresent
	note := "traffic on the bridge"
	got, err := svc.CorrectRecord(ctx, rec.ID, attendance.Correction{Status: &present, Notes: &note})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != present || got.Notes != note {
		t.Errorf("correction = %+v", got)
	}

	bogus := attendance.Status("vacation")
	if _, err := svc.CorrectRecord(ctx, rec.ID, attendance.Correction{Status: &bogus}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("bogus status err = %v", err)
	}

	if err := svc.DeleteRecord(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetRecord(ctx, rec.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("deleted record err = %v", err)
	}
}

func TestFiltersRejectMalformedIDs(t *testing.T) {
	svc, _ := newService(t, at(8, 0))
	ctx := context.Background()

	if _, err := svc.ListStaff(ctx, attendance.StaffFilter{DepartmentID: "nope"}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("ListStaff err = %v", err)
	}
	for _, f := range []attendance.Filter{{StaffID: "nope"}, {DepartmentID: "42"}} {
		if _, err := svc.History(ctx, f); !errors.Is(err, apperrors.ErrValidation) {
			t.Errorf("History(%+v) err = %v", f, err)
		}
	}
	if _, err := svc.CheckOut(ctx, "nope", nil); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("CheckOut err = %v", err)
	}
	if _, err := svc.History(ctx, attendance.Filter{StaffID: "00000000-0000-0000-0000-000000000000"}); err != nil {
		t.Errorf("well-formed staff id: %v", err)
	}
}

func TestStoreErrorsPropagate(t *testing.T) {
	svc, st := newService(t, at(8, 0))
	boom := errors.New("db down")
	st.Err = boom
	if _, err := svc.ListStaff(context.Background(), attendance.StaffFilter{}); !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestDevicesRegister(t *testing.T) {
	st := mock.New()
	d := attendance.NewDevices(st)
	ctx := context.Background()
	if err := d.Register(ctx, "  "); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("blank id err = %v", err)
	}
	if err := d.Register(ctx, "kiosk-1"); err != nil {
		t.Fatal(err)
	}
	if err := d.Register(ctx, "kiosk-1"); err != nil {
		t.Fatal(err)
	}
	if got := st.Devices(); len(got) != 1 || got[0] != "kiosk-1" {
		t.Errorf("devices = %v", got)
	}
}
