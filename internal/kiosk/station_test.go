package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/auth"
	"staffattend/internal/backend"
	"staffattend/internal/face"
	"staffattend/internal/mutation"
	"staffattend/internal/syncqueue"
)

type fakeAPI struct {
	gallery  backend.Gallery
	down     bool
	checkIns []attendance.CheckIn
	replayed []mutation.Mutation
}

func (f *fakeAPI) Register(_ context.Context, deviceID string) (auth.TokenPair, error) {
	if f.down {
		return auth.TokenPair{}, apperrors.ErrBackendUnavailable
	}
	return auth.TokenPair{AccessToken: "a-" + deviceID, RefreshToken: "r-" + deviceID}, nil
}

func (f *fakeAPI) Gallery(context.Context) (backend.Gallery, error) {
	if f.down {
		return backend.Gallery{}, apperrors.ErrBackendUnavailable
	}
	return f.gallery, nil
}

func (f *fakeAPI) Enroll(_ context.Context, staffID string, emb []float32, _ string) (attendance.Staff, error) {
	return attendance.Staff{ID: staffID, Embedding: emb}, nil
}

func (f *fakeAPI) CheckIn(_ context.Context, in attendance.CheckIn) (attendance.Record, bool, error) {
	if f.down {
		return attendance.Record{}, false, apperrors.New(apperrors.ErrBackendUnavailable, "connection refused")
	}
	f.checkIns = append(f.checkIns, in)
	return attendance.Record{ID: in.RecordID, StaffID: in.StaffID, Method: in.Method}, true, nil
}

func (f *fakeAPI) Replay(_ context.Context, m mutation.Mutation) error {
	if f.down {
		return apperrors.ErrBackendUnavailable
	}
	f.replayed = append(f.replayed, m)
	return nil
}

func newStation(t *testing.T) (*Station, *fakeAPI) {
	t.Helper()
	q, err := syncqueue.Open(filepath.Join(t.TempDir(), "kiosk.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Close() })

	api := &fakeAPI{gallery: backend.Gallery{
		Candidates: []face.Candidate{
			{StaffID: "s-ada", Name: "Ada", Embedding: []float32{1, 0, 0}},
			{StaffID: "s-bob", Name: "Bob", Embedding: []float32{0, 1, 0}},
		},
		Threshold: 0.5,
		Dim:       3,
	}}
	s := New(api, q)
	s.SetClock(func() time.Time { return time.Date(2026, 3, 2, 8, 55, 0, 0, time.UTC) })
	return s, api
}

func TestRegisterAndTokens(t *testing.T) {
	s, _ := newStation(t)
	ctx := context.Background()

	if err := s.Register(ctx, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("empty device err = %v", err)
	}
	if err := s.Register(ctx, "kiosk-1"); err != nil {
		t.Fatal(err)
	}
	if id, _ := s.DeviceID(ctx); id != "kiosk-1" {
		t.Errorf("device id = %q", id)
	}

	if _, ok, err := s.Tokens(ctx); ok || err != nil {
		t.Errorf("tokens before save: ok=%v err=%v", ok, err)
	}
	want := auth.TokenPair{AccessToken: "a", RefreshToken: "r"}
	if err := s.SaveTokens(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Tokens(ctx)
	if err != nil || !ok || got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("tokens = %+v %v %v", got, ok, err)
	}
}

func TestCheckInNeedsGallery(t *testing.T) {
	s, _ := newStation(t)
	if _, err := s.CheckIn(context.Background(), []float32{1, 0, 0}, ""); !errors.Is(err, apperrors.ErrNotEnrolled) {
		t.Errorf("err = %v, want not enrolled", err)
	}
}

func TestCheckInOnline(t *testing.T) {
	s, api := newStation(t)
	ctx := context.Background()
	_ = s.Register(ctx, "kiosk-1")
	n, err := s.RefreshGallery(ctx)
	if err != nil || n != 2 {
		t.Fatalf("RefreshGallery = %d, %v", n, err)
	}
	_, m, info, err := s.Gallery(ctx)
	if err != nil || m.Threshold != 0.5 || m.Dim != 3 || info.RefreshedAt.IsZero() {
		t.Fatalf("gallery info = %+v %+v %v", m, info, err)
	}

	res, err := s.CheckIn(ctx, []float32{0.9, 0.1, 0}, "img.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued || !res.Created || res.Match.StaffID != "s-ada" {
		t.Errorf("result = %+v", res)
	}
	in := api.checkIns[0]
	if in.Method != attendance.MethodFace || in.DeviceID != "kiosk-1" || in.Confidence == nil || in.RecordID == "" {
		t.Errorf("sent check-in = %+v", in)
	}
}

func TestCheckInRejectsWeakMatch(t *testing.T) {
	s, api := newStation(t)
	ctx := context.Background()
	if _, err := s.RefreshGallery(ctx); err != nil {
		t.Fatal(err)
	}

	res, err := s.CheckIn(ctx, []float32{0, 0, 1}, "")
	if !errors.Is(err, apperrors.ErrLowConfidence) {
		t.Fatalf("err = %v", err)
	}
	if res.Match.Matched || res.Match.StaffID == "" {
		t.Errorf("match = %+v", res.Match)
	}
	if _, err := s.CheckIn(ctx, []float32{1, 0}, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("wrong dimension err = %v", err)
	}
	if len(api.checkIns) != 0 {
		t.Errorf("check-ins sent: %d", len(api.checkIns))
	}
}

func TestCheckInOfflineThenSync(t *testing.T) {
	s, api := newStation(t)
	ctx := context.Background()
	if _, err := s.RefreshGallery(ctx); err != nil {
		t.Fatal(err)
	}

	api.down = true
	res, err := s.CheckIn(ctx, []float32{0, 1, 0}, "")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Queued || res.ItemID == 0 {
		t.Fatalf("result = %+v", res)
	}

	fr, err := s.Sync(ctx, nil)
	if err != nil || fr.Failed != 1 || fr.Processed != 0 {
		t.Fatalf("offline sync = %+v, %v", fr, err)
	}

	api.down = false
	var seen int
	fr, err = s.Sync(ctx, func(syncqueue.Item, error) { seen++ })
	if err != nil || fr.Processed != 1 || seen != 1 {
		t.Fatalf("sync = %+v, %v (seen %d)", fr, err, seen)
	}
	m := api.replayed[0]
	if m.Table != mutation.TableAttendance || m.Op != mutation.OpInsert {
		t.Errorf("replayed = %+v", m)
	}
	var in attendance.CheckIn
	if err := json.Unmarshal(m.Payload, &in); err != nil {
		t.Fatal(err)
	}
	if in.Method != attendance.MethodOffline || in.StaffID != "s-bob" || in.At == nil || in.RecordID != m.RecordID {
		t.Errorf("queued payload = %+v", in)
	}
}
