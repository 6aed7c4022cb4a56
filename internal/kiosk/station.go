// Package kiosk drives a capture station: it matches faces against a locally
// cached gallery and buffers writes in the sync queue while the API is down.
package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/auth"
	"staffattend/internal/backend"
	"staffattend/internal/face"
	"staffattend/internal/logger"
	"staffattend/internal/mutation"
	"staffattend/internal/syncqueue"
)

const (
	metaDeviceID  = "device_id"
	metaTokens    = "tokens"
	metaThreshold = "match_threshold"
	metaDim       = "embedding_dim"
)

// API is the part of the backend client a station uses.
type API interface {
	Register(ctx context.Context, deviceID string) (auth.TokenPair, error)
	Gallery(ctx context.Context) (backend.Gallery, error)
	Enroll(ctx context.Context, staffID string, embedding []float32, photoURL string) (attendance.Staff, error)
	CheckIn(ctx context.Context, in attendance.CheckIn) (attendance.Record, bool, error)
	Replay(ctx context.Context, m mutation.Mutation) error
}

// Station is one capture station bound to its local queue database.
type Station struct {
	api   API
	queue *syncqueue.Queue
	now   func() time.Time
}

// New creates a station.
func New(api API, q *syncqueue.Queue) *Station {
	return &Station{api: api, queue: q, now: time.Now}
}

// SetClock overrides the time source.
func (s *Station) SetClock(now func() time.Time) { s.now = now }

// DeviceID returns the registered device id, or "" before registration.
func (s *Station) DeviceID(ctx context.Context) (string, error) {
	return s.queue.Meta(ctx, metaDeviceID)
}

// Register registers the station under deviceID and remembers it.
func (s *Station) Register(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return apperrors.Validation("device id is required")
	}
	if _, err := s.api.Register(ctx, deviceID); err != nil {
		return err
	}
	return s.queue.SetMeta(ctx, metaDeviceID, deviceID)
}

// SaveTokens persists a token pair. Wire it to backend.Client.OnTokens.
func (s *Station) SaveTokens(ctx context.Context, pair auth.TokenPair) error {
	raw, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	return s.queue.SetMeta(ctx, metaTokens, string(raw))
}

// Tokens returns the stored token pair; ok is false when none was saved.
func (s *Station) Tokens(ctx context.Context) (pair auth.TokenPair, ok bool, err error) {
	raw, err := s.queue.Meta(ctx, metaTokens)
	if err != nil || raw == "" {
		return pair, false, err
	}
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return pair, false, fmt.Errorf("decode stored tokens: %w", err)
	}
	return pair, true, nil
}

// RefreshGallery downloads the enrolled embeddings and the server's match
// settings, replacing the local cache. It returns the number of candidates.
func (s *Station) RefreshGallery(ctx context.Context) (int, error) {
	g, err := s.api.Gallery(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.queue.ReplaceGallery(ctx, g.Candidates); err != nil {
		return 0, err
	}
	if err := s.queue.SetMeta(ctx, metaThreshold, strconv.FormatFloat(g.Threshold, 'f', -1, 64)); err != nil {
		return 0, err
	}
	if err := s.queue.SetMeta(ctx, metaDim, strconv.Itoa(g.Dim)); err != nil {
		return 0, err
	}
	return len(g.Candidates), nil
}

// GalleryInfo describes the local gallery cache.
type GalleryInfo struct {
	Candidates  int
	Threshold   float64
	Dim         int
	RefreshedAt time.Time
}

// Gallery returns the cached candidates and a matcher using the cached
// settings. It fails when the gallery was never downloaded.
func (s *Station) Gallery(ctx context.Context) ([]face.Candidate, face.Matcher, GalleryInfo, error) {
	candidates, refreshed, err := s.queue.Gallery(ctx)
	if err != nil {
		return nil, face.Matcher{}, GalleryInfo{}, err
	}
	if refreshed.IsZero() {
		return nil, face.Matcher{}, GalleryInfo{}, apperrors.New(apperrors.ErrNotEnrolled, "gallery not downloaded, run gallery refresh")
	}

	var threshold float64
	if v, err := s.queue.Meta(ctx, metaThreshold); err != nil {
		return nil, face.Matcher{}, GalleryInfo{}, err
	} else if v != "" {
		threshold, _ = strconv.ParseFloat(v, 64)
	}
	var dim int
	if v, err := s.queue.Meta(ctx, metaDim); err != nil {
		return nil, face.Matcher{}, GalleryInfo{}, err
	} else if v != "" {
		dim, _ = strconv.Atoi(v)
	}

	m := face.NewMatcher(threshold, dim)
	info := GalleryInfo{Candidates: len(candidates), Threshold: m.Threshold, Dim: dim, RefreshedAt: refreshed}
	return candidates, m, info, nil
}

// Enroll attaches an embedding to a staff member. Enrollment needs the API.
func (s *Station) Enroll(ctx context.Context, staffID string, embedding []float32, photoURL string) (attendance.Staff, error) {
	if staffID == "" {
		return attendance.Staff{}, apperrors.Validation("staff id is required")
	}
	return s.api.Enroll(ctx, staffID, embedding, photoURL)
}

// CheckInResult is the outcome of a station check-in.
type CheckInResult struct {
	Match   face.Match
	Record  attendance.Record
	Created bool
	// Queued is set when the API was unreachable and the check-in was
	// buffered for the next sync.
	Queued bool
	ItemID int64
}

// CheckIn matches probe against the cached gallery and records the arrival.
// Below-threshold matches return ErrLowConfidence with the match filled in.
// When the API is unreachable the check-in is queued with method offline.
func (s *Station) CheckIn(ctx context.Context, probe []float32, imageURL string) (CheckInResult, error) {
	candidates, matcher, _, err := s.Gallery(ctx)
	if err != nil {
		return CheckInResult{}, err
	}
	match, err := matcher.Best(probe, candidates)
	switch {
	case errors.Is(err, face.ErrEmptyEmbedding):
		return CheckInResult{}, apperrors.New(apperrors.ErrNoFace, "no face detected")
	case errors.Is(err, face.ErrNoCandidates):
		return CheckInResult{}, apperrors.New(apperrors.ErrNotEnrolled, "no enrolled staff to match against")
	case err != nil:
		return CheckInResult{}, apperrors.Validation(err.Error())
	}
	res := CheckInResult{Match: match}
	if !match.Matched {
		return res, apperrors.New(apperrors.ErrLowConfidence,
			fmt.Sprintf("best match similarity %.2f is below threshold %.2f", match.Similarity, matcher.Threshold))
	}

	deviceID, err := s.DeviceID(ctx)
	if err != nil {
		return res, err
	}
	at := s.now().UTC()
	confidence := match.Similarity
	in := attendance.CheckIn{
		RecordID:   uuid.NewString(),
		StaffID:    match.StaffID,
		At:         &at,
		Method:     attendance.MethodFace,
		Confidence: &confidence,
		DeviceID:   deviceID,
		ImageURL:   imageURL,
	}

	res.Record, res.Created, err = s.api.CheckIn(ctx, in)
	if err == nil || !errors.Is(err, apperrors.ErrBackendUnavailable) {
		return res, err
	}

	logger.Warn().Err(err).Str("staff_id", match.StaffID).Msg("backend unreachable, queueing check-in")
	in.Method = attendance.MethodOffline
	m, err := mutation.New(mutation.TableAttendance, in.RecordID, mutation.OpInsert, in)
	if err != nil {
		return res, err
	}
	item, err := s.queue.Enqueue(ctx, m)
	if err != nil {
		return res, err
	}
	res.Queued, res.ItemID = true, item.ID
	return res, nil
}

// Sync replays queued writes. onItem is called after each item.
func (s *Station) Sync(ctx context.Context, onItem func(syncqueue.Item, error)) (syncqueue.FlushResult, error) {
	return s.queue.Flush(ctx, s.api, onItem)
}
