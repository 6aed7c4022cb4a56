package attendance

import (
	"context"
	"time"

	"staffattend/internal/face"
)

// Store persists staff and attendance records. Lookups of a missing row
// return an error wrapping apperrors.ErrNotFound.
type Store interface {
	CreateStaff(ctx context.Context, s *Staff) error
	GetStaff(ctx context.Context, id string) (*Staff, error)
	GetStaffByNo(ctx context.Context, staffNo string) (*Staff, error)
	ListStaff(ctx context.Context, f StaffFilter) ([]Staff, error)
	UpdateStaff(ctx context.Context, s *Staff) error
	DeleteStaff(ctx context.Context, id string) error
	SetEmbedding(ctx context.Context, id string, embedding []float32, photoURL string, enrolledAt *time.Time) error
	Gallery(ctx context.Context) ([]face.Candidate, error)

	// FindRecord returns nil, nil when the staff member has no record on date.
	FindRecord(ctx context.Context, staffID, date string) (*Record, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	InsertRecord(ctx context.Context, r *Record) error
	UpdateRecord(ctx context.Context, r *Record) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, f Filter) ([]Record, error)
	CountByStatus(ctx context.Context, from, to string) (map[Status]int, error)
	// StaffWithoutRecord lists active staff with no record on date.
	StaffWithoutRecord(ctx context.Context, date string) ([]Staff, error)
}

// CaptureStore persists asynchronous recognition jobs.
type CaptureStore interface {
	InsertCapture(ctx context.Context, c *Capture) error
	GetCapture(ctx context.Context, id string) (*Capture, error)
	UpdateCapture(ctx context.Context, c *Capture) error
}

// DeviceStore persists registered capture stations and their refresh tokens.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error
	// ConsumeRefreshToken revokes token and reports whether it was valid.
	ConsumeRefreshToken(ctx context.Context, token string) (bool, error)
}
