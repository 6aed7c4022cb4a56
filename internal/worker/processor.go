// Package worker recognizes uploaded captures in the background.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"staffattend/internal/apperrors"
	"staffattend/internal/attendance"
	"staffattend/internal/faceclient"
	"staffattend/internal/logger"
	"staffattend/internal/metrics"
	"staffattend/internal/queue"
)

// FaceService turns capture images into embeddings.
type FaceService interface {
	EmbedURL(ctx context.Context, imageURL string) (*faceclient.EmbedResult, error)
	Liveness(ctx context.Context, imageURL string) (*faceclient.LivenessResult, error)
}

// Processor runs recognition for queued captures.
type Processor struct {
	captures attendance.CaptureStore
	att      *attendance.Service
	face     FaceService
	liveness bool
	log      zerolog.Logger
	now      func() time.Time
}

// NewProcessor creates a processor. With liveness set, captures failing the
// anti-spoofing check are marked failed before matching.
func NewProcessor(captures attendance.CaptureStore, att *attendance.Service, face FaceService, liveness bool) *Processor {
	return &Processor{
		captures: captures,
		att:      att,
		face:     face,
		liveness: liveness,
		log:      logger.With("worker"),
		now:      time.Now,
	}
}

// Run processes jobs one at a time until ctx is done or the queue closes.
func (p *Processor) Run(ctx context.Context, q queue.Queue) error {
	jobs, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	p.log.Info().Msg("worker started, waiting for jobs")
	for job := range jobs {
		if job.Kind != queue.KindCapture {
			p.log.Warn().Str("kind", job.Kind).Msg("unknown job kind")
			continue
		}
		if err := p.Handle(ctx, job.CaptureID); err != nil {
			p.log.Error().Err(err).Str("capture_id", job.CaptureID).Msg("capture processing failed")
		}
	}
	p.log.Info().Msg("worker stopped")
	return nil
}

// Handle recognizes one capture and stores the outcome. Captures that are no
// longer pending are skipped, so redelivered jobs are harmless. The returned
// error covers storage failures only; recognition failures are recorded on
// the capture.
func (p *Processor) Handle(ctx context.Context, captureID string) error {
	capture, err := p.captures.GetCapture(ctx, captureID)
	if err != nil {
		return err
	}
	if capture.Status != attendance.CapturePending {
		p.log.Debug().Str("capture_id", captureID).Str("status", string(capture.Status)).Msg("capture already processed")
		return nil
	}

	p.recognize(ctx, capture)

	processed := p.now().UTC()
	capture.ProcessedAt = &processed
	metrics.CaptureJobs.WithLabelValues(string(capture.Status)).Inc()
	if err := p.captures.UpdateCapture(context.WithoutCancel(ctx), capture); err != nil {
		return err
	}
	p.log.Info().Str("capture_id", captureID).Str("status", string(capture.Status)).Msg("capture processed")
	return nil
}

func (p *Processor) recognize(ctx context.Context, capture *attendance.Capture) {
	fail := func(err error) {
		capture.Status = attendance.CaptureFailed
		capture.Error = err.Error()
	}

	if p.liveness {
		live, err := p.face.Liveness(ctx, capture.ImageURL)
		if err != nil {
			fail(err)
			return
		}
		if !live.IsLive {
			fail(errors.New("liveness check failed"))
			return
		}
	}

	emb, err := p.face.EmbedURL(ctx, capture.ImageURL)
	if err != nil {
		fail(err)
		return
	}

	res, err := p.att.Recognize(ctx, emb.Embedding, capture.DeviceID, capture.ImageURL)
	switch {
	case err == nil:
		score := res.Match.Similarity
		capture.Status = attendance.CaptureMatched
		capture.StaffID = &res.Match.StaffID
		capture.RecordID = &res.Record.ID
		capture.Score = &score
	case errors.Is(err, apperrors.ErrLowConfidence):
		score := res.Match.Similarity
		capture.Status = attendance.CaptureUnmatched
		capture.Score = &score
		capture.Error = err.Error()
	case errors.Is(err, apperrors.ErrNotEnrolled):
		capture.Status = attendance.CaptureUnmatched
		capture.Error = err.Error()
	default:
		fail(err)
	}
}
