package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
	"staffattend/internal/face"
	"staffattend/internal/logger"
	"staffattend/internal/metrics"
)

// Policy decides present/late/early-departure from wall-clock times.
type Policy struct {
	Location  *time.Location
	Start     time.Duration // offset from local midnight
	End       time.Duration
	LateGrace time.Duration
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// NewPolicy builds a policy from "HH:MM" strings.
func NewPolicy(loc *time.Location, start, end string, grace time.Duration) (Policy, error) {
	if loc == nil {
		loc = time.UTC
	}
	s, err := ParseClock(start)
	if err != nil {
		return Policy{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Policy{}, err
	}
	if e <= s {
		return Policy{}, fmt.Errorf("workday end %s must be after start %s", end, start)
	}
	return Policy{Location: loc, Start: s, End: e, LateGrace: grace}, nil
}

// sinceMidnight reads the local wall clock, so DST transition days do not
// shift the workday by an hour.
func (p Policy) sinceMidnight(at time.Time) time.Duration {
	local := at.In(p.Location)
	return time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second + time.Duration(local.Nanosecond())
}

// Date returns the local calendar date of at.
func (p Policy) Date(at time.Time) string {
	return at.In(p.Location).Format(DateLayout)
}

// ArrivalStatus classifies a check-in time.
func (p Policy) ArrivalStatus(at time.Time) Status {
	if p.sinceMidnight(at) <= p.Start+p.LateGrace {
		return StatusPresent
	}
	return StatusLate
}

// LeftEarly reports whether a check-out happens before the workday ends.
func (p Policy) LeftEarly(at time.Time) bool {
	return p.sinceMidnight(at) < p.End
}

// Service coordinates enrollment, recognition and attendance rules.
type Service struct {
	store   Store
	matcher face.Matcher
	policy  Policy
	now     func() time.Time
}

// NewService creates a service backed by a store.
func NewService(store Store, matcher face.Matcher, policy Policy) *Service {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	return &Service{store: store, matcher: matcher, policy: policy, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Policy returns the attendance policy in effect.
func (s *Service) Policy() Policy {
	return s.policy
}

// Matcher returns the configured matcher.
func (s *Service) Matcher() face.Matcher {
	return s.matcher
}

// Now reads the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// CreateStaff validates and stores a new staff member.
func (s *Service) CreateStaff(ctx context.Context, st *Staff) error {
	st.StaffNo = strings.TrimSpace(st.StaffNo)
	st.Name = strings.TrimSpace(st.Name)
	st.Email = strings.TrimSpace(st.Email)
	if st.EmploymentStatus == "" {
		st.EmploymentStatus = EmploymentActive
	}
	st.EnrollmentStatus = EnrollmentPending
	if err := validateStaff(st); err != nil {
		return err
	}
	if len(st.Embedding) > 0 {
		if err := s.validateEmbedding(st.Embedding); err != nil {
			return err
		}
	}
	if err := s.store.CreateStaff(ctx, st); err != nil {
		return err
	}
	if len(st.Embedding) == 0 {
		return nil
	}
	if err := s.Enroll(ctx, st.ID, st.Embedding, st.PhotoURL); err != nil {
		// A staff member is created enrolled or not at all.
		if derr := s.store.DeleteStaff(context.WithoutCancel(ctx), st.ID); derr != nil {
			logger.Error().Err(derr).Str("staff_id", st.ID).Msg("remove half-created staff failed")
		}
		return err
	}
	st.EnrollmentStatus = EnrollmentEnrolled
	return nil
}

func validateStaff(st *Staff) error {
	switch {
	case st.StaffNo == "":
		return apperrors.Validation("staff_no is required")
	case st.Name == "":
		return apperrors.Validation("name is required")
	case st.Email != "" && !strings.Contains(st.Email, "@"):
		return apperrors.Validation("email is invalid")
	case !st.EmploymentStatus.Valid():
		return apperrors.Validation("employment_status is invalid")
	}
	return nil
}

// GetStaff returns one staff member.
func (s *Service) GetStaff(ctx context.Context, id string) (*Staff, error) {
	return s.store.GetStaff(ctx, id)
}

// ListStaff returns staff matching the filter.
func (s *Service) ListStaff(ctx context.Context, f StaffFilter) ([]Staff, error) {
	if f.EmploymentStatus != "" && !f.EmploymentStatus.Valid() {
		return nil, apperrors.Validation("employment_status is invalid")
	}
	if f.EnrollmentStatus != "" && !f.EnrollmentStatus.Valid() {
		return nil, apperrors.Validation("enrollment_status is invalid")
	}
	if err := validID("department_id", f.DepartmentID); err != nil {
		return nil, err
	}
	return s.store.ListStaff(ctx, f)
}

// UpdateStaff applies a partial update. A non-empty embedding re-enrolls.
func (s *Service) UpdateStaff(ctx context.Context, id string, p StaffPatch) (*Staff, error) {
	st, err := s.store.GetStaff(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.StaffNo != nil {
		st.StaffNo = strings.TrimSpace(*p.StaffNo)
	}
	if p.Name != nil {
		st.Name = strings.TrimSpace(*p.Name)
	}
	if p.Email != nil {
		st.Email = strings.TrimSpace(*p.Email)
	}
	if p.DepartmentID != nil {
		if *p.DepartmentID == "" {
			st.DepartmentID = nil
		} else {
			st.DepartmentID = p.DepartmentID
		}
	}
	if p.EmploymentStatus != nil {
		st.EmploymentStatus = *p.EmploymentStatus
	}
	if p.PhotoURL != nil {
		st.PhotoURL = *p.PhotoURL
	}
	if err := validateStaff(st); err != nil {
		return nil, err
	}
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return nil, err
	}
	if len(p.Embedding) > 0 {
		if err := s.Enroll(ctx, id, p.Embedding, ""); err != nil {
			return nil, err
		}
	}
	return s.store.GetStaff(ctx, id)
}

// DeleteStaff removes a staff member.
func (s *Service) DeleteStaff(ctx context.Context, id string) error {
	return s.store.DeleteStaff(ctx, id)
}

// Enroll attaches a face embedding to a staff member.
func (s *Service) Enroll(ctx context.Context, staffID string, embedding []float32, photoURL string) error {
	if err := s.validateEmbedding(embedding); err != nil {
		return err
	}
	at := s.now().UTC()
	if err := s.store.SetEmbedding(ctx, staffID, embedding, photoURL, &at); err != nil {
		return err
	}
	metrics.Enrollments.Inc()
	return nil
}

func (s *Service) validateEmbedding(embedding []float32) error {
	if err := face.Validate(embedding, s.matcher.Dim); err != nil {
		if errors.Is(err, face.ErrEmptyEmbedding) {
			return apperrors.New(apperrors.ErrNoFace, "no face embedding supplied")
		}
		return apperrors.Validation(err.Error())
	}
	return nil
}

// Unenroll removes a staff member's face embedding.
func (s *Service) Unenroll(ctx context.Context, staffID string) error {
	return s.store.SetEmbedding(ctx, staffID, nil, "", nil)
}

// Gallery returns the enrolled embeddings recognition runs against.
func (s *Service) Gallery(ctx context.Context) ([]face.Candidate, error) {
	return s.store.Gallery(ctx)
}

// Recognition is the result of matching a probe embedding.
type Recognition struct {
	Match   face.Match `json:"match"`
	Record  *Record    `json:"record,omitempty"`
	Created bool       `json:"created"`
}

// Recognize matches a probe against the gallery and checks the best match in.
// A match below the threshold returns ErrLowConfidence alongside the result.
func (s *Service) Recognize(ctx context.Context, probe []float32, deviceID, imageURL string) (Recognition, error) {
	gallery, err := s.store.Gallery(ctx)
	if err != nil {
		return Recognition{}, err
	}

	match, err := s.matcher.Best(probe, gallery)
	switch {
	case errors.Is(err, face.ErrEmptyEmbedding):
		metrics.MatchOutcomes.WithLabelValues("no_face").Inc()
		return Recognition{}, apperrors.New(apperrors.ErrNoFace, "no face detected")
	case errors.Is(err, face.ErrNoCandidates):
		metrics.MatchOutcomes.WithLabelValues("no_gallery").Inc()
		return Recognition{}, apperrors.New(apperrors.ErrNotEnrolled, "no enrolled staff to match against")
	case err != nil:
		return Recognition{}, apperrors.Validation(err.Error())
	}

	res := Recognition{Match: match}
	if !match.Matched {
		metrics.MatchOutcomes.WithLabelValues("low_confidence").Inc()
		return res, apperrors.New(apperrors.ErrLowConfidence,
			fmt.Sprintf("best match similarity %.2f is below threshold %.2f", match.Similarity, s.matcher.Threshold))
	}
	metrics.MatchOutcomes.WithLabelValues("matched").Inc()

	confidence := match.Similarity
	rec, created, err := s.CheckIn(ctx, CheckIn{
		StaffID:    match.StaffID,
		Method:     MethodFace,
		Confidence: &confidence,
		DeviceID:   deviceID,
		ImageURL:   imageURL,
	})
	if err != nil {
		return res, err
	}
	res.Record, res.Created = &rec, created
	return res, nil
}

// CheckIn describes one check-in attempt.
type CheckIn struct {
	RecordID   string     `json:"record_id,omitempty"`
	StaffID    string     `json:"staff_id"`
	At         *time.Time `json:"at,omitempty"`
	Method     Method     `json:"method"`
	Confidence *float64   `json:"confidence,omitempty"`
	DeviceID   string     `json:"device_id,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// CheckIn records arrival. A staff member has at most one record per date; a
// repeated check-in returns the existing record with created=false. An absent
// record is upgraded to an arrival.
func (s *Service) CheckIn(ctx context.Context, in CheckIn) (Record, bool, error) {
	if in.StaffID == "" {
		return Record{}, false, apperrors.Validation("staff_id is required")
	}
	if in.Method == "" {
		in.Method = MethodManual
	}
	if !in.Method.Valid() {
		return Record{}, false, apperrors.Validation("method is invalid")
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return Record{}, false, apperrors.Validation("confidence must be between 0 and 1")
	}

	st, err := s.store.GetStaff(ctx, in.StaffID)
	if err != nil {
		return Record{}, false, err
	}
	if st.EmploymentStatus != EmploymentActive {
		return Record{}, false, apperrors.Validation(fmt.Sprintf("staff member %s is %s", st.StaffNo, st.EmploymentStatus))
	}

	at := s.now().UTC()
	if in.At != nil {
		at = in.At.UTC()
	}
	date := s.policy.Date(at)
	status := s.policy.ArrivalStatus(at)

	existing, err := s.store.FindRecord(ctx, st.ID, date)
	if err != nil {
		return Record{}, false, err
	}
	if existing != nil {
		if existing.Status != StatusAbsent {
			return *existing, false, nil
		}
		existing.CheckInAt = &at
		existing.Status = status
		existing.Method = in.Method
		existing.Confidence = in.Confidence
		existing.DeviceID = in.DeviceID
		existing.ImageURL = in.ImageURL
		if in.Notes != "" {
			existing.Notes = in.Notes
		}
		if err := s.store.UpdateRecord(ctx, existing); err != nil {
			return Record{}, false, err
		}
		metrics.CheckIns.WithLabelValues(string(in.Method), string(status)).Inc()
		return *existing, true, nil
	}

	rec := Record{
		ID:         in.RecordID,
		StaffID:    st.ID,
		StaffName:  st.Name,
		Date:       date,
		CheckInAt:  &at,
		Status:     status,
		Method:     in.Method,
		Confidence: in.Confidence,
		DeviceID:   in.DeviceID,
		ImageURL:   in.ImageURL,
		Notes:      in.Notes,
	}
	if err := s.store.InsertRecord(ctx, &rec); err != nil {
		return Record{}, false, err
	}
	metrics.CheckIns.WithLabelValues(string(in.Method), string(status)).Inc()
	return rec, true, nil
}

// CheckOut records departure for the staff member's record on the date of at.
func (s *Service) CheckOut(ctx context.Context, staffID string, at *time.Time) (Record, error) {
	when := s.now().UTC()
	if at != nil {
		when = at.UTC()
	}
	if _, err := uuid.Parse(staffID); err != nil {
		return Record{}, apperrors.NotFound("staff not found")
	}
	rec, err := s.store.FindRecord(ctx, staffID, s.policy.Date(when))
	if err != nil {
		return Record{}, err
	}
	if rec == nil {
		return Record{}, apperrors.NotFound("no check-in recorded for this date")
	}
	return s.checkOut(ctx, rec, when)
}

// CheckOutRecord records departure on a specific record.
func (s *Service) CheckOutRecord(ctx context.Context, recordID string, at time.Time) (Record, error) {
	rec, err := s.store.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	return s.checkOut(ctx, rec, at.UTC())
}

func (s *Service) checkOut(ctx context.Context, rec *Record, at time.Time) (Record, error) {
	if rec.Status == StatusAbsent || rec.CheckInAt == nil {
		return Record{}, apperrors.Validation("cannot check out without a check-in")
	}
	if at.Before(*rec.CheckInAt) {
		return Record{}, apperrors.Validation("check-out is before check-in")
	}
	rec.CheckOutAt = &at
	if s.policy.LeftEarly(at) {
		rec.Status = StatusEarlyDeparture
	} else {
		rec.Status = s.policy.ArrivalStatus(*rec.CheckInAt)
	}
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// Correction overrides status or notes on an existing record.
type Correction struct {
	Status *Status `json:"status,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// CorrectRecord applies a manual correction.
func (s *Service) CorrectRecord(ctx context.Context, id string, c Correction) (Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if c.Status != nil {
		if !c.Status.Valid() {
			return Record{}, apperrors.Validation("status is invalid")
		}
		rec.Status = *c.Status
	}
	if c.Notes != nil {
		rec.Notes = *c.Notes
	}
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// GetRecord returns one attendance record.
func (s *Service) GetRecord(ctx context.Context, id string) (*Record, error) {
	return s.store.GetRecord(ctx, id)
}

// DeleteRecord removes an attendance record.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	return s.store.DeleteRecord(ctx, id)
}

// MarkAbsent inserts absent records for every active staff member with no
// record on date. It returns how many were inserted.
func (s *Service) MarkAbsent(ctx context.Context, date string) (int, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return 0, apperrors.Validation("date must be YYYY-MM-DD")
	}
	missing, err := s.store.StaffWithoutRecord(ctx, date)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, st := range missing {
		rec := Record{StaffID: st.ID, Date: date, Status: StatusAbsent, Method: MethodManual}
		if err := s.store.InsertRecord(ctx, &rec); err != nil {
			if errors.Is(err, apperrors.ErrConflict) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// History returns records matching the filter.
func (s *Service) History(ctx context.Context, f Filter) ([]Record, error) {
	if err := ValidateFilter(f); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, f)
}

// ValidateFilter checks dates and enum values of a history filter.
func ValidateFilter(f Filter) error {
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return apperrors.Validation("dates must be YYYY-MM-DD")
		}
	}
	if f.From != "" && f.To != "" && f.From > f.To {
		return apperrors.Validation("from must not be after to")
	}
	if f.Status != "" && !f.Status.Valid() {
		return apperrors.Validation("status is invalid")
	}
	if f.Method != "" && !f.Method.Valid() {
		return apperrors.Validation("method is invalid")
	}
	if err := validID("staff_id", f.StaffID); err != nil {
		return err
	}
	return validID("department_id", f.DepartmentID)
}

// validID accepts an empty filter value or a UUID.
func validID(field, v string) error {
	if v == "" {
		return nil
	}
	if _, err := uuid.Parse(v); err != nil {
		return apperrors.Validation(field + " must be a UUID")
	}
	return nil
}

// Summary counts records per status in an inclusive date range. Every status
// is present in the result.
func (s *Service) Summary(ctx context.Context, from, to string) (map[Status]int, error) {
	if err := ValidateFilter(Filter{From: from, To: to}); err != nil {
		return nil, err
	}
	counts, err := s.store.CountByStatus(ctx, from, to)
	if err != nil {
		return nil, err
	}
	for _, st := range AllStatuses {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}
