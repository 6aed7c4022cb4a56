package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"staffattend/internal/face"
	"staffattend/internal/store"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ Store        = (*Repository)(nil)
	_ CaptureStore = (*Repository)(nil)
	_ DeviceStore  = (*Repository)(nil)
)

const staffColumns = `id, staff_no, name, email, department_id, employment_status, enrollment_status,
	face_embedding, photo_url, enrolled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaff(row rowScanner) (Staff, error) {
	var (
		s   Staff
		vec *pgvector.Vector
	)
	err := row.Scan(&s.ID, &s.StaffNo, &s.Name, &s.Email, &s.DepartmentID, &s.EmploymentStatus,
		&s.EnrollmentStatus, &vec, &s.PhotoURL, &s.EnrolledAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Staff{}, err
	}
	if vec != nil {
		s.Embedding = vec.Slice()
	}
	return s, nil
}

// CreateStaff inserts a staff member, generating an id when empty.
func (r *Repository) CreateStaff(ctx context.Context, s *Staff) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, staff_no, name, email, department_id, employment_status, enrollment_status, photo_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at
	`, s.ID, s.StaffNo, s.Name, s.Email, s.DepartmentID, s.EmploymentStatus, s.EnrollmentStatus, s.PhotoURL)
	return store.MapError(row.Scan(&s.CreatedAt, &s.UpdatedAt), "staff")
}

// GetStaff returns a staff member by id.
func (r *Repository) GetStaff(ctx context.Context, id string) (*Staff, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.MapError(sql.ErrNoRows, "staff")
	}
	s, err := scanStaff(r.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id))
	if err != nil {
		return nil, store.MapError(err, "staff")
	}
	return &s, nil
}

// GetStaffByNo returns a staff member by natural key.
func (r *Repository) GetStaffByNo(ctx context.Context, staffNo string) (*Staff, error) {
	s, err := scanStaff(r.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE staff_no = $1`, staffNo))
	if err != nil {
		return nil, store.MapError(err, "staff")
	}
	return &s, nil
}

// ListStaff returns staff ordered by staff number.
func (r *Repository) ListStaff(ctx context.Context, f StaffFilter) ([]Staff, error) {
	q := newQuery(`SELECT ` + staffColumns + ` FROM staff`)
	if f.DepartmentID != "" {
		q.where("department_id = ?", f.DepartmentID)
	}
	if f.EmploymentStatus != "" {
		q.where("employment_status = ?", f.EmploymentStatus)
	}
	if f.EnrollmentStatus != "" {
		q.where("enrollment_status = ?", f.EnrollmentStatus)
	}
	if f.Search != "" {
		q.where("(name ILIKE ? OR staff_no ILIKE ?)", "%"+f.Search+"%", "%"+f.Search+"%")
	}
	query, args := q.build("staff_no ASC", f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.MapError(err, "staff")
	}
	defer rows.Close()

	var res []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateStaff writes the editable staff fields.
func (r *Repository) UpdateStaff(ctx context.Context, s *Staff) error {
	row := r.db.QueryRowContext(ctx, `
		UPDATE staff
		SET staff_no = $2, name = $3, email = $4, department_id = $5, employment_status = $6,
			photo_url = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, s.ID, s.StaffNo, s.Name, s.Email, s.DepartmentID, s.EmploymentStatus, s.PhotoURL)
	return store.MapError(row.Scan(&s.UpdatedAt), "staff")
}

// DeleteStaff removes a staff member and, by cascade, their records.
func (r *Repository) DeleteStaff(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return store.MapError(err, "staff")
	}
	return store.RequireAffected(res, "staff")
}

// SetEmbedding stores or, with a nil embedding, clears a face enrollment.
func (r *Repository) SetEmbedding(ctx context.Context, id string, embedding []float32, photoURL string, enrolledAt *time.Time) error {
	var (
		vec    any
		status = EnrollmentPending
	)
	if len(embedding) > 0 {
		vec = pgvector.NewVector(embedding)
		status = EnrollmentEnrolled
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE staff
		SET face_embedding = $2, enrollment_status = $3, enrolled_at = $4,
			photo_url = COALESCE(NULLIF($5, ''), photo_url), updated_at = NOW()
		WHERE id = $1
	`, id, vec, status, enrolledAt, photoURL)
	if err != nil {
		return store.MapError(err, "staff")
	}
	return store.RequireAffected(res, "staff")
}

// Gallery returns every active, enrolled staff embedding.
func (r *Repository) Gallery(ctx context.Context) ([]face.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, face_embedding
		FROM staff
		WHERE enrollment_status = 'enrolled' AND employment_status = 'active' AND face_embedding IS NOT NULL
		ORDER BY staff_no
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []face.Candidate
	for rows.Next() {
		var (
			c   face.Candidate
			vec pgvector.Vector
		)
		if err := rows.Scan(&c.StaffID, &c.Name, &vec); err != nil {
			return nil, err
		}
		c.Embedding = vec.Slice()
		res = append(res, c)
	}
	return res, rows.Err()
}

const recordColumns = `a.id, a.staff_id, s.name, a.date, a.check_in_at, a.check_out_at, a.status, a.method,
	a.confidence, a.device_id, a.image_url, a.notes, a.created_at`

const recordFrom = ` FROM attendance_records a JOIN staff s ON s.id = a.staff_id`

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec  Record
		date time.Time
	)
	err := row.Scan(&rec.ID, &rec.StaffID, &rec.StaffName, &date, &rec.CheckInAt, &rec.CheckOutAt, &rec.Status,
		&rec.Method, &rec.Confidence, &rec.DeviceID, &rec.ImageURL, &rec.Notes, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Date = date.Format(DateLayout)
	return rec, nil
}

// FindRecord returns the record for a staff member on a date, or nil.
func (r *Repository) FindRecord(ctx context.Context, staffID, date string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+recordFrom+` WHERE a.staff_id = $1 AND a.date = $2`, staffID, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, store.MapError(err, "attendance record")
	}
	return &rec, nil
}

// GetRecord returns a single record by id.
func (r *Repository) GetRecord(ctx context.Context, id string) (*Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.MapError(sql.ErrNoRows, "attendance record")
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+recordFrom+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, store.MapError(err, "attendance record")
	}
	return &rec, nil
}

// InsertRecord writes a new record.
func (r *Repository) InsertRecord(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, staff_id, date, check_in_at, check_out_at, status, method, confidence, device_id, image_url, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`, rec.ID, rec.StaffID, rec.Date, rec.CheckInAt, rec.CheckOutAt, rec.Status, rec.Method, rec.Confidence,
		rec.DeviceID, rec.ImageURL, rec.Notes)
	return store.MapError(row.Scan(&rec.CreatedAt), "attendance record")
}

// UpdateRecord writes the mutable record fields.
func (r *Repository) UpdateRecord(ctx context.Context, rec *Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET check_in_at = $2, check_out_at = $3, status = $4, method = $5, confidence = $6,
			device_id = $7, image_url = $8, notes = $9
		WHERE id = $1
	`, rec.ID, rec.CheckInAt, rec.CheckOutAt, rec.Status, rec.Method, rec.Confidence, rec.DeviceID, rec.ImageURL, rec.Notes)
	if err != nil {
		return store.MapError(err, "attendance record")
	}
	return store.RequireAffected(res, "attendance record")
}

// DeleteRecord removes a record.
func (r *Repository) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id)
	if err != nil {
		return store.MapError(err, "attendance record")
	}
	return store.RequireAffected(res, "attendance record")
}

// ListRecords returns records with basic filters, newest first.
func (r *Repository) ListRecords(ctx context.Context, f Filter) ([]Record, error) {
	q := newQuery(`SELECT ` + recordColumns + recordFrom)
	applyRecordFilter(q, f)
	query, args := q.build("a.date DESC, a.check_in_at DESC NULLS LAST", f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.MapError(err, "attendance record")
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func applyRecordFilter(q *query, f Filter) {
	if f.From != "" {
		q.where("a.date >= ?", f.From)
	}
	if f.To != "" {
		q.where("a.date <= ?", f.To)
	}
	if f.StaffID != "" {
		q.where("a.staff_id = ?", f.StaffID)
	}
	if f.DepartmentID != "" {
		q.where("s.department_id = ?", f.DepartmentID)
	}
	if f.Status != "" {
		q.where("a.status = ?", f.Status)
	}
	if f.Method != "" {
		q.where("a.method = ?", f.Method)
	}
}

// CountByStatus counts records per status within an inclusive date range.
func (r *Repository) CountByStatus(ctx context.Context, from, to string) (map[Status]int, error) {
	q := newQuery(`SELECT a.status, COUNT(*)` + recordFrom)
	applyRecordFilter(q, Filter{From: from, To: to})
	query, args := q.build("", 0, 0)
	query = strings.Replace(query, " ORDER BY", " GROUP BY a.status ORDER BY", 1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int, len(AllStatuses))
	for rows.Next() {
		var (
			st Status
			n  int
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// StaffWithoutRecord lists active staff with no record on date.
func (r *Repository) StaffWithoutRecord(ctx context.Context, date string) ([]Staff, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff s
		WHERE s.employment_status = 'active'
		  AND NOT EXISTS (SELECT 1 FROM attendance_records a WHERE a.staff_id = s.id AND a.date = $1)
		ORDER BY s.staff_no
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// InsertCapture stores a pending recognition job.
func (r *Repository) InsertCapture(ctx context.Context, c *Capture) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CapturePending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO captures (id, device_id, image_url, status)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, c.ID, c.DeviceID, c.ImageURL, c.Status)
	return store.MapError(row.Scan(&c.CreatedAt), "capture")
}

// GetCapture returns a single capture by id.
func (r *Repository) GetCapture(ctx context.Context, id string) (*Capture, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.MapError(sql.ErrNoRows, "capture")
	}
	var c Capture
	err := r.db.QueryRowContext(ctx, `
		SELECT id, device_id, image_url, status, staff_id, record_id, score, error, created_at, processed_at
		FROM captures WHERE id = $1
	`, id).Scan(&c.ID, &c.DeviceID, &c.ImageURL, &c.Status, &c.StaffID, &c.RecordID, &c.Score, &c.Error,
		&c.CreatedAt, &c.ProcessedAt)
	if err != nil {
		return nil, store.MapError(err, "capture")
	}
	return &c, nil
}

// UpdateCapture records the outcome of processing.
func (r *Repository) UpdateCapture(ctx context.Context, c *Capture) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE captures
		SET status = $2, staff_id = $3, record_id = $4, score = $5, error = $6, processed_at = $7
		WHERE id = $1
	`, c.ID, c.Status, c.StaffID, c.RecordID, c.Score, c.Error, c.ProcessedAt)
	if err != nil {
		return store.MapError(err, "capture")
	}
	return store.RequireAffected(res, "capture")
}

// UpsertDevice ensures a device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, subject, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (token, subject, expires_at)
		VALUES ($1, $2, $3)
	`, token, subject, expiresAt)
	return err
}

// ConsumeRefreshToken revokes an unexpired token, reporting whether it was live.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND revoked = FALSE AND expires_at > NOW()
	`, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// query builds a SELECT with positional placeholders. Conditions use ? and are
// renumbered to $n in order.
type query struct {
	base    string
	clauses []string
	args    []any
}

func newQuery(base string) *query {
	return &query{base: base}
}

func (q *query) where(cond string, args ...any) {
	for _, a := range args {
		q.args = append(q.args, a)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(q.args)), 1)
	}
	q.clauses = append(q.clauses, cond)
}

func (q *query) build(orderBy string, limit, offset int) (string, []any) {
	sql := q.base
	if len(q.clauses) > 0 {
		sql += " WHERE " + strings.Join(q.clauses, " AND ")
	}
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	} else {
		sql += " ORDER BY 1"
	}
	args := q.args
	if limit > 0 {
		if offset < 0 {
			offset = 0
		}
		sql += " LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
		args = append(args, limit, offset)
	}
	return sql, args
}
