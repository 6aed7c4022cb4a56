// Package mutation defines the write operations a capture station buffers
// while offline and the server-side applier that replays them.
package mutation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"staffattend/internal/apperrors"
)

// Op is the kind of write.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

func (o Op) Valid() bool {
	return o == OpInsert || o == OpUpdate || o == OpDelete
}

// Tables that accept replayed writes.
const (
	TableAttendance  = "attendance_records"
	TableStaff       = "staff"
	TableDepartments = "departments"
	TableCourses     = "courses"
	TableStudents    = "students"
	TableEnrollments = "enrollments"
)

var tables = map[string]bool{
	TableAttendance:  true,
	TableStaff:       true,
	TableDepartments: true,
	TableCourses:     true,
	TableStudents:    true,
	TableEnrollments: true,
}

// Mutation is one buffered write against a table, keyed by the record id
// the client assigned.
type Mutation struct {
	Table    string          `json:"table"`
	RecordID string          `json:"record_id"`
	Op       Op              `json:"op"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// New builds a mutation, marshalling payload to JSON.
func New(table, recordID string, op Op, payload any) (Mutation, error) {
	m := Mutation{Table: table, RecordID: recordID, Op: op}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Mutation{}, fmt.Errorf("marshal %s payload: %w", table, err)
		}
		m.Payload = raw
	}
	return m, m.Validate()
}

// Validate rejects mutations that could never be applied.
func (m Mutation) Validate() error {
	if !tables[m.Table] {
		return apperrors.Validation(fmt.Sprintf("table %q is not syncable", m.Table))
	}
	if !m.Op.Valid() {
		return apperrors.Validation(fmt.Sprintf("operation %q is invalid", m.Op))
	}
	if _, err := uuid.Parse(m.RecordID); err != nil {
		return apperrors.Validation("record_id must be a uuid")
	}
	if m.Op != OpDelete && len(m.Payload) == 0 {
		return apperrors.Validation(string(m.Op) + " requires a payload")
	}
	if len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return apperrors.Validation("payload is not valid JSON")
	}
	return nil
}

// Result reports the outcome of one replayed mutation.
type Result struct {
	RecordID string `json:"record_id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Code     string `json:"code,omitempty"`
}
