package attendance

import "time"

// DateLayout is the wire and storage format of attendance dates.
const DateLayout = "2006-01-02"

// EmploymentStatus of a staff member.
type EmploymentStatus string

const (
	EmploymentActive   EmploymentStatus = "active"
	EmploymentInactive EmploymentStatus = "inactive"
	EmploymentOnLeave  EmploymentStatus = "on_leave"
)

func (s EmploymentStatus) Valid() bool {
	switch s {
	case EmploymentActive, EmploymentInactive, EmploymentOnLeave:
		return true
	}
	return false
}

// EnrollmentStatus tells whether a face embedding is on file.
type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentEnrolled EnrollmentStatus = "enrolled"
)

func (s EnrollmentStatus) Valid() bool {
	return s == EnrollmentPending || s == EnrollmentEnrolled
}

// Status of an attendance record.
type Status string

const (
	StatusPresent        Status = "present"
	StatusLate           Status = "late"
	StatusAbsent         Status = "absent"
	StatusEarlyDeparture Status = "early_departure"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusLate, StatusAbsent, StatusEarlyDeparture:
		return true
	}
	return false
}

// AllStatuses lists statuses in display order.
var AllStatuses = []Status{StatusPresent, StatusLate, StatusEarlyDeparture, StatusAbsent}

// Method records how a check-in was verified.
type Method string

const (
	MethodFace    Method = "face"
	MethodManual  Method = "manual"
	MethodOffline Method = "offline"
)

func (m Method) Valid() bool {
	return m == MethodFace || m == MethodManual || m == MethodOffline
}

// Staff is an employee that can be enrolled and checked in.
type Staff struct {
	ID               string           `json:"id"`
	StaffNo          string           `json:"staff_no"`
	Name             string           `json:"name"`
	Email            string           `json:"email,omitempty"`
	DepartmentID     *string          `json:"department_id,omitempty"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	EnrollmentStatus EnrollmentStatus `json:"enrollment_status"`
	Embedding        []float32        `json:"-"`
	PhotoURL         string           `json:"photo_url,omitempty"`
	EnrolledAt       *time.Time       `json:"enrolled_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// StaffPatch carries the fields of a partial staff update. Nil means unchanged.
type StaffPatch struct {
	StaffNo          *string           `json:"staff_no,omitempty"`
	Name             *string           `json:"name,omitempty"`
	Email            *string           `json:"email,omitempty"`
	DepartmentID     *string           `json:"department_id,omitempty"`
	EmploymentStatus *EmploymentStatus `json:"employment_status,omitempty"`
	Embedding        []float32         `json:"embedding,omitempty"`
	PhotoURL         *string           `json:"photo_url,omitempty"`
}

// StaffFilter narrows ListStaff.
type StaffFilter struct {
	DepartmentID     string
	EmploymentStatus EmploymentStatus
	EnrollmentStatus EnrollmentStatus
	Search           string
	Limit            int
	Offset           int
}

// Record is one attendance row: at most one per staff member and date.
type Record struct {
	ID         string     `json:"id"`
	StaffID    string     `json:"staff_id"`
	StaffName  string     `json:"staff_name,omitempty"`
	Date       string     `json:"date"`
	CheckInAt  *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt *time.Time `json:"check_out_at,omitempty"`
	Status     Status     `json:"status"`
	Method     Method     `json:"method"`
	Confidence *float64   `json:"confidence,omitempty"`
	DeviceID   string     `json:"device_id,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Filter narrows attendance history queries. Dates use DateLayout and are inclusive.
type Filter struct {
	From         string
	To           string
	StaffID      string
	DepartmentID string
	Status       Status
	Method       Method
	Limit        int
	Offset       int
}

// CaptureStatus tracks an asynchronous recognition job.
type CaptureStatus string

const (
	CapturePending   CaptureStatus = "pending"
	CaptureMatched   CaptureStatus = "matched"
	CaptureUnmatched CaptureStatus = "unmatched"
	CaptureFailed    CaptureStatus = "failed"
)

// Capture is an uploaded image waiting for, or done with, recognition.
type Capture struct {
	ID          string        `json:"id"`
	DeviceID    string        `json:"device_id"`
	ImageURL    string        `json:"image_url"`
	Status      CaptureStatus `json:"status"`
	StaffID     *string       `json:"staff_id,omitempty"`
	RecordID    *string       `json:"record_id,omitempty"`
	Score       *float64      `json:"score,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	ProcessedAt *time.Time    `json:"processed_at,omitempty"`
}
