// Package apperrors holds the sentinel errors shared across packages and the
// CustomError wrapper used to attach a user-facing message to one of them.
package apperrors

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("permission denied")

	// Recognition outcomes.
	ErrNoFace        = errors.New("no face detected")
	ErrLowConfidence = errors.New("face not recognized with enough confidence")
	ErrNotEnrolled   = errors.New("no enrolled staff to match against")

	// Upstream availability. The face service stands in for the capture
	// device; the backend error is what a capture station sees when offline.
	ErrFaceServiceUnavailable = errors.New("face service unavailable")
	ErrBackendUnavailable     = errors.New("backend unavailable")
)

// CustomError wraps a sentinel with a message for the caller.
type CustomError struct {
	Err     error
	Message string
	Code    string
}

func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// New wraps err with message.
func New(err error, message string) *CustomError {
	return &CustomError{Err: err, Message: message}
}

// WithCode sets a machine readable code.
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}

func NotFound(message string) error   { return New(ErrNotFound, message) }
func Conflict(message string) error   { return New(ErrConflict, message) }
func Validation(message string) error { return New(ErrValidation, message) }

// Is reports whether err matches target or any of others.
func Is(err, target error, others ...error) bool {
	if errors.Is(err, target) {
		return true
	}
	for _, e := range others {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// Code returns a machine readable code for err: the CustomError code when
// set, otherwise one derived from the wrapped sentinel.
func Code(err error) string {
	var ce *CustomError
	if errors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNoFace):
		return "no_face"
	case errors.Is(err, ErrLowConfidence):
		return "low_confidence"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrFaceServiceUnavailable):
		return "face_service_unavailable"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	}
	return "internal"
}

var byCode = map[string]error{
	"not_found":                ErrNotFound,
	"conflict":                 ErrConflict,
	"validation":               ErrValidation,
	"unauthorized":             ErrUnauthorized,
	"forbidden":                ErrForbidden,
	"no_face":                  ErrNoFace,
	"low_confidence":           ErrLowConfidence,
	"not_enrolled":             ErrNotEnrolled,
	"face_service_unavailable": ErrFaceServiceUnavailable,
	"backend_unavailable":      ErrBackendUnavailable,
}

// FromCode rebuilds an error from a code produced by Code. Unknown codes
// yield a plain error carrying message.
func FromCode(code, message string) error {
	if sentinel, ok := byCode[code]; ok {
		return New(sentinel, message).WithCode(code)
	}
	if message == "" {
		message = code
	}
	return errors.New(message)
}
