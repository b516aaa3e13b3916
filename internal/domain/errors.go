package domain

import "errors"

var (
	// ErrRowValidation is the parent of every row-level rejection.
	ErrRowValidation = errors.New("row validation failed")

	ErrMissingField      = errors.New("missing required field")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidDate       = errors.New("invalid acquisition date")
	ErrInvalidTime       = errors.New("invalid acquisition time")

	ErrUnknownSource = errors.New("unknown data source")

	// ErrStoreUnavailable marks run-level failures talking to the store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRunInProgress is returned when an ingestion run is already executing.
	ErrRunInProgress = errors.New("ingestion run already in progress")
)

// rowError joins ErrRowValidation with a specific cause so both match errors.Is.
type rowError struct {
	cause error
	msg   string
}

func (e *rowError) Error() string { return e.msg }

func (e *rowError) Unwrap() []error { return []error{ErrRowValidation, e.cause} }

// RejectReason maps a normalization error to a short metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidCoordinate):
		return "invalid_coordinate"
	case errors.Is(err, ErrInvalidDate):
		return "invalid_date"
	case errors.Is(err, ErrInvalidTime):
		return "invalid_time"
	default:
		return "other"
	}
}
