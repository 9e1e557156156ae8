package tracker

import (
	"errors"
	"fmt"
)

// Code is the closed taxonomy every lower-level platform location error is
// mapped into before it reaches a consumer.
type Code string

const (
	// CodePermissionDenied means the "always" location permission is missing
	CodePermissionDenied Code = "permission_denied"

	// CodeLocationDisabled means location services are switched off device-wide
	CodeLocationDisabled Code = "location_disabled"

	// CodeNetworkUnavailable means assisted positioning has no connectivity
	CodeNetworkUnavailable Code = "network_unavailable"

	// CodeInaccurateLocation is the diagnostic for samples rejected by the
	// accuracy gate
	CodeInaccurateLocation Code = "inaccurate_location"

	// CodeOutdatedLocation is the diagnostic for samples rejected by the
	// freshness gate
	CodeOutdatedLocation Code = "outdated_location"

	// CodeUnknown covers everything the taxonomy cannot classify
	CodeUnknown Code = "unknown"
)

// Sentinel errors platform providers can return (possibly wrapped) so
// MapProviderError can classify them.
var (
	ErrPermissionDenied   = errors.New("always location permission denied")
	ErrLocationDisabled   = errors.New("location services disabled")
	ErrNetworkUnavailable = errors.New("network unavailable")
)

// Error is a classified tracker error. Diagnostics() delivers these for
// rejected samples; provider faults are classified the same way.
type Error struct {
	Code Code
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// MapProviderError classifies a raw platform error into the closed taxonomy.
// Already-classified errors pass through unchanged.
func MapProviderError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}

	switch {
	case errors.Is(err, ErrPermissionDenied):
		return &Error{Code: CodePermissionDenied, Err: err}
	case errors.Is(err, ErrLocationDisabled):
		return &Error{Code: CodeLocationDisabled, Err: err}
	case errors.Is(err, ErrNetworkUnavailable):
		return &Error{Code: CodeNetworkUnavailable, Err: err}
	default:
		return &Error{Code: CodeUnknown, Err: err}
	}
}
