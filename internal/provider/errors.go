package provider

import (
	"errors"
	"fmt"
)

// ErrInvalidPhone is returned before any provider call when the phone number
// fails the minimal digit-count check.
var ErrInvalidPhone = errors.New("invalid phone number")

// ErrNotAvailable is returned when the provider has no pairing data to offer.
var ErrNotAvailable = errors.New("pairing not available")

// UnreachableError wraps DNS/network/timeout failures talking to the provider.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("provider unreachable during %s: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// RejectedError wraps a non-2xx provider response.
type RejectedError struct {
	Op     string
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected %s: status=%d body=%s", e.Op, e.Status, e.Body)
}

// IsUnreachable reports whether err is a transport-level provider failure.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// IsRejected reports whether err is a non-2xx provider response.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsNotFound reports whether err is a provider 404 rejection.
func IsNotFound(err error) bool {
	var re *RejectedError
	return errors.As(err, &re) && re.Status == 404
}
