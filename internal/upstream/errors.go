package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies why an upstream call failed.
type Kind string

const (
	// KindUnavailable covers network errors and timeouts.
	KindUnavailable Kind = "UpstreamUnavailable"
	// KindRejected is a non-success HTTP status from the provider.
	KindRejected Kind = "UpstreamRejected"
	// KindMalformed is a payload that could not be decoded or lacks required fields.
	KindMalformed Kind = "UpstreamMalformed"
)

// FetchError is the only error type fetchers return for upstream problems.
type FetchError struct {
	Source string
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Source, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *FetchError) Timeout() bool {
	if e.Kind != KindUnavailable || e.Err == nil {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Unavailable wraps a transport error.
func Unavailable(source string, err error) *FetchError {
	return &FetchError{Source: source, Kind: KindUnavailable, Err: err}
}

// Rejected records a non-success status.
func Rejected(source string, status int, detail string) *FetchError {
	return &FetchError{Source: source, Kind: KindRejected, Status: status, Detail: detail}
}

// Malformed wraps a decode error or describes a missing field.
func Malformed(source string, err error) *FetchError {
	return &FetchError{Source: source, Kind: KindMalformed, Err: err}
}

// KindOf extracts the kind of err. Errors that are not a FetchError count as unavailable.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnavailable
}

// IsTimeout reports whether err is a FetchError caused by a deadline, or a bare deadline error.
func IsTimeout(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
