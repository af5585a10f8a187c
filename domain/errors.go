package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotPermitted is wrapped by validation failures raised before any request is sent.
	ErrNotPermitted = errors.New("not permitted")
	// ErrInvalidInput is wrapped by validation failures for malformed input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTaskNotFound means the task is not part of the last loaded board.
	ErrTaskNotFound = errors.New("task not found")
)

// FailureKind classifies why an operation did not take effect.
type FailureKind int

const (
	KindUnknown FailureKind = iota
	KindUnauthorized
	KindForbidden
	KindServerError
	KindNetworkError
	KindValidation
	KindRejected
)

func (k FailureKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindServerError:
		return "server-error"
	case KindNetworkError:
		return "network-error"
	case KindValidation:
		return "validation"
	case KindRejected:
		return "rejected"
	}
	return "unknown"
}

// Failure is the classified error returned by every fallible core operation.
type Failure struct {
	Kind   FailureKind
	Status int
	Op     string
	Err    error
}

func (f *Failure) Error() string {
	msg := f.Op + ": " + f.Kind.String()
	if f.Status != 0 {
		msg = fmt.Sprintf("%s (%d)", msg, f.Status)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error { return f.Err }

// Invalid builds a validation failure for op.
func Invalid(op string, err error) *Failure {
	return &Failure{Kind: KindValidation, Op: op, Err: err}
}

// FailureFromStatus classifies a non-2xx HTTP answer.
func FailureFromStatus(op string, status int, err error) *Failure {
	kind := KindRejected
	switch {
	case status == http.StatusUnauthorized:
		kind = KindUnauthorized
	case status == http.StatusForbidden:
		kind = KindForbidden
	case status >= http.StatusInternalServerError:
		kind = KindServerError
	}
	return &Failure{Kind: kind, Status: status, Op: op, Err: err}
}

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}
