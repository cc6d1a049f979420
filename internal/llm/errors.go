package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotConfigured     = errors.New("llm provider not configured")
	ErrUnauthorized      = errors.New("llm unauthorized")
	ErrUnavailable       = errors.New("llm unavailable")
	ErrRateLimited       = errors.New("llm rate limited")
	ErrMalformedResponse = errors.New("llm malformed response")
	ErrEmptyResponse     = fmt.Errorf("%w: empty response", ErrMalformedResponse)
)

// Class groups provider failures by how the caller should react.
type Class string

const (
	ClassConfiguration Class = "configuration"
	ClassAuth          Class = "auth"
	ClassRateLimited   Class = "rate_limited"
	ClassUnavailable   Class = "unavailable"
	ClassTimeout       Class = "timeout"
	ClassMalformed     Class = "malformed"
	ClassCanceled      Class = "canceled"
)

// Transient reports whether the class is an upstream condition that may clear on its own.
func (c Class) Transient() bool {
	switch c {
	case ClassRateLimited, ClassUnavailable, ClassTimeout, ClassMalformed:
		return true
	default:
		return false
	}
}

// Failure is a provider error converted into a value.
type Failure struct {
	Class  Class
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	return string(f.Class) + ": " + f.Reason
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Classify converts any backend error into a Failure.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var existing *Failure
	if errors.As(err, &existing) {
		return existing
	}

	class := ClassUnavailable
	switch {
	case errors.Is(err, ErrNotConfigured):
		class = ClassConfiguration
	case errors.Is(err, ErrUnauthorized):
		class = ClassAuth
	case errors.Is(err, ErrRateLimited):
		class = ClassRateLimited
	case errors.Is(err, ErrMalformedResponse):
		class = ClassMalformed
	case errors.Is(err, context.DeadlineExceeded):
		class = ClassTimeout
	case errors.Is(err, context.Canceled):
		class = ClassCanceled
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			class = ClassTimeout
		}
	}
	return &Failure{Class: class, Reason: err.Error(), Err: err}
}
