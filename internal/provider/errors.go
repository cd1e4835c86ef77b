package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies provider failures. The consensus core treats every
// kind the same way (the participant is unavailable for that call); the
// classification exists for error reporting and callbacks.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindAuth
	KindRateLimit
	KindMalformed
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindMalformed:
		return "malformed_response"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the uniform failure type for provider calls.
type Error struct {
	Provider string
	Model    string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s/%s: %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newError wraps err with provider context, classifying timeouts.
func newError(providerName, model string, kind ErrorKind, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Provider: providerName, Model: model, Kind: kind, Err: err}
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindNetwork
	}
}
