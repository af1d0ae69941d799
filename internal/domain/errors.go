package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures of the donation pipeline.
type ErrorKind string

const (
	KindNoConnectivity    ErrorKind = "no_connectivity"
	KindConfiguration     ErrorKind = "configuration_error"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindRemote            ErrorKind = "remote_error"
	KindValidation        ErrorKind = "validation_error"
	KindTimeout           ErrorKind = "timeout"
)

// Remote reports whether the kind comes from the AI boundary and ends the flow.
func (k ErrorKind) Remote() bool {
	switch k {
	case KindNoConnectivity, KindConfiguration, KindMalformedResponse, KindRemote, KindTimeout:
		return true
	}
	return false
}

// PipelineError carries a user-facing message. Err holds the detail for logs.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func NewPipelineError(kind ErrorKind, msg string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a wrapped PipelineError, or "".
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ValidationError lists the rules a submission broke.
type ValidationError struct {
	Problems []string
}

func (e ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

var (
	ErrBusy           = errors.New("operation already in progress")
	ErrSessionUnknown = errors.New("session not found")
)
