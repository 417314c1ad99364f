package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/opinionated/internal/ir"
)

// PipelineError reports a fault that aborts a migration run.
//
// A run is all-or-nothing: the driver never skips an entity and continues,
// because a half-written output is not a valid artifact.
type PipelineError struct {
	// Code identifies the error category.
	Code PipelineErrorCode

	// Message is a human-readable description.
	Message string

	// EntityType and EntityID identify the entity being processed, when known.
	EntityType ir.EntityType
	EntityID   int64

	// Err is the underlying cause.
	Err error
}

// PipelineErrorCode categorizes pipeline errors.
type PipelineErrorCode string

const (
	// ErrCodePipelineAbort indicates an unexpected fault while transforming an entity.
	ErrCodePipelineAbort PipelineErrorCode = "PIPELINE_ABORT"

	// ErrCodeSinkFailed indicates the entity sink rejected a result.
	ErrCodeSinkFailed PipelineErrorCode = "SINK_FAILED"

	// ErrCodeSourceFailed indicates the entity source could not produce the next entity.
	ErrCodeSourceFailed PipelineErrorCode = "SOURCE_FAILED"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.EntityType != 0 {
		msg += fmt.Sprintf(" (%s/%d)", e.EntityType, e.EntityID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// IsPipelineAbort reports whether err is a transform fault.
// Uses errors.As to handle wrapped errors.
func IsPipelineAbort(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodePipelineAbort
	}
	return false
}

func sourceError(err error) *PipelineError {
	return &PipelineError{Code: ErrCodeSourceFailed, Message: "reading entity", Err: err}
}

func sinkError(e ir.Entity, err error) *PipelineError {
	return &PipelineError{Code: ErrCodeSinkFailed, Message: "writing entity", EntityType: e.Type, EntityID: e.ID, Err: err}
}
