package models

import (
	"errors"
	"fmt"
)

// The pipeline distinguishes malformed input, failed collaborators and
// failed executions. Business-rule rejections are not errors at all; they
// travel as RiskVerdict values.

// ValidationError marks a malformed proposal or payload. It degrades the
// current tick to HOLD and never propagates to the pipeline's caller.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// DataFetchingError marks a collaborator that failed or returned nothing.
type DataFetchingError struct {
	Source string
	Err    error
}

func (e *DataFetchingError) Error() string {
	return fmt.Sprintf("data fetch from %s: %v", e.Source, e.Err)
}

func (e *DataFetchingError) Unwrap() error { return e.Err }

// ExecutionError marks a sink-reported failure. Money-moving failures are
// surfaced to the caller, never swallowed.
type ExecutionError struct {
	Order   SizedOrder
	Message string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution of %s %s: %s: %v", e.Order.Action, e.Order.Pair, e.Message, e.Err)
	}
	return fmt.Sprintf("execution of %s %s: %s", e.Order.Action, e.Order.Pair, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err wraps an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}
