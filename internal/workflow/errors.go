package workflow

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-ip-review/internal/platform/errors"
)

// ValidationError rejects a malformed request before any mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) ErrorCode() errors.Code { return errors.ErrCodeInvalidInput }

// GateNotSatisfiedError blocks forward progress while required documents are
// not approved.
type GateNotSatisfiedError struct {
	Scope   GateScope
	StageID string
	Unmet   []UnmetRequirement
}

func (e *GateNotSatisfiedError) Error() string {
	return fmt.Sprintf("%s requirements not satisfied: %s", e.Scope, strings.Join(e.Names(), ", "))
}

func (e *GateNotSatisfiedError) ErrorCode() errors.Code { return errors.ErrCodePreconditionFailed }

// RequirementIDs lists the unmet requirement ids.
func (e *GateNotSatisfiedError) RequirementIDs() []string {
	ids := make([]string, len(e.Unmet))
	for i, u := range e.Unmet {
		ids[i] = u.RequirementID
	}
	return ids
}

// Names lists the unmet requirement names.
func (e *GateNotSatisfiedError) Names() []string {
	names := make([]string, len(e.Unmet))
	for i, u := range e.Unmet {
		names[i] = u.Name
	}
	return names
}

// NewGateError converts an unsatisfied result into an error, or nil.
func NewGateError(res GateResult, stageID string) error {
	if res.Satisfied {
		return nil
	}
	return &GateNotSatisfiedError{Scope: res.Scope, StageID: stageID, Unmet: res.Unmet}
}

// NoPreviousStageError is returned when returning from the initial stage.
type NoPreviousStageError struct {
	StageID string
}

func (e *NoPreviousStageError) Error() string {
	return fmt.Sprintf("stage %s is the initial stage", e.StageID)
}

func (e *NoPreviousStageError) ErrorCode() errors.Code { return errors.ErrCodeConflict }

// NoNextStageError signals that the current stage is final; callers route to
// completion.
type NoNextStageError struct {
	StageID string
}

func (e *NoNextStageError) Error() string {
	return fmt.Sprintf("stage %s is the final stage", e.StageID)
}

func (e *NoNextStageError) ErrorCode() errors.Code { return errors.ErrCodeConflict }

// ConcurrentModificationError reports a lost race on one submission. The
// caller must reload and retry.
type ConcurrentModificationError struct {
	SubmissionID string
	Reason       string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("submission %s was modified concurrently: %s", e.SubmissionID, e.Reason)
}

func (e *ConcurrentModificationError) ErrorCode() errors.Code {
	return errors.ErrCodeConcurrentModification
}

// PersistenceError wraps a storage failure. The unit of work has been
// rolled back when this is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) ErrorCode() errors.Code { return errors.ErrCodeInternal }

// InvalidTransitionError rejects an action the current status does not allow.
type InvalidTransitionError struct {
	From   Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a submission in status %s", e.Action, e.From)
}

func (e *InvalidTransitionError) ErrorCode() errors.Code { return errors.ErrCodeConflict }
