package service

import (
	"errors"
	"fmt"
)

// Stage is a step of the assessment state machine.
type Stage string

const (
	StageReceived   Stage = "RECEIVED"
	StageFeaturized Stage = "FEATURIZED"
	StageScored     Stage = "SCORED"
	StageClassified Stage = "CLASSIFIED"
	StagePersisted  Stage = "PERSISTED"
	StageResponded  Stage = "RESPONDED"
	StageFailed     Stage = "FAILED"
)

// ErrPersistence marks a failed store write. It is reported through the
// observer and never fails an assessment.
var ErrPersistence = errors.New("persistence warning")

// StageError wraps a failure with the stage that could not be completed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("assessment failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func fail(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
