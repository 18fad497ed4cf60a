package upload

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageValidation   Stage = "validation"
	StageHash         Stage = "hash"
	StageTransfer     Stage = "transfer"
	StageVerification Stage = "verification"
)

// StageError tags a pipeline failure with the stage that produced it.
// Kind carries the validation action or verification reason when one applies.
type StageError struct {
	Stage Stage
	Kind  string
	Err   error
}

func NewStageError(stage Stage, kind string, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s (%s): %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first StageError in err's chain.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
