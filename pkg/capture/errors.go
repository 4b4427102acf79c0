package capture

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageOpen      Stage = "open"
	StageConfigure Stage = "configure"
	StageStart     Stage = "start"
	StageControls  Stage = "controls"
	StageCapture   Stage = "capture"
	StageBracket   Stage = "bracket"
	StageVerify    Stage = "verify"
)

var (
	ErrImageMissing    = errors.New("image file not created")
	ErrNoUsableBracket = errors.New("no bracket exposure could be analysed")
)

// StepError is a capture failure together with the step that failed.
type StepError struct {
	Stage Stage
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(stage Stage, err error) error {
	return &StepError{Stage: stage, Err: err}
}
