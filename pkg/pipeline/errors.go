package pipeline

import (
	"errors"
	"fmt"
)

// StageFailure indicates a non-description stage failed outright. It
// halts the pipeline immediately; completed stages' outputs are
// preserved so a later resume can continue.
type StageFailure struct {
	// Stage is the failed stage name.
	Stage string

	// Err is the underlying failure.
	Err error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error {
	return e.Err
}

// IsStageFailure reports whether err is a *StageFailure.
func IsStageFailure(err error) bool {
	var sf *StageFailure
	return errors.As(err, &sf)
}
