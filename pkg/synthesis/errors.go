package synthesis

import (
	"errors"
	"fmt"

	"foamsynth/internal/models"
)

// Status codes reported by a failed run
const (
	CodeConfig     = -1
	CodeOutput     = -200
	CodeEnsemble   = -308
	CodeResource   = -400
	CodeShapeClass = -666
)

var (
	// ErrConfig marks settings that stop a run before any stage executes
	ErrConfig = errors.New("configuration error")

	// ErrResource marks a feature table that could not be resized
	ErrResource = errors.New("resource error")

	// ErrOutput marks an output file that could not be written
	ErrOutput = errors.New("output error")
)

// StatusError is the single fatal condition a run reports
type StatusError struct {
	Code  int
	Stage string
	Err   error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed (code %d): %v", e.Stage, e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// statusCode maps an error to the code reported for it. Errors without a
// more specific code are reported as configuration errors.
func statusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrShapeClass):
		return CodeShapeClass
	case errors.Is(err, models.ErrEnsemble):
		return CodeEnsemble
	case errors.Is(err, models.ErrTableSize), errors.Is(err, ErrResource):
		return CodeResource
	case errors.Is(err, ErrOutput):
		return CodeOutput
	}
	return CodeConfig
}

// fail wraps err for the named stage
func fail(stage string, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		return err
	}
	return &StatusError{Code: statusCode(err), Stage: stage, Err: err}
}
