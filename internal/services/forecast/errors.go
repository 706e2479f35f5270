package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateRange is matched by DegenerateRangeError.
	ErrDegenerateRange = errors.New("forecast: degenerate range")
	// ErrInsufficientHistory is matched by InsufficientHistoryError.
	ErrInsufficientHistory = errors.New("forecast: insufficient history")
	// ErrPredictor is matched by PredictorError.
	ErrPredictor = errors.New("forecast: predictor failed")
	// ErrInvalidActual is matched by InvalidActualError.
	ErrInvalidActual = errors.New("forecast: invalid actual")
	// ErrUnorderedHistory is returned when observation times do not strictly increase.
	ErrUnorderedHistory = errors.New("forecast: observation times must strictly increase")
)

// DegenerateRangeError reports a fit sample without variance (or with a
// non-finite value), for which normalization is undefined.
type DegenerateRangeError struct {
	Min, Max float64
	Reason   string
}

func (e *DegenerateRangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("degenerate range: %s", e.Reason)
	}
	return fmt.Sprintf("degenerate range: min=%g max=%g", e.Min, e.Max)
}

func (e *DegenerateRangeError) Is(target error) bool { return target == ErrDegenerateRange }

// InsufficientHistoryError reports fewer values than the window needs.
type InsufficientHistoryError struct {
	Have, Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d values, need %d", e.Have, e.Need)
}

func (e *InsufficientHistoryError) Is(target error) bool { return target == ErrInsufficientHistory }

// PredictorError reports a failed step. Step is the zero-based index of the
// step that could not be produced.
type PredictorError struct {
	Step  int
	Value float64
	Err   error
}

func (e *PredictorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("predictor failed at step %d: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("predictor failed at step %d: non-finite value %g", e.Step, e.Value)
}

func (e *PredictorError) Unwrap() error { return e.Err }

func (e *PredictorError) Is(target error) bool { return target == ErrPredictor }

// InvalidActualError reports a non-finite backfill observation.
type InvalidActualError struct {
	Index int
	Value float64
}

func (e *InvalidActualError) Error() string {
	return fmt.Sprintf("invalid actual at index %d: %g", e.Index, e.Value)
}

func (e *InvalidActualError) Is(target error) bool { return target == ErrInvalidActual }
