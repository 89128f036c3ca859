package aggregate

import (
	"errors"
	"fmt"

	"certdash/internal/core"
)

// ErrInvalidPeriodLabel is returned when a series label cannot be parsed back
// into a calendar period.
var ErrInvalidPeriodLabel = errors.New("invalid period label")

// RecordError identifies the input record that stopped an aggregation.
type RecordError struct {
	Index int
	Field string
	Err   error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("record %d: %s: %v", e.Index, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func newRecordError(index int, err error) *RecordError {
	re := &RecordError{Index: index, Err: err}
	var fe *core.FieldError
	if errors.As(err, &fe) {
		re.Field = fe.Field
		re.Err = fe.Err
	}
	return re
}
