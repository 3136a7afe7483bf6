package pipeline

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is wrapped by the SchemaError returned for a zero-row input.
var ErrEmptyInput = errors.New("input has no rows")

// SchemaError reports a missing or invalid input field. The whole run is
// rejected; no row is enriched.
type SchemaError struct {
	// Row is the 0-based data row, or -1 when the problem is with the input
	// as a whole (missing header column, empty input).
	Row    int
	Column string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	switch {
	case e.Row < 0 && e.Column != "":
		return fmt.Sprintf("schema: column %q: %s", e.Column, e.Reason)
	case e.Row < 0:
		return "schema: " + e.Reason
	default:
		return fmt.Sprintf("schema: row %d column %q: %s", e.Row, e.Column, e.Reason)
	}
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ComputationError reports a non-finite intermediate result, which can only
// arise from finite inputs whose magnitude overflows float64 arithmetic.
type ComputationError struct {
	Row   int
	Field string
	Value float64
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation: row %d: %s is not finite (%v)", e.Row, e.Field, e.Value)
}
