package pipeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Input column names.
const (
	ColumnTimestamp = "timestamp"
	ColumnMeasured  = "measured"
	ColumnIdeal     = "ideal"
)

// RequiredColumns must be present in every input record.
var RequiredColumns = []string{ColumnMeasured, ColumnIdeal}

// Record is one untyped input row keyed by column name, as produced by the
// CSV and JSON ingestion paths.
type Record map[string]string

// timestampLayouts are tried in order for the optional timestamp column.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// CheckColumns verifies that a header carries every required column.
// Comparison is exact; callers normalise case and whitespace first.
func CheckColumns(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	for _, col := range RequiredColumns {
		if !have[col] {
			return &SchemaError{Row: -1, Column: col, Reason: "required column is missing"}
		}
	}
	return nil
}

// Validate converts records into typed readings. Every row is checked before
// anything is returned, so a single bad row rejects the whole input. Rows
// without a timestamp are stamped with now.
func Validate(records []Record, now time.Time) ([]types.Reading, error) {
	if len(records) == 0 {
		return nil, &SchemaError{Row: -1, Reason: ErrEmptyInput.Error(), Err: ErrEmptyInput}
	}

	out := make([]types.Reading, len(records))
	for i, rec := range records {
		measured, err := numericField(rec, i, ColumnMeasured)
		if err != nil {
			return nil, err
		}
		ideal, err := numericField(rec, i, ColumnIdeal)
		if err != nil {
			return nil, err
		}
		ts, err := timestampField(rec, i, now)
		if err != nil {
			return nil, err
		}
		out[i] = types.Reading{Timestamp: ts, Measured: measured, Ideal: ideal}
	}
	return out, nil
}

func numericField(rec Record, row int, col string) (float64, error) {
	raw, ok := rec[col]
	if !ok {
		return 0, &SchemaError{Row: row, Column: col, Reason: "field is missing"}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &SchemaError{Row: row, Column: col, Reason: "value is empty"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &SchemaError{Row: row, Column: col, Reason: fmt.Sprintf("value %q is not numeric", raw), Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &SchemaError{Row: row, Column: col, Reason: fmt.Sprintf("value %q is not finite", raw)}
	}
	return v, nil
}

func timestampField(rec Record, row int, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(rec[ColumnTimestamp])
	if raw == "" {
		return now, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, &SchemaError{Row: row, Column: ColumnTimestamp, Reason: fmt.Sprintf("value %q is not a recognised timestamp", raw)}
}
