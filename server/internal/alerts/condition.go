package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// condition is a parsed rule expression of the form "field op value".
//
// Numeric fields:
//
//	measured > 105
//	offset >= 1.5
//	drift > 1
//	rul_days < 7
//	health < 50
//
// Label fields compare with == or != against the display label,
// case-insensitively. Labels may contain spaces:
//
//	alert == CRITICAL
//	anomaly != Normal
//	maintenance == Recalibrate within 1 week
type condition struct {
	field     string
	op        string
	threshold float64
	label     string
}

var numericFields = map[string]func(r *types.EnrichedReading) float64{
	"measured":  func(r *types.EnrichedReading) float64 { return r.Measured },
	"ideal":     func(r *types.EnrichedReading) float64 { return r.Ideal },
	"offset":    func(r *types.EnrichedReading) float64 { return r.Offset },
	"corrected": func(r *types.EnrichedReading) float64 { return r.Corrected },
	"drift":     func(r *types.EnrichedReading) float64 { return r.Drift },
	"rul_days":  func(r *types.EnrichedReading) float64 { return r.RULDays },
	"health":    func(r *types.EnrichedReading) float64 { return r.Health },
}

var labelFields = map[string]func(r *types.EnrichedReading) string{
	"alert":       func(r *types.EnrichedReading) string { return r.Alert.String() },
	"anomaly":     func(r *types.EnrichedReading) string { return r.Anomaly.String() },
	"maintenance": func(r *types.EnrichedReading) string { return r.Maintenance.String() },
}

// parseCondition compiles cond. Unknown fields, operators and non-numeric
// thresholds are errors so bad rules are reported at load time.
func parseCondition(cond string) (condition, error) {
	parts := strings.Fields(cond)
	if len(parts) < 3 {
		return condition{}, fmt.Errorf("alerts: condition %q: want \"field op value\"", cond)
	}
	c := condition{field: parts[0], op: parts[1]}
	rhs := strings.Trim(strings.Join(parts[2:], " "), `"'`)

	if _, ok := labelFields[c.field]; ok {
		if c.op != "==" && c.op != "!=" {
			return condition{}, fmt.Errorf("alerts: condition %q: label field %s supports == and != only", cond, c.field)
		}
		if !knownLabel(c.field, rhs) {
			return condition{}, fmt.Errorf("alerts: condition %q: unknown %s label %q", cond, c.field, rhs)
		}
		c.label = rhs
		return c, nil
	}

	if _, ok := numericFields[c.field]; !ok {
		return condition{}, fmt.Errorf("alerts: condition %q: unknown field %q", cond, c.field)
	}
	switch c.op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return condition{}, fmt.Errorf("alerts: condition %q: unknown operator %q", cond, c.op)
	}
	v, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return condition{}, fmt.Errorf("alerts: condition %q: threshold: %w", cond, err)
	}
	c.threshold = v
	return c, nil
}

func knownLabel(field, label string) bool {
	var err error
	switch field {
	case "alert":
		err = matchLabel(label, types.AlertLevels)
	case "anomaly":
		err = matchLabel(label, types.Anomalies)
	case "maintenance":
		err = matchLabel(label, types.Maintenances)
	}
	return err == nil
}

func matchLabel[T fmt.Stringer](label string, all []T) error {
	for _, v := range all {
		if strings.EqualFold(v.String(), label) {
			return nil
		}
	}
	return fmt.Errorf("unknown label %q", label)
}

// eval reports whether the condition holds for r and the value that
// triggered it (0 for label fields).
func (c condition) eval(r *types.EnrichedReading) (bool, float64) {
	if get, ok := labelFields[c.field]; ok {
		eq := strings.EqualFold(get(r), c.label)
		if c.op == "!=" {
			return !eq, 0
		}
		return eq, 0
	}
	v := numericFields[c.field](r)
	return compareFloat(v, c.op, c.threshold), v
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
