package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sensorcal/sensorcal/pkg/pipeline"
)

// ReadJSON decodes a JSON array of reading objects, e.g.
//
//	[{"timestamp": "2026-01-01T00:00:00Z", "measured": 100.2, "ideal": 100}]
//
// Numbers keep their literal text so validation sees exactly what was sent.
// Null values are treated as missing fields.
func ReadJSON(r io.Reader) ([]pipeline.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return nil, &pipeline.SchemaError{Row: -1, Reason: pipeline.ErrEmptyInput.Error(), Err: pipeline.ErrEmptyInput}
		}
		return nil, &pipeline.SchemaError{Row: -1, Reason: "body is not a JSON array of objects", Err: err}
	}

	out := make([]pipeline.Record, len(raw))
	for row, obj := range raw {
		rec := make(pipeline.Record, len(obj))
		for k, v := range obj {
			col := strings.ToLower(strings.TrimSpace(k))
			switch tv := v.(type) {
			case nil:
				continue
			case json.Number:
				rec[col] = tv.String()
			case string:
				rec[col] = tv
			default:
				return nil, &pipeline.SchemaError{
					Row:    row,
					Column: col,
					Reason: fmt.Sprintf("unsupported value type %T", v),
				}
			}
		}
		out[row] = rec
	}
	return out, nil
}
