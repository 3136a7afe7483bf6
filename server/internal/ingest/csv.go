package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sensorcal/sensorcal/pkg/pipeline"
)

// utf8BOM is stripped from the first header cell; spreadsheet exports often
// carry it.
const utf8BOM = "\ufeff"

// ReadCSV decodes a header-driven CSV stream. The header is checked against
// pipeline.RequiredColumns before any data row is read. A row whose field
// count differs from the header is rejected with a *pipeline.SchemaError.
func ReadCSV(r io.Reader) ([]pipeline.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &pipeline.SchemaError{Row: -1, Reason: pipeline.ErrEmptyInput.Error(), Err: pipeline.ErrEmptyInput}
	}
	if err != nil {
		return nil, &pipeline.SchemaError{Row: -1, Reason: "unreadable header", Err: err}
	}
	header = normaliseHeader(header)
	if err := pipeline.CheckColumns(header); err != nil {
		return nil, err
	}

	var out []pipeline.Record
	for row := 0; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &pipeline.SchemaError{Row: row, Reason: "malformed CSV", Err: err}
		}
		if len(fields) != len(header) {
			return nil, &pipeline.SchemaError{
				Row:    row,
				Reason: fmt.Sprintf("row has %d fields, header has %d", len(fields), len(header)),
			}
		}
		rec := make(pipeline.Record, len(header))
		for i, col := range header {
			rec[col] = fields[i]
		}
		out = append(out, rec)
	}
	return out, nil
}

func normaliseHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}
