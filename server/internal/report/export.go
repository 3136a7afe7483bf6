package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Columns is the export column order shared by every tabular format.
var Columns = []string{
	"timestamp", "measured", "ideal", "offset", "corrected", "anomaly",
	"drift", "rul_days", "health", "alert", "maintenance",
}

const (
	sheetReadings = "Readings"
	sheetSummary  = "Summary"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func csvRecord(r types.EnrichedReading) []string {
	return []string{
		r.Timestamp.Format(time.RFC3339Nano),
		formatFloat(r.Measured),
		formatFloat(r.Ideal),
		formatFloat(r.Offset),
		formatFloat(r.Corrected),
		r.Anomaly.String(),
		formatFloat(r.Drift),
		formatFloat(r.RULDays),
		formatFloat(r.Health),
		r.Alert.String(),
		r.Maintenance.String(),
	}
}

// WriteCSV writes rows as CSV with a header line in Columns order.
func WriteCSV(w io.Writer, rows []types.EnrichedReading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("report: csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r)); err != nil {
			return fmt.Errorf("report: csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows as an Excel workbook with a Readings sheet in
// Columns order and a Summary sheet of alert and maintenance counts.
func WriteXLSX(w io.Writer, rows []types.EnrichedReading) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetReadings); err != nil {
		return fmt.Errorf("report: xlsx: %w", err)
	}
	if err := setRow(f, sheetReadings, 1, toAny(Columns)); err != nil {
		return err
	}
	for i, r := range rows {
		vals := []any{
			r.Timestamp.Format(time.RFC3339Nano),
			r.Measured, r.Ideal, r.Offset, r.Corrected,
			r.Anomaly.String(),
			r.Drift, r.RULDays, r.Health,
			r.Alert.String(),
			r.Maintenance.String(),
		}
		if err := setRow(f, sheetReadings, i+2, vals); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return fmt.Errorf("report: xlsx: %w", err)
	}
	line := 1
	for _, section := range []struct {
		title  string
		counts []Count
	}{
		{"alert", CountAlerts(rows)},
		{"maintenance", CountMaintenance(rows)},
		{"anomaly", CountAnomalies(rows)},
	} {
		if err := setRow(f, sheetSummary, line, []any{section.title, "count"}); err != nil {
			return err
		}
		line++
		for _, c := range section.counts {
			if err := setRow(f, sheetSummary, line, []any{c.Label, c.N}); err != nil {
				return err
			}
			line++
		}
		line++
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: xlsx write: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, vals []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("report: xlsx: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
		return fmt.Errorf("report: xlsx %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
