package report

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// TableRows is how many readings the PDF prints as a table.
const TableRows = 20

// Landscape A4 with 10mm margins leaves 277mm of usable width.
var pdfColumnWidths = []float64{40, 20, 20, 20, 20, 24, 18, 18, 18, 22, 57}

var pdfHeaders = []string{
	"Timestamp", "Measured", "Ideal", "Offset", "Corrected", "Anomaly",
	"Drift", "RUL (d)", "Health", "Alert", "Maintenance",
}

type pdfChart struct {
	name   string
	title  string
	render func(io.Writer, []types.EnrichedReading) error
}

var pdfCharts = []pdfChart{
	{"drift", "Sensor Drift Over Time", DriftChart},
	{"rul_health", "RUL and Health", RULHealthChart},
	{"alerts", "Alert Levels", AlertBars},
	{"maintenance", "Maintenance Recommendations", MaintenanceBars},
}

// WritePDF writes a multi-page report: the first TableRows readings as a
// table, then one page per chart (drift, RUL and health, alert bars,
// maintenance bars).
func WritePDF(w io.Writer, rows []types.EnrichedReading) error {
	if len(rows) == 0 {
		return ErrNoRows
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle("Sensor Calibration Report", false)

	writeTablePage(pdf, rows)

	for _, c := range pdfCharts {
		var buf bytes.Buffer
		if err := c.render(&buf, rows); err != nil {
			return err
		}
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 10, c.title, "", 1, "L", false, 0, "")

		opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader(c.name, opts, &buf)
		pdf.ImageOptions(c.name, 10, 25, 277, 0, false, opts, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: pdf: %w", err)
	}
	return nil
}

func writeTablePage(pdf *fpdf.Fpdf, rows []types.EnrichedReading) {
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, "Sensor Calibration Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	status, _ := Latest(rows)
	pdf.CellFormat(0, 6, fmt.Sprintf("Readings: %d    Latest: %s / %s / %s",
		len(rows), status.Anomaly, status.Alert, status.Maintenance), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(220, 220, 220)
	for i, h := range pdfHeaders {
		pdf.CellFormat(pdfColumnWidths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	n := len(rows)
	if n > TableRows {
		n = TableRows
	}
	for _, r := range rows[:n] {
		cells := []string{
			r.Timestamp.Format("2006-01-02 15:04:05"),
			fixed(r.Measured), fixed(r.Ideal), fixed(r.Offset), fixed(r.Corrected),
			r.Anomaly.String(),
			fixed(r.Drift), fixed(r.RULDays), fixed(r.Health),
			r.Alert.String(),
			r.Maintenance.String(),
		}
		for i, c := range cells {
			align := "R"
			if i == 0 || i == 5 || i >= 9 {
				align = "L"
			}
			pdf.CellFormat(pdfColumnWidths[i], 6, c, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func fixed(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
