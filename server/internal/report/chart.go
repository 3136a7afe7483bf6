package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// ErrNoRows is returned by the chart and PDF writers for an empty input.
var ErrNoRows = errors.New("report: no rows to plot")

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 5 * vg.Inch
	barWidth    = vg.Length(40)
)

var (
	colorDrift  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorRUL    = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
	colorHealth = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	colorBars   = color.RGBA{R: 0x87, G: 0xce, B: 0xeb, A: 0xff}
	colorAlert  = color.RGBA{R: 0xff, G: 0x8c, B: 0x00, A: 0xff}
)

// series extracts one value per reading, indexed by position.
func series(rows []types.EnrichedReading, pick func(types.EnrichedReading) float64) plotter.XYs {
	pts := make(plotter.XYs, len(rows))
	for i, r := range rows {
		pts[i].X = float64(i)
		pts[i].Y = pick(r)
	}
	return pts
}

func newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Reading index"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	return p
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color) error {
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("report: %s line: %w", name, err)
	}
	l.Color = c
	l.Width = vg.Points(1.5)
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

func writePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("report: write png: %w", err)
	}
	return nil
}

// DriftChart writes a PNG line plot of drift over the sequence.
func DriftChart(w io.Writer, rows []types.EnrichedReading) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	p := newPlot("Sensor Drift Over Time", "Drift")
	if err := addLine(p, "Drift", series(rows, func(r types.EnrichedReading) float64 { return r.Drift }), colorDrift); err != nil {
		return err
	}
	return writePNG(w, p)
}

// RULHealthChart writes a PNG plot of RUL (days) and health (%) on one axis.
func RULHealthChart(w io.Writer, rows []types.EnrichedReading) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	p := newPlot("Predictive Maintenance", "Value")
	if err := addLine(p, "RUL (days)", series(rows, func(r types.EnrichedReading) float64 { return r.RULDays }), colorRUL); err != nil {
		return err
	}
	if err := addLine(p, "Health (%)", series(rows, func(r types.EnrichedReading) float64 { return r.Health }), colorHealth); err != nil {
		return err
	}
	return writePNG(w, p)
}

// AlertBars writes a PNG bar chart of readings per alert level.
func AlertBars(w io.Writer, rows []types.EnrichedReading) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	return writeBars(w, "Alert Levels", CountAlerts(rows), colorAlert)
}

// MaintenanceBars writes a PNG bar chart of readings per recommendation.
func MaintenanceBars(w io.Writer, rows []types.EnrichedReading) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	return writeBars(w, "Maintenance Recommendations", CountMaintenance(rows), colorBars)
}

func writeBars(w io.Writer, title string, counts []Count, c color.Color) error {
	vals := make(plotter.Values, len(counts))
	names := make([]string, len(counts))
	for i, cnt := range counts {
		vals[i] = float64(cnt.N)
		names[i] = cnt.Label
	}

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Readings"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(vals, barWidth)
	if err != nil {
		return fmt.Errorf("report: %s bars: %w", title, err)
	}
	bars.Color = c
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	return writePNG(w, p)
}
