package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Files lists the artifacts written by Generate.
type Files struct {
	CSV       string `json:"csv"`
	XLSX      string `json:"xlsx"`
	PDF       string `json:"pdf"`
	Drift     string `json:"drift_chart"`
	RULHealth string `json:"rul_health_chart"`
}

// Paths returns every file path in write order.
func (f Files) Paths() []string {
	return []string{f.CSV, f.XLSX, f.Drift, f.RULHealth, f.PDF}
}

type writerFunc func(io.Writer, []types.EnrichedReading) error

// Generate writes the full artifact set for rows into dir, named after
// prefix. Every file is rendered to a temp file first; the set replaces
// the previous one only when all writers succeed, so a failed run leaves
// the earlier report intact.
func Generate(dir, prefix string, rows []types.EnrichedReading) (Files, error) {
	files := Files{
		CSV:       filepath.Join(dir, prefix+".csv"),
		XLSX:      filepath.Join(dir, prefix+".xlsx"),
		PDF:       filepath.Join(dir, prefix+".pdf"),
		Drift:     filepath.Join(dir, prefix+"_drift.png"),
		RULHealth: filepath.Join(dir, prefix+"_rul.png"),
	}
	err := generate(dir, rows, []artifact{
		{files.CSV, WriteCSV},
		{files.XLSX, WriteXLSX},
		{files.Drift, DriftChart},
		{files.RULHealth, RULHealthChart},
		{files.PDF, WritePDF},
	})
	if err != nil {
		return Files{}, err
	}
	return files, nil
}

type artifact struct {
	path  string
	write writerFunc
}

func generate(dir string, rows []types.EnrichedReading, set []artifact) error {
	if len(rows) == 0 {
		return ErrNoRows
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("report: create dir %q: %w", dir, err)
	}

	staged := make([]string, 0, len(set))
	defer func() {
		for _, tmp := range staged {
			os.Remove(tmp) //nolint:errcheck
		}
	}()

	for _, a := range set {
		tmp, err := render(a.path, rows, a.write)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}
	for i, a := range set {
		if err := os.Rename(staged[i], a.path); err != nil {
			return fmt.Errorf("report: rename %q: %w", a.path, err)
		}
	}
	return nil
}

// render writes one artifact into a temp file next to path and returns the
// temp file name.
func render(path string, rows []types.EnrichedReading, write writerFunc) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("report: create %q: %w", path, err)
	}
	if err := write(tmp, rows); err != nil {
		tmp.Close()
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("report: %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck
		return "", fmt.Errorf("report: close %q: %w", path, err)
	}
	return tmp.Name(), nil
}
