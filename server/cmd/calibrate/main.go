// Command calibrate runs the calibration pipeline over a CSV file offline and
// writes the report set, without starting the server.
//
//	calibrate -in readings.csv -out reports/ [-db history.db] [-min 95 -max 105 -spike 2]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sensorcal/sensorcal/pkg/pipeline"
	"github.com/sensorcal/sensorcal/server/internal/config"
	"github.com/sensorcal/sensorcal/server/internal/runner"
	"github.com/sensorcal/sensorcal/server/internal/store"
)

func main() {
	def := pipeline.DefaultThresholds()
	in := flag.String("in", "-", "input CSV file, - for stdin")
	out := flag.String("out", config.DefaultReportDir, "report output directory")
	prefix := flag.String("prefix", config.DefaultReportPrefix, "report file name prefix")
	db := flag.String("db", "", "optional sqlite file to append the run to")
	minVal := flag.Float64("min", def.Min, "lower bound of the operating range")
	maxVal := flag.Float64("max", def.Max, "upper bound of the operating range")
	spike := flag.Float64("spike", def.Spike, "spike threshold between consecutive readings")
	asJSON := flag.Bool("json", false, "print the enriched rows as JSON instead of a summary")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := run(*in, *out, *prefix, *db, pipeline.Thresholds{Min: *minVal, Max: *maxVal, Spike: *spike}, *asJSON, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "calibrate:", err)
		var se *pipeline.SchemaError
		var ce *pipeline.ComputationError
		if errors.As(err, &se) || errors.As(err, &ce) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(in, out, prefix, db string, th pipeline.Thresholds, asJSON bool, w io.Writer) error {
	var src io.Reader = os.Stdin
	if in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	var st store.Store = store.NewMemory()
	if db != "" {
		s, err := store.OpenSQLite(db)
		if err != nil {
			return err
		}
		st = s
	}
	defer st.Close()

	r, err := runner.New(st, th, config.ReportsConfig{Dir: out, Prefix: prefix})
	if err != nil {
		return err
	}
	res, err := r.RunCSV(context.Background(), src)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Rows)
	}

	fmt.Fprintf(w, "run %s: %d readings\n", res.RunID, res.Stored)
	fmt.Fprintf(w, "latest: measured=%.3f anomaly=%s alert=%s maintenance=%q\n",
		res.Status.Measured, res.Status.Anomaly, res.Status.Alert, res.Status.Maintenance)
	for _, c := range res.Alerts {
		fmt.Fprintf(w, "  alert %-8s %d\n", c.Label, c.N)
	}
	for _, c := range res.Maintenance {
		fmt.Fprintf(w, "  maintenance %-34q %d\n", c.Label, c.N)
	}
	for _, p := range res.Reports.Paths() {
		fmt.Fprintf(w, "wrote %s\n", p)
	}
	return nil
}
