package persistence

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sanonone/streamrpq/pkg/core/types"
)

// Report file names inside the output directory.
const (
	SummaryFile = "summary.csv"
	WindowsFile = "windows.csv"
	TraceFile   = "trace.csv"
	MatchesFile = "matches.csv"
)

var (
	SummaryHeader = []string{"run_id", "total_edges", "matches", "exec_time", "windows_created", "avg_window_cardinality", "avg_window_size"}
	WindowsHeader = []string{"index", "t_open", "t_close", "window_results", "incremental_matches", "latency", "window_cardinality", "window_size"}
	TraceHeader   = []string{"windows", "time", "cost", "normalized_cost", "latency", "cardinality", "size", "shed_probability"}
	MatchesHeader = []string{"source", "destination", "timestamp"}
)

// SummaryRecord is the single row describing a finished run.
type SummaryRecord struct {
	RunID                string
	TotalEdges           int64
	Matches              int64
	ExecTimeSeconds      float64
	WindowsCreated       int
	AvgWindowCardinality float64
	AvgWindowSize        float64
}

func (r SummaryRecord) row() []string {
	return []string{
		r.RunID,
		strconv.FormatInt(r.TotalEdges, 10),
		strconv.FormatInt(r.Matches, 10),
		formatFloat(r.ExecTimeSeconds),
		strconv.Itoa(r.WindowsCreated),
		formatFloat(r.AvgWindowCardinality),
		formatFloat(r.AvgWindowSize),
	}
}

// WindowRecord describes one evicted window.
type WindowRecord struct {
	Index       int
	Open        int64
	Close       int64
	Results     int
	Matched     int64
	LatencySecs float64
	Cardinality int
	Size        int64
}

func (r WindowRecord) row() []string {
	return []string{
		strconv.Itoa(r.Index),
		strconv.FormatInt(r.Open, 10),
		strconv.FormatInt(r.Close, 10),
		strconv.Itoa(r.Results),
		strconv.FormatInt(r.Matched, 10),
		formatFloat(r.LatencySecs),
		strconv.Itoa(r.Cardinality),
		strconv.FormatInt(r.Size, 10),
	}
}

// TraceRecord is one sample of the adaptive controller's cost signal.
type TraceRecord struct {
	Windows         int
	Time            int64
	Cost            float64
	NormalizedCost  float64
	LatencySecs     float64
	Cardinality     int
	Size            int64
	ShedProbability float64
}

func (r TraceRecord) row() []string {
	return []string{
		strconv.Itoa(r.Windows),
		strconv.FormatInt(r.Time, 10),
		formatFloat(r.Cost),
		formatFloat(r.NormalizedCost),
		formatFloat(r.LatencySecs),
		strconv.Itoa(r.Cardinality),
		strconv.FormatInt(r.Size, 10),
		formatFloat(r.ShedProbability),
	}
}

// Reports groups the CSV writers of one run.
type Reports struct {
	dir     string
	windows *CSVWriter
	trace   *CSVWriter
}

// OpenReports creates dir if needed and opens the per-window and trace
// writers. The summary and matches files are written once at the end.
func OpenReports(dir string) (*Reports, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	windows, err := NewCSVWriter(filepath.Join(dir, WindowsFile), WindowsHeader)
	if err != nil {
		return nil, err
	}
	trace, err := NewCSVWriter(filepath.Join(dir, TraceFile), TraceHeader)
	if err != nil {
		_ = windows.Close()
		return nil, err
	}
	return &Reports{dir: dir, windows: windows, trace: trace}, nil
}

// Dir returns the output directory.
func (r *Reports) Dir() string { return r.dir }

// WriteWindow appends a per-window row.
func (r *Reports) WriteWindow(rec WindowRecord) error {
	return r.windows.Write(rec.row())
}

// WriteTrace appends a cost trace row.
func (r *Reports) WriteTrace(rec TraceRecord) error {
	return r.trace.Write(rec.row())
}

// WriteSummary writes the summary file.
func (r *Reports) WriteSummary(rec SummaryRecord) error {
	w, err := NewCSVWriter(filepath.Join(r.dir, SummaryFile), SummaryHeader)
	if err != nil {
		return err
	}
	if err := w.Write(rec.row()); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// WriteMatchesFile writes the final match export.
func (r *Reports) WriteMatchesFile(export func(io.Writer) error) error {
	f, err := os.Create(filepath.Join(r.dir, MatchesFile))
	if err != nil {
		return fmt.Errorf("failed to create matches file: %w", err)
	}
	if err := export(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close flushes and closes the streaming writers.
func (r *Reports) Close() error {
	return errors.Join(r.windows.Close(), r.trace.Close())
}

// WriteMatches writes matches as CSV with a header row.
func WriteMatches(w io.Writer, matches []types.Match) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(MatchesHeader); err != nil {
		return err
	}
	for _, m := range matches {
		rec := []string{
			strconv.FormatInt(m.Source, 10),
			strconv.FormatInt(m.Destination, 10),
			strconv.FormatInt(m.Timestamp, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
