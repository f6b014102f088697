// Package stream reads the edge stream consumed by the pipeline.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sanonone/streamrpq/internal/protocol"
	"github.com/sanonone/streamrpq/pkg/core/types"
)

var (
	// ErrMalformedRecord marks a line that is neither a record nor blank.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrOutOfOrder marks a record older than the last accepted one.
	ErrOutOfOrder = errors.New("out-of-order record")
)

// Out-of-order policies.
const (
	Skip = "skip"
	Fail = "fail"
)

// LineError carries the line number of a rejected record.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Options configures a Reader.
type Options struct {
	// OutOfOrder is Skip (default) or Fail.
	OutOfOrder string
	// Accept filters records by label; nil accepts every label.
	Accept func(types.Label) bool
}

// Stats counts what a Reader has consumed.
type Stats struct {
	Lines      int
	Records    int64
	Filtered   int64
	OutOfOrder int64
}

// Reader turns lines into arrivals with timestamps relative to the first
// record of the stream.
type Reader struct {
	sc    *bufio.Scanner
	opts  Options
	stats Stats

	started bool
	t0      int64
	last    int64
}

// NewReader wraps r.
func NewReader(r io.Reader, opts Options) *Reader {
	if opts.OutOfOrder == "" {
		opts.OutOfOrder = Skip
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{sc: sc, opts: opts}
}

// Next returns the next accepted arrival, or io.EOF at the end of the stream.
func (r *Reader) Next() (types.Arrival, error) {
	for r.sc.Scan() {
		r.stats.Lines++
		rec, err := protocol.Parse(r.sc.Text())
		if errors.Is(err, protocol.ErrNoRecord) {
			continue
		}
		if err != nil {
			return types.Arrival{}, &LineError{Line: r.stats.Lines, Err: fmt.Errorf("%w: %v", ErrMalformedRecord, err)}
		}

		if !r.started {
			r.started = true
			r.t0 = rec.Time
		}
		a := types.Arrival{Source: rec.Source, Dest: rec.Dest, Label: rec.Label, Time: rec.Time - r.t0}

		if r.opts.Accept != nil && !r.opts.Accept(a.Label) {
			r.stats.Filtered++
			continue
		}

		if a.Time < r.last || a.Time < 0 {
			r.stats.OutOfOrder++
			if r.opts.OutOfOrder == Fail {
				return types.Arrival{}, &LineError{Line: r.stats.Lines,
					Err: fmt.Errorf("%w: time %d after %d", ErrOutOfOrder, a.Time, r.last)}
			}
			slog.Debug("Skipping out-of-order record", "line", r.stats.Lines, "time", a.Time, "last", r.last)
			continue
		}

		r.last = a.Time
		r.stats.Records++
		return a, nil
	}
	if err := r.sc.Err(); err != nil {
		return types.Arrival{}, fmt.Errorf("reading stream: %w", err)
	}
	return types.Arrival{}, io.EOF
}

// Stats returns the counters so far.
func (r *Reader) Stats() Stats { return r.stats }
