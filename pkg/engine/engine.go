// Package engine wires the evaluator together and drives it over an edge
// stream.
//
// Basic usage:
//
//	cfg, err := config.LoadConfig("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	eng, err := engine.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = eng.Run(ctx, file)
//
// A run is single threaded: every structure is owned by the goroutine
// calling Run. Other goroutines may only read Status and signal the Gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sanonone/streamrpq/pkg/adaptive"
	"github.com/sanonone/streamrpq/pkg/config"
	"github.com/sanonone/streamrpq/pkg/core/automaton"
	"github.com/sanonone/streamrpq/pkg/core/forest"
	"github.com/sanonone/streamrpq/pkg/core/graph"
	"github.com/sanonone/streamrpq/pkg/core/query"
	"github.com/sanonone/streamrpq/pkg/core/sink"
	"github.com/sanonone/streamrpq/pkg/core/types"
	"github.com/sanonone/streamrpq/pkg/drift"
	"github.com/sanonone/streamrpq/pkg/metrics"
	"github.com/sanonone/streamrpq/pkg/persistence"
	"github.com/sanonone/streamrpq/pkg/stream"
	"github.com/sanonone/streamrpq/pkg/window"
)

// Engine runs one query over one stream.
type Engine struct {
	// RunID identifies the run in logs, reports and status.
	RunID uuid.UUID

	cfg        config.Config
	automaton  *automaton.Automaton
	graph      *graph.Graph
	forest     *forest.Forest
	sink       *sink.Sink
	controller *window.Controller
	policy     adaptive.Policy
	env        *adaptive.Env
	reports    *persistence.Reports
	gate       *Gate

	processed   int64
	filtered    int64
	outOfOrder  int64
	saved       int64
	dense       int64
	lastTime    int64
	lastMatched int64
	lastEvicted *window.Window
	reportErr   error

	started time.Time
	summary persistence.SummaryRecord
	status  atomic.Pointer[Status]
}

// New builds the pipeline described by cfg. When cfg.Output.Dir is set the
// report files are created there immediately.
func New(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a, err := cfg.Automaton()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		RunID:     uuid.New(),
		cfg:       cfg,
		automaton: a,
		graph:     graph.New(a, cfg.GraphOptions()),
		forest:    forest.New(),
		sink:      sink.New(),
		gate:      NewGate(cfg.Debug.Step),
	}
	e.controller, err = window.NewController(cfg.WindowOptions(), a, e.graph, e.forest, e.sink)
	if err != nil {
		return nil, fmt.Errorf("failed to create window controller: %w", err)
	}

	var detector drift.Detector
	if cfg.Mode == adaptive.ModeDrift {
		detector = drift.NewADWIN(cfg.DriftOptions())
	}
	e.policy, err = adaptive.New(cfg.AdaptiveConfig(), detector)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s policy: %w", cfg.Mode, err)
	}

	e.env = &adaptive.Env{
		Controller: e.controller,
		Handler:    query.NewHandler(a, e.graph, e.forest, e.sink),
		Graph:      e.graph,
		Sink:       e.sink,
		Stats:      adaptive.NewStatistics(int(cfg.Window.Size / cfg.Window.Slide)),
		OnEvict:    e.onEvict,
	}

	if cfg.Output.Dir != "" {
		e.reports, err = persistence.OpenReports(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
	}

	e.publish(StateIdle, nil)
	return e, nil
}

// Gate returns the step gate of the run.
func (e *Engine) Gate() *Gate { return e.gate }

// Status returns the latest published status.
func (e *Engine) Status() Status {
	st := *e.status.Load()
	if st.State == StateRunning && e.gate.Paused() {
		st.State = StatePaused
	}
	return st
}

// Summary returns the summary of a finished run.
func (e *Engine) Summary() persistence.SummaryRecord { return e.summary }

// Matches returns the results currently held by the sink.
func (e *Engine) Matches() []types.Match { return e.sink.Entries() }

// Run consumes in until EOF, an error or ctx cancellation, then writes the
// summary and match export. Cancellation is checked between edges.
func (e *Engine) Run(ctx context.Context, in io.Reader) (err error) {
	r := stream.NewReader(in, stream.Options{
		OutOfOrder: e.cfg.Input.OutOfOrder,
		Accept:     e.automaton.HasLabel,
	})

	e.started = time.Now()
	slog.Info("Run started", "run_id", e.RunID, "mode", e.policy.Name(), "query", e.cfg.Query.ID,
		"size", e.cfg.Window.Size, "slide", e.cfg.Window.Slide)
	e.publish(StateRunning, nil)

	defer func() {
		err = errors.Join(err, e.finish(err))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		stepped, err := e.gate.wait(ctx)
		if err != nil {
			return err
		}

		before := r.Stats()
		a, err := r.Next()
		e.countSkipped(before, r.Stats())
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := e.process(a); err != nil {
			return err
		}
		if stepped {
			e.gate.done(e.processed)
		}
	}
}

func (e *Engine) process(a types.Arrival) error {
	start := time.Now()
	edge, err := e.policy.ProcessEdge(a, e.env)
	if err != nil {
		return fmt.Errorf("processing %s: %w", a, err)
	}
	if e.reportErr != nil {
		return e.reportErr
	}
	e.lastTime = a.Time

	if edge == nil {
		metrics.EdgesTotal.WithLabelValues(metrics.OutcomeShed).Inc()
		e.publish(StateRunning, nil)
		return nil
	}

	e.processed++
	metrics.EdgesTotal.WithLabelValues(metrics.OutcomeAdmitted).Inc()
	metrics.EdgeDuration.Observe(time.Since(start).Seconds())

	matched := e.sink.MatchedPaths()
	metrics.MatchesTotal.Add(float64(matched - e.lastMatched))
	e.lastMatched = matched

	if e.reports != nil {
		if err := e.reports.WriteTrace(e.trace(a)); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}

	stats := e.env.Stats
	metrics.WindowSize.Set(float64(e.controller.Size()))
	metrics.ForestNodes.Set(float64(e.forest.NodeCount()))
	metrics.GraphEdges.Set(float64(e.graph.EdgeCount()))
	metrics.SinkResults.Set(float64(e.sink.Size()))
	metrics.NormalizedCost.Set(stats.Normalized)
	metrics.ShedProbability.Set(stats.ShedProbability)

	e.publish(StateRunning, nil)
	return nil
}

func (e *Engine) trace(a types.Arrival) persistence.TraceRecord {
	stats := e.env.Stats
	rec := persistence.TraceRecord{
		Windows:         len(e.controller.Windows()),
		Time:            a.Time,
		Cost:            stats.Cost,
		NormalizedCost:  stats.Normalized,
		ShedProbability: stats.ShedProbability,
	}
	if w := e.lastEvicted; w != nil {
		rec.LatencySecs = w.Latency.Seconds()
		rec.Cardinality = w.Count
		rec.Size = w.Size()
	}
	return rec
}

func (e *Engine) onEvict(ev window.Eviction) {
	for _, w := range ev.Windows {
		metrics.WindowsEvictedTotal.Inc()
		if e.reports == nil || e.reportErr != nil {
			continue
		}
		err := e.reports.WriteWindow(persistence.WindowRecord{
			Index:       w.Index,
			Open:        w.Open,
			Close:       w.Close,
			Results:     w.Emitted,
			Matched:     w.Matched,
			LatencySecs: w.Latency.Seconds(),
			Cardinality: w.Count,
			Size:        w.Size(),
		})
		if err != nil {
			e.reportErr = fmt.Errorf("writing window report: %w", err)
		}
	}
	if n := len(ev.Windows); n > 0 {
		e.lastEvicted = ev.Windows[n-1]
	}

	e.saved += int64(ev.Migrated)
	e.dense += int64(ev.Dense)
	metrics.EvictedEdgesTotal.WithLabelValues(metrics.ActionDeleted).Add(float64(ev.Deleted))
	metrics.EvictedEdgesTotal.WithLabelValues(metrics.ActionMigrated).Add(float64(ev.Migrated))

	slog.Debug("Windows evicted", "windows", len(ev.Windows), "time", ev.Time,
		"deleted", ev.Deleted, "dense", ev.Dense, "migrated", ev.Migrated, "pruned", ev.Pruned,
		"nodes_removed", ev.Forest.NodesRemoved, "trees_expired", ev.Forest.TreesExpired)
}

func (e *Engine) countSkipped(before, after stream.Stats) {
	if d := after.Filtered - before.Filtered; d > 0 {
		e.filtered += d
		metrics.EdgesTotal.WithLabelValues(metrics.OutcomeFiltered).Add(float64(d))
	}
	if d := after.OutOfOrder - before.OutOfOrder; d > 0 {
		e.outOfOrder += d
		metrics.EdgesTotal.WithLabelValues(metrics.OutcomeOutOfOrder).Add(float64(d))
	}
}

// finish computes the summary and flushes the reports.
func (e *Engine) finish(runErr error) error {
	e.gate.close()
	elapsed := time.Since(e.started)

	windows := e.controller.Windows()
	var cardinality float64
	for _, w := range windows {
		cardinality += float64(w.Count)
	}
	if len(windows) > 0 {
		cardinality /= float64(len(windows))
	}
	e.summary = persistence.SummaryRecord{
		RunID:                e.RunID.String(),
		TotalEdges:           e.processed,
		Matches:              e.sink.MatchedPaths(),
		ExecTimeSeconds:      elapsed.Seconds(),
		WindowsCreated:       len(windows),
		AvgWindowCardinality: cardinality,
		AvgWindowSize:        e.env.Stats.AvgSize(),
	}

	var err error
	if e.reports != nil {
		err = errors.Join(
			e.reports.WriteSummary(e.summary),
			e.reports.WriteMatchesFile(e.sink.Export),
			e.reports.Close(),
		)
		e.reports = nil
	}

	state := StateFinished
	if runErr != nil || err != nil {
		state = StateFailed
	}
	e.publish(state, errors.Join(runErr, err))

	slog.Info("Run finished", "run_id", e.RunID, "state", state, "edges", e.processed,
		"shed", e.env.Stats.Shed, "matches", e.summary.Matches, "windows", len(windows),
		"saved_by_retention", e.saved, "elapsed", elapsed)
	return err
}

// Close releases the report files of a run that never finished.
func (e *Engine) Close() error {
	e.gate.close()
	if e.reports == nil {
		return nil
	}
	err := e.reports.Close()
	e.reports = nil
	return err
}

func (e *Engine) publish(state string, err error) {
	st := &Status{
		RunID:            e.RunID.String(),
		State:            state,
		Mode:             e.policy.Name(),
		Processed:        e.processed,
		Filtered:         e.filtered,
		OutOfOrder:       e.outOfOrder,
		SavedByRetention: e.saved,
		DenseEdges:       e.dense,
		LastTime:         e.lastTime,
		Windows:          len(e.controller.Windows()),
		LiveWindows:      e.controller.LiveWindows(),
		WindowSize:       e.controller.Size(),
		GraphEdges:       e.graph.EdgeCount(),
		ForestNodes:      e.forest.NodeCount(),
		ForestTrees:      e.forest.TreeCount(),
		Results:          e.sink.Size(),
		Matched:          e.sink.MatchedPaths(),
	}
	if e.env != nil {
		st.Shed = e.env.Stats.Shed
		st.NormalizedCost = e.env.Stats.Normalized
		st.ShedProbability = e.env.Stats.ShedProbability
	}
	if err != nil {
		st.Error = err.Error()
	}
	e.status.Store(st)
}
