package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotPaused is returned by Step when the gate is open.
	ErrNotPaused = errors.New("pipeline is not paused")
	// ErrStopped is returned by Step once the run has ended.
	ErrStopped = errors.New("pipeline stopped")
)

// Gate lets an external controller pause the processing loop between edges
// and release it one edge at a time. The loop is the only goroutine touching
// pipeline state; the gate only exchanges single-slot signals with it.
type Gate struct {
	paused atomic.Bool
	req    chan struct{}
	ack    chan int64
	wake   chan struct{}
	stop   chan struct{}
	once   sync.Once
}

// NewGate returns a gate, paused if paused is true.
func NewGate(paused bool) *Gate {
	g := &Gate{
		req:  make(chan struct{}),
		ack:  make(chan int64, 1),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	g.paused.Store(paused)
	return g
}

// Paused reports whether the gate holds the loop.
func (g *Gate) Paused() bool { return g.paused.Load() }

// Pause makes the loop wait before its next edge.
func (g *Gate) Pause() {
	g.paused.Store(true)
	select {
	case <-g.wake:
	default:
	}
}

// Continue releases the loop.
func (g *Gate) Continue() {
	g.paused.Store(false)
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Step releases exactly one edge and waits until the loop has processed it.
// It returns the number of edges processed so far.
func (g *Gate) Step(ctx context.Context) (int64, error) {
	if !g.paused.Load() {
		return 0, ErrNotPaused
	}
	select {
	case <-g.ack:
	default:
	}
	select {
	case g.req <- struct{}{}:
	case <-g.stop:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case n := <-g.ack:
		return n, nil
	case <-g.stop:
		select {
		case n := <-g.ack:
			return n, nil
		default:
			return 0, ErrStopped
		}
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// wait blocks the loop while paused. stepped is true when the edge about to
// be processed was released by Step.
func (g *Gate) wait(ctx context.Context) (stepped bool, err error) {
	if !g.paused.Load() {
		return false, nil
	}
	select {
	case <-g.req:
		return true, nil
	case <-g.wake:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// done acknowledges a stepped edge.
func (g *Gate) done(processed int64) {
	select {
	case g.ack <- processed:
	default:
	}
}

// close ends the run; pending and future steps fail with ErrStopped.
func (g *Gate) close() {
	g.once.Do(func() { close(g.stop) })
}
