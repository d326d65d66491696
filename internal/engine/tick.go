// Package engine provides the fixed-timestep loop and the training slots it
// drives. Every tick is synchronous: a slot's policy answers before the tick
// completes.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // Base tick interval; 0 runs unthrottled

	// Callbacks for each tick layer — populated during setup.
	OnTick       func(ctx context.Context, tick uint64) // Every tick
	OnReport     func(tick uint64)                      // Every ReportEvery ticks
	OnCheckpoint func(tick uint64)                      // Every CheckpointEvery ticks

	ReportEvery     uint64
	CheckpointEvery uint64

	tick    atomic.Uint64 // Monotonic, never resets
	running atomic.Bool

	mu     sync.RWMutex
	speed  float64 // 1.0 = Interval per tick, 0 = paused
	cancel context.CancelFunc
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval:        20 * time.Millisecond,
		ReportEvery:     5000,
		CheckpointEvery: 50000,
		speed:           1.0,
	}
}

// Tick returns the number of ticks run so far.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// SetTick restores the tick counter, e.g. from a saved run. Call before Run.
func (e *Engine) SetTick(t uint64) { e.tick.Store(t) }

// Running reports whether Run is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. 0 pauses; negative values are
// treated as 0.
func (e *Engine) SetSpeed(speed float64) {
	if speed < 0 {
		speed = 0
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Run starts the loop. Blocks until ctx is done or Stop is called.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed(), "interval", e.Interval)

	for ctx.Err() == nil {
		speed := e.Speed()
		if speed <= 0 {
			// Paused — sleep briefly and check again.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()
		e.step(ctx)

		if e.Interval > 0 {
			elapsed := time.Since(start)
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed < target {
				sleep(ctx, target-elapsed)
			}
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick())
}

// Stop halts a running loop.
func (e *Engine) Stop() {
	e.mu.RLock()
	cancel := e.cancel
	e.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// StepN runs n ticks immediately, ignoring speed and interval. It is the
// headless driver for batch training and tests.
func (e *Engine) StepN(ctx context.Context, n uint64) {
	for i := uint64(0); i < n && ctx.Err() == nil; i++ {
		e.step(ctx)
	}
}

// step advances the simulation by one tick.
func (e *Engine) step(ctx context.Context) {
	tick := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(ctx, tick)
	}
	if e.ReportEvery > 0 && tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
	if e.CheckpointEvery > 0 && tick%e.CheckpointEvery == 0 && e.OnCheckpoint != nil {
		e.OnCheckpoint(tick)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
