package engine

import (
	"context"
	"testing"
	"time"
)

func TestEngine_StepNLayers(t *testing.T) {
	e := NewEngine()
	e.ReportEvery = 10
	e.CheckpointEvery = 25

	var ticks, reports, checkpoints int
	e.OnTick = func(context.Context, uint64) { ticks++ }
	e.OnReport = func(uint64) { reports++ }
	e.OnCheckpoint = func(uint64) { checkpoints++ }

	e.StepN(context.Background(), 50)
	if ticks != 50 || reports != 5 || checkpoints != 2 {
		t.Fatalf("ticks=%d reports=%d checkpoints=%d", ticks, reports, checkpoints)
	}
	if e.Tick() != 50 {
		t.Fatalf("tick: got %d want 50", e.Tick())
	}
}

func TestEngine_StepNStopsOnCancel(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	e.OnTick = func(_ context.Context, tick uint64) {
		if tick == 3 {
			cancel()
		}
	}
	e.StepN(ctx, 100)
	if e.Tick() != 3 {
		t.Fatalf("tick: got %d want 3", e.Tick())
	}
}

func TestEngine_RunUntilStop(t *testing.T) {
	e := NewEngine()
	e.Interval = 0
	done := make(chan struct{})
	e.OnTick = func(_ context.Context, tick uint64) {
		if tick == 20 {
			e.Stop()
		}
	}

	go func() {
		e.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("engine did not stop")
	}
	if e.Running() {
		t.Fatalf("engine still marked running")
	}
	if e.Tick() < 20 {
		t.Fatalf("tick: got %d want >= 20", e.Tick())
	}
}

func TestEngine_SetSpeed(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(4)
	if e.Speed() != 4 {
		t.Fatalf("speed: got %v want 4", e.Speed())
	}
	e.SetSpeed(-1)
	if e.Speed() != 0 {
		t.Fatalf("negative speed: got %v want 0", e.Speed())
	}
}

func TestEngine_SetTickResumes(t *testing.T) {
	e := NewEngine()
	e.CheckpointEvery = 100
	var at []uint64
	e.OnCheckpoint = func(tick uint64) { at = append(at, tick) }

	e.SetTick(95)
	e.StepN(context.Background(), 10)
	if e.Tick() != 105 || len(at) != 1 || at[0] != 100 {
		t.Fatalf("tick %d checkpoints %v", e.Tick(), at)
	}
}
