package engine

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/policy"
	"github.com/talgya/bee-forage/internal/world"
)

type memoryRecorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *memoryRecorder) Record(t Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return nil
}

func newTestSlot(maxSteps int, src curriculum.Source) *Simulation {
	f := &SlotFactory{
		World:    world.DefaultConfig(),
		Bee:      agents.DefaultParams(),
		MaxSteps: maxSteps,
		Source:   src,
	}
	return f.New(0)
}

func TestSimulation_ResetObservation(t *testing.T) {
	s := newTestSlot(10, nil)
	res := s.Reset()
	if len(res.Observation) != agents.ObservationSize {
		t.Fatalf("observation: got %d values want %d", len(res.Observation), agents.ObservationSize)
	}
	if res.Step != 0 || res.Done || res.Reward != 0 {
		t.Fatalf("unexpected first result: %+v", res)
	}
	if res.Episode != 1 {
		t.Fatalf("episode: got %d want 1", res.Episode)
	}
}

func TestSimulation_EpisodeEndsAtMaxSteps(t *testing.T) {
	s := newTestSlot(5, nil)
	var summaries []EpisodeSummary
	s.OnEpisodeEnd = func(sum EpisodeSummary) { summaries = append(summaries, sum) }
	s.Reset()

	total := 0.0
	var res StepResult
	for i := 0; i < 5; i++ {
		res = s.Step(agents.Action{Thrust: 1})
		total += res.Reward
		if i < 4 && res.Done {
			t.Fatalf("done early at step %d", res.Step)
		}
	}
	if !res.Done || res.Step != 5 {
		t.Fatalf("last result: %+v", res)
	}
	if len(summaries) != 1 {
		t.Fatalf("summaries: got %d want 1", len(summaries))
	}
	sum := summaries[0]
	if sum.Steps != 5 || sum.EndedBy != EndMaxSteps {
		t.Fatalf("summary: %+v", sum)
	}
	if math.Abs(sum.Reward-total) > 1e-12 {
		t.Fatalf("summary reward %v != step rewards %v", sum.Reward, total)
	}

	next := s.Step(agents.Action{Thrust: 1})
	if next.Step != 0 || next.Done || next.Episode != 2 {
		t.Fatalf("step after done should reset: %+v", next)
	}
}

func TestSimulation_ResetRequestEndsEpisode(t *testing.T) {
	s := newTestSlot(0, nil)
	var ended string
	s.OnEpisodeEnd = func(sum EpisodeSummary) { ended = sum.EndedBy }
	s.Reset()

	s.Step(agents.Action{Thrust: 1})
	res := s.Step(agents.Action{Thrust: 1, Reset: true})
	if !res.Done || ended != EndReset {
		t.Fatalf("done=%v ended=%q", res.Done, ended)
	}
}

func TestSimulation_RecordsTransitions(t *testing.T) {
	s := newTestSlot(3, nil)
	rec := &memoryRecorder{}
	s.Recorder = rec
	s.Reset()

	for i := 0; i < 3; i++ {
		s.Step(agents.Action{Thrust: 0.5, Yaw: 2})
	}
	if len(rec.transitions) != 3 {
		t.Fatalf("transitions: got %d want 3", len(rec.transitions))
	}
	last := rec.transitions[2]
	if !last.Done || last.Step != 3 || last.Session != s.ID {
		t.Fatalf("last transition: %+v", last)
	}
	if last.Action.Yaw != 1 {
		t.Fatalf("recorded action not clamped: %+v", last.Action)
	}
}

func TestSimulation_TickPolicy(t *testing.T) {
	s := newTestSlot(10, nil)
	events := NewEventLog(10)
	s.Events = events
	p := policy.NewRandom(3)

	for i := 0; i < 30; i++ {
		if err := s.TickPolicy(context.Background(), p); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	if got := s.Stats().Episodes; got != 2 {
		t.Fatalf("episodes: got %d want 2", got)
	}
	if got := len(events.Recent(0)); got != 2 {
		t.Fatalf("events: got %d want 2", got)
	}
}

func TestSimulation_CurriculumFixedWithinEpisode(t *testing.T) {
	board := curriculum.NewBoard(curriculum.Params{HiveRadius: 6, UseRadius: true})
	s := newTestSlot(4, board)
	var got []float64
	s.OnEpisodeEnd = func(sum EpisodeSummary) { got = append(got, sum.Curriculum.HiveRadius) }
	s.Reset()

	s.Step(agents.Action{})
	if err := board.Set(curriculum.Params{HiveRadius: 1, UseRadius: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 3; i++ {
		s.Step(agents.Action{})
	}
	s.Step(agents.Action{}) // Starts the next episode
	for i := 0; i < 4; i++ {
		s.Step(agents.Action{})
	}

	if len(got) != 2 || got[0] != 6 || got[1] != 1 {
		t.Fatalf("curriculum per episode: got %v want [6 1]", got)
	}
}

func TestSimulation_Snapshot(t *testing.T) {
	s := newTestSlot(10, nil)
	s.Reset()
	s.Step(agents.Action{Thrust: 1})

	snap := s.Snapshot()
	if snap.Session != s.ID || snap.Step != 1 {
		t.Fatalf("snapshot: %+v", snap)
	}
	if len(snap.World.Flowers) != world.DefaultConfig().FlowerCount {
		t.Fatalf("flowers: got %d", len(snap.World.Flowers))
	}
}
