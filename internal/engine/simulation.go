// Simulation is one training slot: an environment, its bee, and the episode
// bookkeeping around them. A slot is stepped either by an in-process policy
// on the engine loop or by a remote policy in lockstep.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/policy"
	"github.com/talgya/bee-forage/internal/world"
)

// Episode end reasons.
const (
	EndMaxSteps = "max_steps"
	EndReset    = "reset"
)

// SlotConfig controls episode bookkeeping for one slot.
type SlotConfig struct {
	Slot     int
	MaxSteps int // 0 means episodes end only on a reset request
}

// StepResult is what a policy sees after each tick.
type StepResult struct {
	Observation []float64 `json:"observation"`
	Reward      float64   `json:"reward"`
	Done        bool      `json:"done"`
	Episode     int       `json:"episode"`
	Step        int       `json:"step"`
}

// Transition is one recorded step.
type Transition struct {
	Session     string        `json:"session"`
	Episode     int           `json:"episode"`
	Step        int           `json:"step"`
	Observation []float64     `json:"observation"`
	Action      agents.Action `json:"action"`
	Reward      float64       `json:"reward"`
	Done        bool          `json:"done"`
}

// Recorder stores transitions.
type Recorder interface {
	Record(t Transition) error
}

// EpisodeSummary describes a finished episode.
type EpisodeSummary struct {
	Session    string            `json:"session"`
	Slot       int               `json:"slot"`
	Episode    int               `json:"episode"`
	Steps      int               `json:"steps"`
	Reward     float64           `json:"reward"`
	Collected  float64           `json:"collected"`
	Deposited  float64           `json:"deposited"`
	Deposits   int               `json:"deposits"`
	EndedBy    string            `json:"ended_by"`
	Curriculum curriculum.Params `json:"curriculum"`
	EndedAt    time.Time         `json:"ended_at"`
}

// SimStats tracks aggregate slot statistics.
type SimStats struct {
	Episodes       int     `json:"episodes"`
	Steps          uint64  `json:"steps"`
	TotalDeposited float64 `json:"total_deposited"`
	LastReward     float64 `json:"last_reward"`
	BestReward     float64 `json:"best_reward"`
}

// SlotSnapshot is a copy of a slot's state for reporting.
type SlotSnapshot struct {
	Session string         `json:"session"`
	Slot    int            `json:"slot"`
	Step    int            `json:"step"`
	Reward  float64        `json:"episode_reward"`
	Bee     agents.Bee     `json:"bee"`
	World   world.Snapshot `json:"world"`
	Stats   SimStats       `json:"stats"`
}

// Simulation holds one environment and its bee.
type Simulation struct {
	ID string

	// Optional hooks — populated during setup.
	OnEpisodeEnd func(EpisodeSummary)
	Recorder     Recorder
	Events       *EventLog

	mu      sync.Mutex
	cfg     SlotConfig
	env     *world.Environment
	bee     *agents.Bee
	step    int
	reward  float64 // Episode total so far
	last    StepResult
	started bool
	stats   SimStats
}

// NewSimulation creates a slot. Reset starts the first episode.
func NewSimulation(cfg SlotConfig, env *world.Environment, bee *agents.Bee) *Simulation {
	return &Simulation{
		ID:  uuid.NewString(),
		cfg: cfg,
		env: env,
		bee: bee,
	}
}

// Reset starts a new episode and returns its first observation.
func (s *Simulation) Reset() StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Simulation) resetLocked() StepResult {
	s.bee.Reset(s.env)
	s.step = 0
	s.reward = 0
	s.started = true
	s.last = StepResult{
		Observation: s.bee.Observe(s.env),
		Episode:     s.env.Episode(),
	}
	return s.last
}

// Step applies one action and advances the slot by one tick. Stepping a
// finished episode starts the next one instead.
func (s *Simulation) Step(a agents.Action) StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.last.Done {
		return s.resetLocked()
	}

	a = a.Clamped()
	if err := s.bee.Step(a, s.env.Clock().DT, s.env); err != nil {
		slog.Warn("bee step failed", "session", s.ID, "bee", s.bee.ID, "error", err)
	}
	s.env.Tick()

	s.step++
	s.stats.Steps++
	reward := s.bee.TakeReward()
	s.reward += reward

	endedBy := ""
	switch {
	case a.Reset:
		endedBy = EndReset
	case s.cfg.MaxSteps > 0 && s.step >= s.cfg.MaxSteps:
		endedBy = EndMaxSteps
	}

	s.last = StepResult{
		Observation: s.bee.Observe(s.env),
		Reward:      reward,
		Done:        endedBy != "",
		Episode:     s.env.Episode(),
		Step:        s.step,
	}

	if s.Recorder != nil {
		err := s.Recorder.Record(Transition{
			Session:     s.ID,
			Episode:     s.last.Episode,
			Step:        s.step,
			Observation: s.last.Observation,
			Action:      a,
			Reward:      reward,
			Done:        s.last.Done,
		})
		if err != nil {
			slog.Error("trajectory record failed", "session", s.ID, "error", err)
		}
	}

	if endedBy != "" {
		s.finishEpisode(endedBy)
	}
	return s.last
}

// finishEpisode updates stats and notifies listeners. Called with mu held.
func (s *Simulation) finishEpisode(endedBy string) {
	summary := EpisodeSummary{
		Session:    s.ID,
		Slot:       s.cfg.Slot,
		Episode:    s.env.Episode(),
		Steps:      s.step,
		Reward:     s.reward,
		Collected:  s.bee.Collected,
		Deposited:  s.bee.Deposited,
		Deposits:   s.bee.Deposits,
		EndedBy:    endedBy,
		Curriculum: s.env.Curriculum(),
		EndedAt:    time.Now().UTC(),
	}

	if s.stats.Episodes == 0 || summary.Reward > s.stats.BestReward {
		s.stats.BestReward = summary.Reward
	}
	s.stats.Episodes++
	s.stats.TotalDeposited += summary.Deposited
	s.stats.LastReward = summary.Reward

	slog.Debug("episode finished",
		"session", s.ID,
		"slot", s.cfg.Slot,
		"episode", summary.Episode,
		"steps", summary.Steps,
		"reward", summary.Reward,
		"deposited", summary.Deposited,
		"ended_by", endedBy,
	)

	if s.Events != nil {
		s.Events.Emit(Event{
			Tick:        s.env.Now(),
			Description: fmt.Sprintf("slot %d episode %d ended (%s): reward %.3f, deposited %.2f", s.cfg.Slot, summary.Episode, endedBy, summary.Reward, summary.Deposited),
			Category:    CategoryEpisode,
			Meta: map[string]any{
				"session": s.ID,
				"episode": summary.Episode,
				"reward":  summary.Reward,
			},
		})
	}
	if s.OnEpisodeEnd != nil {
		s.OnEpisodeEnd(summary)
	}
}

// TickPolicy asks p for an action on the latest observation and applies it.
// A finished episode gets one final call with done set, then a reset.
func (s *Simulation) TickPolicy(ctx context.Context, p policy.Policy) error {
	s.mu.Lock()
	if !s.started {
		s.resetLocked()
	}
	last := s.last
	s.mu.Unlock()

	a, err := p.Act(ctx, last.Observation, last.Done)
	if err != nil {
		return fmt.Errorf("policy %s: %w", p.Name(), err)
	}
	if last.Done {
		s.Reset()
		return nil
	}
	s.Step(a)
	return nil
}

// Last returns the most recent step result.
func (s *Simulation) Last() StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Stats returns a copy of the slot statistics.
func (s *Simulation) Stats() SimStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SetFlowerCount grows the slot's meadow from its next reset. It returns
// false when n would shrink it.
func (s *Simulation) SetFlowerCount(n int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env.SetFlowerCount(n)
}

// Slot returns the slot index.
func (s *Simulation) Slot() int { return s.cfg.Slot }

// Snapshot copies the slot's state.
func (s *Simulation) Snapshot() SlotSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SlotSnapshot{
		Session: s.ID,
		Slot:    s.cfg.Slot,
		Step:    s.step,
		Reward:  s.reward,
		Bee:     *s.bee,
		World:   s.env.Snapshot(),
		Stats:   s.stats,
	}
}
