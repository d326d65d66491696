package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/policy"
)

// Batch steps several independent slots, each with its own policy, once per
// engine tick. Slots share nothing but the curriculum board, so they run in
// parallel.
type Batch struct {
	Slots    []*Simulation
	Policies []policy.Policy
	Events   *EventLog

	mu       sync.Mutex
	progress *curriculum.Progress
	failures int
}

// NewBatch pairs slots with policies. The slices must be the same length.
func NewBatch(slots []*Simulation, policies []policy.Policy) (*Batch, error) {
	if len(slots) != len(policies) {
		return nil, fmt.Errorf("batch: %d slots but %d policies", len(slots), len(policies))
	}
	return &Batch{Slots: slots, Policies: policies}, nil
}

// FollowSchedule advances p from every finished episode's reward. It chains
// onto each slot's existing OnEpisodeEnd hook.
func (b *Batch) FollowSchedule(p *curriculum.Progress) {
	b.progress = p
	for _, s := range b.Slots {
		next := s.OnEpisodeEnd
		s.OnEpisodeEnd = func(sum EpisodeSummary) {
			b.recordEpisode(sum)
			if next != nil {
				next(sum)
			}
		}
	}
}

func (b *Batch) recordEpisode(sum EpisodeSummary) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Slots still finishing an episode begun under an earlier lesson say
	// nothing about the current one.
	if sum.Curriculum != b.progress.Params() {
		return
	}
	d, err := b.progress.Record(sum.Reward)
	if err != nil {
		slog.Error("curriculum update failed", "lesson", d.Lesson, "error", err)
		return
	}
	if !d.Advance {
		return
	}
	lesson := b.progress.Schedule.Lessons[d.Lesson]
	slog.Info("curriculum advanced",
		"lesson", lesson.Name,
		"index", d.Lesson,
		"mean_reward", d.MeanReward,
		"hive_radius", lesson.HiveRadius,
		"use_radius", lesson.UseRadius,
	)
	if b.Events != nil {
		b.Events.Emit(Event{
			Description: fmt.Sprintf("curriculum advanced to %q (mean reward %.3f over %d episodes)", lesson.Name, d.MeanReward, d.Episodes),
			Category:    CategoryCurriculum,
			Meta: map[string]any{
				"lesson":      d.Lesson,
				"hive_radius": lesson.HiveRadius,
				"use_radius":  lesson.UseRadius,
			},
		})
	}
}

// Lesson returns the current lesson index, or -1 without a schedule.
func (b *Batch) Lesson() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.progress == nil {
		return -1
	}
	return b.progress.Lesson
}

// Tick runs one tick on every slot. Policy errors are logged and counted;
// they skip that slot's tick without stopping the batch.
func (b *Batch) Tick(ctx context.Context, _ uint64) {
	var wg sync.WaitGroup
	for i, s := range b.Slots {
		wg.Add(1)
		go func(s *Simulation, p policy.Policy) {
			defer wg.Done()
			if err := s.TickPolicy(ctx, p); err != nil {
				b.mu.Lock()
				b.failures++
				b.mu.Unlock()
				slog.Warn("slot tick failed", "slot", s.Slot(), "error", err)
			}
		}(s, b.Policies[i])
	}
	wg.Wait()
}

// Errors returns the number of failed slot ticks.
func (b *Batch) Errors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Stats sums statistics across slots.
func (b *Batch) Stats() SimStats {
	var total SimStats
	for i, s := range b.Slots {
		st := s.Stats()
		total.Episodes += st.Episodes
		total.Steps += st.Steps
		total.TotalDeposited += st.TotalDeposited
		if i == 0 || st.BestReward > total.BestReward {
			total.BestReward = st.BestReward
		}
		total.LastReward += st.LastReward / float64(len(b.Slots))
	}
	return total
}
