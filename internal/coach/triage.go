package coach

import "github.com/talgya/bee-forage/internal/curriculum"

// Training stages reported by Triage.
const (
	StageCollecting = "COLLECTING"
	StageLearning   = "LEARNING"
	StageReady      = "READY"
	StageFinal      = "FINAL"
	StageDrifted    = "DRIFTED"
)

// Health holds derived signals computed from a Snapshot.
// Deterministic; Decide acts on it.
type Health struct {
	Lesson     int
	Rewards    []float64 // Episodes run under the lesson's parameters, oldest first
	Evaluation curriculum.Decision
	Drifted    bool // Server parameters differ from the lesson's
	Stage      string
}

// Triage evaluates the current lesson against the episodes that ran under
// its parameters. Episodes from earlier lessons are ignored.
func Triage(snap *Snapshot, sched curriculum.Schedule) *Health {
	lesson := sched.Clamp(snap.Curriculum.Lesson)
	want := sched.Params(lesson)
	h := &Health{
		Lesson:  lesson,
		Drifted: snap.Curriculum.Curriculum != want,
	}

	// Episodes are newest first; stop at the first one from another lesson.
	for _, e := range snap.Episodes {
		if e.Curriculum != want {
			break
		}
		h.Rewards = append(h.Rewards, e.Reward)
	}
	for i, j := 0, len(h.Rewards)-1; i < j; i, j = i+1, j-1 {
		h.Rewards[i], h.Rewards[j] = h.Rewards[j], h.Rewards[i]
	}

	h.Evaluation = sched.Evaluate(lesson, h.Rewards)
	switch {
	case h.Drifted:
		h.Stage = StageDrifted
	case lesson == len(sched.Lessons)-1:
		h.Stage = StageFinal
	case h.Evaluation.Advance:
		h.Stage = StageReady
	case len(h.Rewards) < max(sched.MinEpisodes, sched.Window):
		h.Stage = StageCollecting
	default:
		h.Stage = StageLearning
	}
	return h
}
