package coach

import (
	"fmt"

	"github.com/talgya/bee-forage/internal/curriculum"
)

// Actions the coach can take.
const (
	ActionNone    = "none"
	ActionAdvance = "advance"
	ActionRealign = "realign"
)

// Decision is the coach's output for one cycle.
type Decision struct {
	Action    string            `json:"action"`
	Lesson    int               `json:"lesson"`
	Params    curriculum.Params `json:"params"`
	Rationale string            `json:"rationale"`
}

// Decide picks at most one curriculum change. A server whose parameters
// drifted from the lesson (restart, manual edit) is realigned first.
func Decide(sched curriculum.Schedule, h *Health) Decision {
	switch h.Stage {
	case StageDrifted:
		return Decision{
			Action:    ActionRealign,
			Lesson:    h.Lesson,
			Params:    sched.Params(h.Lesson),
			Rationale: fmt.Sprintf("server parameters differ from lesson %q", sched.Lessons[h.Lesson].Name),
		}
	case StageReady:
		next := h.Evaluation.Lesson
		return Decision{
			Action:    ActionAdvance,
			Lesson:    next,
			Params:    sched.Params(next),
			Rationale: fmt.Sprintf("%s; moving to %q", h.Evaluation.Reason, sched.Lessons[next].Name),
		}
	default:
		return Decision{
			Action:    ActionNone,
			Lesson:    h.Lesson,
			Params:    sched.Params(h.Lesson),
			Rationale: h.Evaluation.Reason,
		}
	}
}
