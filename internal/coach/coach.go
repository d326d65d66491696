package coach

import (
	"log/slog"
	"time"

	"github.com/talgya/bee-forage/internal/curriculum"
)

// Coach runs observe, decide and act cycles against one server.
type Coach struct {
	Observer *Observer
	Actor    *Actor
	Schedule curriculum.Schedule
	Memory   *CycleMemory // Optional
}

// RunCycle executes one observe → decide → act cycle.
func (c *Coach) RunCycle() (CycleRecord, error) {
	snap, err := c.Observer.Observe()
	if err != nil {
		return CycleRecord{}, err
	}
	h := Triage(snap, c.Schedule)
	d := Decide(c.Schedule, h)

	rec := CycleRecord{
		Time:       time.Now().UTC(),
		Tick:       snap.Status.Tick,
		Action:     d.Action,
		Lesson:     d.Lesson,
		Stage:      h.Stage,
		MeanReward: h.Evaluation.MeanReward,
		Episodes:   len(h.Rewards),
		Rationale:  d.Rationale,
	}
	slog.Info("coach decision",
		"action", d.Action,
		"stage", h.Stage,
		"lesson", d.Lesson,
		"mean_reward", h.Evaluation.MeanReward,
		"episodes", len(h.Rewards),
		"rationale", d.Rationale,
	)

	if d.Action != ActionNone {
		state, err := c.Actor.Act(d)
		if err != nil {
			return rec, err
		}
		slog.Info("curriculum updated",
			"lesson", state.Lesson,
			"hive_radius", state.Curriculum.HiveRadius,
			"use_radius", state.Curriculum.UseRadius,
			"version", state.Version,
		)
	}

	if c.Memory != nil {
		c.Memory.Record(rec)
		if err := c.Memory.Save(); err != nil {
			slog.Error("coach memory save failed", "error", err)
		}
	}
	return rec, nil
}
