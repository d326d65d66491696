package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/bee-forage/internal/config"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/engine"
	"github.com/talgya/bee-forage/internal/entropy"
	"github.com/talgya/bee-forage/internal/persistence"
	"github.com/talgya/bee-forage/internal/policy"
)

// run bundles everything one beesim process drives.
type run struct {
	cfg      *config.Config
	id       string
	seed     int64
	db       *persistence.DB
	board    *curriculum.Board
	lesson   int
	events   *engine.EventLog
	registry *engine.Registry
	factory  *engine.SlotFactory
	batch    *engine.Batch // nil when no in-process slots
	eng      *engine.Engine
	recorder *persistence.TrajectoryWriter // nil unless recording

	started time.Time
}

// openRun restores persisted state and builds the slots. With localSlots 0
// no in-process batch is created.
func openRun(cfg *config.Config, localSlots int) (*run, error) {
	r := &run{
		cfg:      cfg,
		events:   engine.NewEventLog(1000),
		registry: engine.NewRegistry(),
		started:  time.Now(),
	}

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Data.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := persistence.Open(cfg.Data.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	r.db = db
	slog.Info("database opened", "path", cfg.Data.DBPath)

	r.id, err = db.GetMeta(persistence.MetaRunID)
	if errors.Is(err, sql.ErrNoRows) {
		r.id = uuid.NewString()
		err = db.SaveMeta(persistence.MetaRunID, r.id)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run id: %w", err)
	}

	// ── Seed ──────────────────────────────────────────────────────────
	r.seed = entropy.Resolve(cfg.Sim.Seed)
	cfg.Environment.Seed = r.seed

	// ── Curriculum (resumed when saved) ───────────────────────────────
	r.board = curriculum.NewBoard(cfg.CurriculumParams())
	p, lesson, ok, err := db.LoadCurriculum()
	switch {
	case err != nil:
		slog.Warn("saved curriculum unreadable, using configured values", "error", err)
	case ok:
		if err := r.board.Set(p); err != nil {
			slog.Warn("saved curriculum rejected", "error", err)
		}
		r.lesson = lesson
		slog.Info("curriculum resumed", "hive_radius", p.HiveRadius, "use_radius", p.UseRadius, "lesson", lesson)
	}

	// ── Trajectories ──────────────────────────────────────────────────
	r.factory = &engine.SlotFactory{
		World:        cfg.Environment,
		Bee:          cfg.Bee,
		MaxSteps:     cfg.Sim.MaxSteps,
		Source:       r.board,
		Events:       r.events,
		OnEpisodeEnd: r.saveEpisode,
	}
	if cfg.Data.RecordTrajectories {
		r.recorder = persistence.NewTrajectoryWriter(cfg.Data.TrajectoryDir, "trajectory")
		r.factory.Recorder = r.recorder
		slog.Info("recording trajectories", "dir", cfg.Data.TrajectoryDir)
	}

	// ── In-process slots ──────────────────────────────────────────────
	if localSlots > 0 {
		slots := r.factory.NewN(localSlots)
		policies := make([]policy.Policy, 0, localSlots)
		for i := range slots {
			p, ok := policy.New(cfg.Sim.Policy, entropy.SlotSeed(r.seed, i))
			if !ok {
				r.Close()
				return nil, fmt.Errorf("unknown policy %q", cfg.Sim.Policy)
			}
			policies = append(policies, p)
		}
		batch, err := engine.NewBatch(slots, policies)
		if err != nil {
			r.Close()
			return nil, err
		}
		batch.Events = r.events
		for _, s := range slots {
			r.registry.Add(s, "batch")
		}
		r.batch = batch
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Interval = time.Duration(cfg.Sim.IntervalMS) * time.Millisecond
	eng.SetSpeed(cfg.Sim.Speed)
	eng.ReportEvery = cfg.Sim.ReportEvery
	eng.CheckpointEvery = cfg.Sim.CheckpointEvery
	if tickStr, err := db.GetMeta(persistence.MetaLastTick); err == nil {
		if t, err := strconv.ParseUint(tickStr, 10, 64); err == nil {
			eng.SetTick(t)
		}
	}
	if r.batch != nil {
		eng.OnTick = r.batch.Tick
	}
	eng.OnReport = r.report
	eng.OnCheckpoint = r.checkpoint
	r.eng = eng

	r.events.Emit(engine.Event{
		Tick:        eng.Tick(),
		Description: fmt.Sprintf("run started: %d local slots, policy %s, seed %d", localSlots, cfg.Sim.Policy, r.seed),
		Category:    engine.CategorySession,
		Meta:        map[string]any{"run_id": r.id, "seed": r.seed},
	})
	slog.Info("run ready",
		"run_id", r.id,
		"seed", r.seed,
		"slots", localSlots,
		"policy", cfg.Sim.Policy,
		"flowers", cfg.Environment.FlowerCount,
		"max_steps", cfg.Sim.MaxSteps,
		"tick", eng.Tick(),
	)
	return r, nil
}

// followSchedule lets the batch advance lessons itself.
func (r *run) followSchedule() error {
	if r.batch == nil {
		return nil
	}
	sched, err := r.cfg.Schedule()
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	progress, err := curriculum.NewProgress(sched, r.lesson, r.board)
	if err != nil {
		return err
	}
	r.batch.FollowSchedule(progress)
	slog.Info("following lesson schedule", "lessons", len(sched.Lessons), "lesson", sched.Lessons[progress.Lesson].Name)
	return nil
}

func (r *run) saveEpisode(sum engine.EpisodeSummary) {
	if err := r.db.SaveEpisode(sum); err != nil {
		slog.Error("episode save failed", "session", sum.Session, "episode", sum.Episode, "error", err)
	}
}

func (r *run) currentLesson() int {
	if r.batch != nil {
		if l := r.batch.Lesson(); l >= 0 {
			return l
		}
	}
	return r.lesson
}

func (r *run) report(tick uint64) {
	attrs := []any{
		"tick", humanize.Comma(int64(tick)),
		"sessions", r.registry.Len(),
		"elapsed", time.Since(r.started).Round(time.Second),
	}
	if r.batch != nil {
		st := r.batch.Stats()
		attrs = append(attrs,
			"episodes", humanize.Comma(int64(st.Episodes)),
			"steps", humanize.Comma(int64(st.Steps)),
			"deposited", fmt.Sprintf("%.2f", st.TotalDeposited),
			"best_reward", fmt.Sprintf("%.3f", st.BestReward),
			"lesson", r.currentLesson(),
		)
	}
	slog.Info("progress", attrs...)
}

func (r *run) checkpoint(tick uint64) {
	if err := r.db.SaveRunState(tick, r.events); err != nil {
		slog.Error("checkpoint failed", "tick", tick, "error", err)
	}
	if r.batch != nil && r.batch.Lesson() >= 0 {
		if err := r.db.SaveCurriculum(r.board.Current(), r.batch.Lesson()); err != nil {
			slog.Error("curriculum save failed", "error", err)
		}
	}
	if r.recorder != nil {
		if err := r.recorder.Flush(); err != nil {
			slog.Error("trajectory flush failed", "error", err)
		}
	}
}

// Close checkpoints and releases files.
func (r *run) Close() {
	if r.eng != nil {
		r.checkpoint(r.eng.Tick())
	}
	if r.recorder != nil {
		if err := r.recorder.Close(); err != nil {
			slog.Error("trajectory close failed", "error", err)
		}
	}
	if err := r.db.Close(); err != nil {
		slog.Error("database close failed", "error", err)
	}
}
