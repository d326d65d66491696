package persistence

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "beesim.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_Pragmas(t *testing.T) {
	db := openTestDB(t)
	var mode string
	if err := db.conn.Get(&mode, "PRAGMA journal_mode"); err != nil || mode != "wal" {
		t.Fatalf("journal_mode: got %q (%v) want wal", mode, err)
	}
	var timeout int
	if err := db.conn.Get(&timeout, "PRAGMA busy_timeout"); err != nil || timeout != 5000 {
		t.Fatalf("busy_timeout: got %d (%v) want 5000", timeout, err)
	}
}

func TestEpisodes_ConcurrentSaves(t *testing.T) {
	db := openTestDB(t)

	const slots, perSlot = 8, 50
	var wg sync.WaitGroup
	errs := make(chan error, slots*perSlot)
	for slot := 0; slot < slots; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			for ep := 1; ep <= perSlot; ep++ {
				errs <- db.SaveEpisode(engine.EpisodeSummary{
					Session: fmt.Sprintf("slot-%d", slot),
					Slot:    slot,
					Episode: ep,
					Reward:  1,
					EndedBy: engine.EndMaxSteps,
					EndedAt: time.Now(),
				})
			}
		}(slot)
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed != 0 {
		t.Fatalf("failed saves: got %d want 0", failed)
	}
	s, err := db.Summarize(10)
	if err != nil || s.Episodes != slots*perSlot {
		t.Fatalf("persisted: got %d (%v) want %d", s.Episodes, err, slots*perSlot)
	}
}

func TestEpisodes_SaveAndSummarize(t *testing.T) {
	db := openTestDB(t)

	s, err := db.Summarize(10)
	if err != nil || s.Episodes != 0 {
		t.Fatalf("empty summary: %+v, %v", s, err)
	}

	rewards := []float64{1, 2, 3, 4}
	for i, r := range rewards {
		err := db.SaveEpisode(engine.EpisodeSummary{
			Session:    "s1",
			Episode:    i + 1,
			Steps:      100,
			Reward:     r,
			Deposited:  r / 2,
			EndedBy:    engine.EndMaxSteps,
			Curriculum: curriculum.Params{HiveRadius: 4, UseRadius: true},
			EndedAt:    time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	recent, err := db.RecentEpisodes(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Episode != 4 || recent[1].Episode != 3 {
		t.Fatalf("recent: %+v", recent)
	}
	if got := recent[0].Curriculum; got.HiveRadius != 4 || !got.UseRadius {
		t.Fatalf("curriculum round trip: %+v", got)
	}

	s, err = db.Summarize(2)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Episodes != 4 || s.Window != 2 || s.MeanReward != 3.5 || s.BestReward != 4 || s.MeanDeposited != 1.75 {
		t.Fatalf("summary: %+v", s)
	}
}

func TestEvents_SaveRunState(t *testing.T) {
	db := openTestDB(t)
	log := engine.NewEventLog(10)
	log.Emit(engine.Event{Tick: 5, Description: "first", Category: engine.CategoryEpisode})
	log.Emit(engine.Event{Tick: 9, Description: "second", Category: engine.CategoryCurriculum, Meta: map[string]any{"lesson": 1}})

	if err := db.SaveRunState(9, log); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(log.Unsaved()) != 0 {
		t.Fatalf("events still unsaved")
	}
	// A second checkpoint with nothing new must not duplicate rows.
	if err := db.SaveRunState(10, log); err != nil {
		t.Fatalf("save again: %v", err)
	}

	events, err := db.RecentEvents(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 || events[0].Description != "second" {
		t.Fatalf("events: %+v", events)
	}
	if events[0].Meta["lesson"] != float64(1) {
		t.Fatalf("meta: %+v", events[0].Meta)
	}

	tick, err := db.GetMeta(MetaLastTick)
	if err != nil || tick != "10" {
		t.Fatalf("last tick: %q, %v", tick, err)
	}
}

func TestCurriculum_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beesim.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, ok, err := db.LoadCurriculum(); ok || err != nil {
		t.Fatalf("fresh db: ok=%v err=%v", ok, err)
	}
	want := curriculum.Params{HiveRadius: 2, UseRadius: true}
	if err := db.SaveCurriculum(want, 2); err != nil {
		t.Fatalf("save: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	got, lesson, ok, err := db.LoadCurriculum()
	if err != nil || !ok || got != want || lesson != 2 {
		t.Fatalf("got %+v lesson %d ok=%v err=%v", got, lesson, ok, err)
	}
}

func TestTrajectoryWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewTrajectoryWriter(dir, "traj")
	fixed := time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	for i := 1; i <= 3; i++ {
		err := w.Record(engine.Transition{
			Session:     "s",
			Episode:     1,
			Step:        i,
			Observation: make([]float64, agents.ObservationSize),
			Action:      agents.Action{Thrust: 0.5},
			Reward:      float64(i),
			Done:        i == 3,
		})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := ReadTrajectory(filepath.Join(dir, "traj-2026-03-04-05.jsonl.zst"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || !got[2].Done || got[1].Reward != 2 || len(got[0].Observation) != agents.ObservationSize {
		t.Fatalf("transitions: %+v", got)
	}
	if w.Written() != 3 {
		t.Fatalf("written: got %d want 3", w.Written())
	}
}
