// Package persistence provides SQLite storage for episode records, run
// events and run metadata, plus a compressed trajectory recorder.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/engine"
)

// Metadata keys.
const (
	MetaLastTick   = "last_tick"
	MetaCurriculum = "curriculum"
	MetaLesson     = "lesson"
	MetaRunID      = "run_id"
)

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Batch slots finish episodes from many goroutines at once; SQLite
	// takes one writer, so queue them on a single connection.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		slot INTEGER NOT NULL,
		episode INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		reward REAL NOT NULL,
		collected REAL NOT NULL,
		deposited REAL NOT NULL,
		deposits INTEGER NOT NULL,
		ended_by TEXT NOT NULL,
		hive_radius REAL NOT NULL,
		use_radius INTEGER NOT NULL,
		ended_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		time TIMESTAMP NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		meta_json TEXT
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session);
	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type episodeRow struct {
	Session    string    `db:"session"`
	Slot       int       `db:"slot"`
	Episode    int       `db:"episode"`
	Steps      int       `db:"steps"`
	Reward     float64   `db:"reward"`
	Collected  float64   `db:"collected"`
	Deposited  float64   `db:"deposited"`
	Deposits   int       `db:"deposits"`
	EndedBy    string    `db:"ended_by"`
	HiveRadius float64   `db:"hive_radius"`
	UseRadius  bool      `db:"use_radius"`
	EndedAt    time.Time `db:"ended_at"`
}

func toRow(s engine.EpisodeSummary) episodeRow {
	return episodeRow{
		Session:    s.Session,
		Slot:       s.Slot,
		Episode:    s.Episode,
		Steps:      s.Steps,
		Reward:     s.Reward,
		Collected:  s.Collected,
		Deposited:  s.Deposited,
		Deposits:   s.Deposits,
		EndedBy:    s.EndedBy,
		HiveRadius: s.Curriculum.HiveRadius,
		UseRadius:  s.Curriculum.UseRadius,
		EndedAt:    s.EndedAt,
	}
}

func (r episodeRow) summary() engine.EpisodeSummary {
	return engine.EpisodeSummary{
		Session:    r.Session,
		Slot:       r.Slot,
		Episode:    r.Episode,
		Steps:      r.Steps,
		Reward:     r.Reward,
		Collected:  r.Collected,
		Deposited:  r.Deposited,
		Deposits:   r.Deposits,
		EndedBy:    r.EndedBy,
		Curriculum: curriculum.Params{HiveRadius: r.HiveRadius, UseRadius: r.UseRadius},
		EndedAt:    r.EndedAt,
	}
}

// SaveEpisode appends one finished episode.
func (db *DB) SaveEpisode(s engine.EpisodeSummary) error {
	_, err := db.conn.NamedExec(`
		INSERT INTO episodes (session, slot, episode, steps, reward, collected, deposited, deposits, ended_by, hive_radius, use_radius, ended_at)
		VALUES (:session, :slot, :episode, :steps, :reward, :collected, :deposited, :deposits, :ended_by, :hive_radius, :use_radius, :ended_at)`,
		toRow(s),
	)
	return err
}

// RecentEpisodes returns the most recent N episodes, newest first.
func (db *DB) RecentEpisodes(limit int) ([]engine.EpisodeSummary, error) {
	var rows []episodeRow
	err := db.conn.Select(&rows, `
		SELECT session, slot, episode, steps, reward, collected, deposited, deposits, ended_by, hive_radius, use_radius, ended_at
		FROM episodes ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]engine.EpisodeSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.summary())
	}
	return out, nil
}

// Summary aggregates recent episodes.
type Summary struct {
	Episodes      int     `json:"episodes"` // All time
	Window        int     `json:"window"`   // Episodes averaged below
	MeanReward    float64 `json:"mean_reward"`
	MeanDeposited float64 `json:"mean_deposited"`
	BestReward    float64 `json:"best_reward"`
}

// Summarize averages the most recent window episodes.
func (db *DB) Summarize(window int) (Summary, error) {
	var s Summary
	if err := db.conn.Get(&s.Episodes, "SELECT COUNT(*) FROM episodes"); err != nil {
		return s, err
	}
	if s.Episodes == 0 {
		return s, nil
	}

	var agg struct {
		N             int     `db:"n"`
		MeanReward    float64 `db:"mean_reward"`
		MeanDeposited float64 `db:"mean_deposited"`
		BestReward    float64 `db:"best_reward"`
	}
	err := db.conn.Get(&agg, `
		SELECT COUNT(*) AS n,
			COALESCE(AVG(reward), 0) AS mean_reward,
			COALESCE(AVG(deposited), 0) AS mean_deposited,
			COALESCE(MAX(reward), 0) AS best_reward
		FROM (SELECT reward, deposited FROM episodes ORDER BY id DESC LIMIT ?)`,
		window,
	)
	if err != nil {
		return s, err
	}
	s.Window = agg.N
	s.MeanReward = agg.MeanReward
	s.MeanDeposited = agg.MeanDeposited
	s.BestReward = agg.BestReward
	return s, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (tick, time, description, category, meta_json) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		var meta sql.NullString
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return fmt.Errorf("event meta: %w", err)
			}
			meta = sql.NullString{String: string(raw), Valid: true}
		}
		if _, err := stmt.Exec(e.Tick, e.Time, e.Description, e.Category, meta); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []struct {
		Tick        uint64         `db:"tick"`
		Time        time.Time      `db:"time"`
		Description string         `db:"description"`
		Category    string         `db:"category"`
		Meta        sql.NullString `db:"meta_json"`
	}
	err := db.conn.Select(&rows,
		"SELECT tick, time, description, category, meta_json FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		e := engine.Event{Tick: r.Tick, Time: r.Time, Description: r.Description, Category: r.Category}
		if r.Meta.Valid {
			if err := json.Unmarshal([]byte(r.Meta.String), &e.Meta); err != nil {
				slog.Warn("skipping event meta", "tick", r.Tick, "error", err)
			}
		}
		events = append(events, e)
	}
	return events, nil
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value. A missing key returns sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// SaveCurriculum records the parameters in force so a restart resumes them.
func (db *DB) SaveCurriculum(p curriculum.Params, lesson int) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := db.SaveMeta(MetaCurriculum, string(raw)); err != nil {
		return err
	}
	return db.SaveMeta(MetaLesson, strconv.Itoa(lesson))
}

// LoadCurriculum returns the saved parameters and lesson. ok is false when
// nothing was saved.
func (db *DB) LoadCurriculum() (p curriculum.Params, lesson int, ok bool, err error) {
	raw, err := db.GetMeta(MetaCurriculum)
	if errors.Is(err, sql.ErrNoRows) {
		return p, 0, false, nil
	}
	if err != nil {
		return p, 0, false, err
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, 0, false, fmt.Errorf("curriculum meta: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, 0, false, err
	}

	if s, err := db.GetMeta(MetaLesson); err == nil {
		lesson, _ = strconv.Atoi(s)
	}
	return p, lesson, true, nil
}

// SaveRunState persists unsaved events and the current tick.
func (db *DB) SaveRunState(tick uint64, events *engine.EventLog) error {
	pending := events.Unsaved()
	slog.Info("saving run state", "tick", tick, "events", len(pending))

	if err := db.SaveEvents(pending); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	events.MarkSaved(len(pending))
	if err := db.SaveMeta(MetaLastTick, strconv.FormatUint(tick, 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	slog.Info("run state saved")
	return nil
}
