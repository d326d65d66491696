package coach

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const maxRecords = 10

// CycleRecord captures what happened in a single coach cycle.
type CycleRecord struct {
	Time       time.Time `json:"time"`
	Tick       uint64    `json:"tick"`
	Action     string    `json:"action"`
	Lesson     int       `json:"lesson"`
	Stage      string    `json:"stage"`
	MeanReward float64   `json:"mean_reward"`
	Episodes   int       `json:"episodes"`
	Rationale  string    `json:"rationale,omitempty"`
}

// CycleMemory keeps a ring of recent coach cycle records on disk.
type CycleMemory struct {
	Records []CycleRecord `json:"records"`

	path string
}

// LoadMemory reads the memory file from disk. Returns empty memory if not found.
func LoadMemory(path string) *CycleMemory {
	data, err := os.ReadFile(path)
	if err != nil {
		return &CycleMemory{path: path}
	}
	var mem CycleMemory
	if err := json.Unmarshal(data, &mem); err != nil {
		slog.Warn("coach memory corrupted, starting fresh", "path", path, "error", err)
		return &CycleMemory{path: path}
	}
	mem.path = path
	return &mem
}

// Save writes the memory to disk.
func (m *CycleMemory) Save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal coach memory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write coach memory: %w", err)
	}
	return nil
}

// Record adds a cycle record, trimming to maxRecords.
func (m *CycleMemory) Record(r CycleRecord) {
	m.Records = append(m.Records, r)
	if len(m.Records) > maxRecords {
		m.Records = m.Records[len(m.Records)-maxRecords:]
	}
}

// Summary renders the last n cycles, one per line, for logs.
func (m *CycleMemory) Summary(n int) string {
	if len(m.Records) == 0 {
		return ""
	}
	start := 0
	if len(m.Records) > n {
		start = len(m.Records) - n
	}

	var b strings.Builder
	for _, r := range m.Records[start:] {
		fmt.Fprintf(&b, "tick %d: %s lesson=%d stage=%s mean=%.3f over %d",
			r.Tick, r.Action, r.Lesson, r.Stage, r.MeanReward, r.Episodes)
		if r.Rationale != "" {
			fmt.Fprintf(&b, " (%s)", r.Rationale)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
