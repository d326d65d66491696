// Package coach implements the external curriculum collaborator.
// It observes a running beesim via the API, decides whether the current
// lesson has been learned, and acts via the admin curriculum endpoint.
package coach

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/bee-forage/internal/curriculum"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status     RunStatus       `json:"status"`
	Curriculum CurriculumState `json:"curriculum"`
	Episodes   []EpisodeRecord `json:"episodes"` // Newest first, as served
}

// RunStatus mirrors GET /api/v1/status.
type RunStatus struct {
	RunID    string  `json:"run_id"`
	Tick     uint64  `json:"tick"`
	Speed    float64 `json:"speed"`
	Running  bool    `json:"running"`
	Sessions int     `json:"sessions"`
	Lesson   int     `json:"lesson"`
}

// CurriculumState mirrors GET /api/v1/curriculum.
type CurriculumState struct {
	Curriculum curriculum.Params `json:"curriculum"`
	Version    uint64            `json:"version"`
	Lesson     int               `json:"lesson"`
}

// EpisodeRecord mirrors items from GET /api/v1/episodes.
type EpisodeRecord struct {
	Session    string            `json:"session"`
	Episode    int               `json:"episode"`
	Steps      int               `json:"steps"`
	Reward     float64           `json:"reward"`
	Deposited  float64           `json:"deposited"`
	Curriculum curriculum.Params `json:"curriculum"`
	EndedAt    time.Time         `json:"ended_at"`
}

// Observer fetches run state from the API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
	Limit      int // Episodes fetched per cycle
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string, limit int) *Observer {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Limit: limit,
	}
}

// Observe fetches status, curriculum and recent episodes.
func (o *Observer) Observe() (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	if err := o.fetchJSON("/api/v1/curriculum", &snap.Curriculum); err != nil {
		return nil, fmt.Errorf("fetch curriculum: %w", err)
	}
	if err := o.fetchJSON(fmt.Sprintf("/api/v1/episodes?limit=%d", o.Limit), &snap.Episodes); err != nil {
		return nil, fmt.Errorf("fetch episodes: %w", err)
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
