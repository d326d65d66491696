package coach

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Actor applies curriculum changes via the admin API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Act sends the decision to POST /api/v1/curriculum and returns the state
// the server reports back.
func (a *Actor) Act(d Decision) (*CurriculumState, error) {
	body, err := json.Marshal(map[string]any{
		"hive_radius": d.Params.HiveRadius,
		"use_radius":  d.Params.UseRadius,
		"lesson":      d.Lesson,
		"reason":      d.Rationale,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal curriculum: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, a.BaseURL+"/api/v1/curriculum", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST curriculum: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("curriculum update failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var state CurriculumState
	if err := json.Unmarshal(respBody, &state); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &state, nil
}
