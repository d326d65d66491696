// Package api provides the HTTP API for observing and steering a run.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/bee-forage/internal/config"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/engine"
	"github.com/talgya/bee-forage/internal/persistence"
)

// Server serves run state over HTTP.
type Server struct {
	Eng      *engine.Engine
	Batch    *engine.Batch    // In-process slots; may be nil
	Registry *engine.Registry // Every live slot, in-process and remote
	Events   *engine.EventLog
	Board    *curriculum.Board
	DB       *persistence.DB // Optional
	Config   *config.Config
	RunID    string
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Remote serves the policy websocket, if any.
	Remote http.Handler

	// QueryLimiter throttles the database-backed GET endpoints per client.
	QueryLimiter *RateLimiter

	started time.Time

	mu     sync.Mutex
	lesson int
}

// SetLesson records the lesson index the curriculum is on.
func (s *Server) SetLesson(i int) {
	s.mu.Lock()
	s.lesson = i
	s.mu.Unlock()
}

// Lesson returns the lesson index in force. A batch following its own
// schedule wins over the last recorded value.
func (s *Server) Lesson() int {
	if s.Batch != nil {
		if l := s.Batch.Lesson(); l >= 0 {
			return l
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lesson
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/session/", s.handleSessionDetail)
	mux.HandleFunc("/api/v1/episodes", s.limited(s.handleEpisodes))
	mux.HandleFunc("/api/v1/episodes/summary", s.limited(s.handleEpisodeSummary))
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/config", s.handleConfig)

	// Admin endpoints (POST requires bearer token, GET is public).
	mux.HandleFunc("/api/v1/curriculum", s.adminOnly(s.handleCurriculum))
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/flowers", s.adminOnly(s.handleFlowers))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	if s.Remote != nil {
		mux.Handle("/api/v1/policy", s.Remote)
	}

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "remote_policies", s.Remote != nil)

	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	if s.QueryLimiter == nil {
		return next
	}
	return RateLimitMiddleware(s.QueryLimiter, next)
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no BEESIM_API_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":    "beesim",
		"run_id":  s.RunID,
		"tick":    s.Eng.Tick(),
		"speed":   s.Eng.Speed(),
		"running": s.Eng.Running(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"lesson":  s.Lesson(),
	}
	if s.Board != nil {
		status["curriculum"] = s.Board.Current()
		status["curriculum_version"] = s.Board.Version()
	}
	if s.Registry != nil {
		status["sessions"] = s.Registry.Len()
	}
	if s.Batch != nil {
		status["batch"] = s.Batch.Stats()
		status["batch_errors"] = s.Batch.Errors()
	}
	writeJSON(w, status)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.Registry == nil {
		writeJSON(w, []engine.SessionInfo{})
		return
	}
	writeJSON(w, s.Registry.List())
}

// handleSessionDetail returns a full snapshot of one slot: GET /api/v1/session/:id.
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/session/")
	if id == "" || s.Registry == nil {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	sim, ok := s.Registry.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, sim.Snapshot())
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := queryInt(r, "limit", 50, 500)
	episodes, err := s.DB.RecentEpisodes(limit)
	if err != nil {
		slog.Error("episode query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, episodes)
}

func (s *Server) handleEpisodeSummary(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	window := queryInt(r, "window", 100, 10000)
	summary, err := s.DB.Summarize(window)
	if err != nil {
		slog.Error("episode summary failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)
	if s.Events == nil {
		writeJSON(w, []engine.Event{})
		return
	}
	events := s.Events.Recent(0)

	// Optional category filter.
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]engine.Event, 0, len(events))
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.Config == nil {
		writeJSON(w, map[string]any{})
		return
	}
	cfg := *s.Config
	if cfg.API.AdminKey != "" {
		cfg.API.AdminKey = "<redacted>"
	}
	writeJSON(w, cfg)
}

// curriculumRequest accepts either explicit fields or trainer-style reset
// parameters.
type curriculumRequest struct {
	HiveRadius      *float64           `json:"hive_radius"`
	UseRadius       *bool              `json:"use_radius"`
	ResetParameters map[string]float64 `json:"reset_parameters"`
	Lesson          *int               `json:"lesson"`
	Reason          string             `json:"reason"`
}

func (s *Server) handleCurriculum(w http.ResponseWriter, r *http.Request) {
	if s.Board == nil {
		http.Error(w, "curriculum not available", http.StatusServiceUnavailable)
		return
	}

	if r.Method == http.MethodPost {
		var req curriculumRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		var p curriculum.Params
		if len(req.ResetParameters) > 0 {
			parsed, err := curriculum.FromResetParameters(req.ResetParameters)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			p = parsed
		} else {
			p = s.Board.Current()
			if req.HiveRadius != nil {
				p.HiveRadius = *req.HiveRadius
			}
			if req.UseRadius != nil {
				p.UseRadius = *req.UseRadius
			}
		}
		if err := s.Board.Set(p); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Lesson != nil {
			s.SetLesson(*req.Lesson)
		}
		lesson := s.Lesson()

		if s.DB != nil {
			if err := s.DB.SaveCurriculum(p, lesson); err != nil {
				slog.Error("curriculum save failed", "error", err)
			}
		}
		if s.Events != nil {
			s.Events.Emit(engine.Event{
				Tick:        s.Eng.Tick(),
				Description: fmt.Sprintf("curriculum set: hive_radius %.2f, use_radius %v (lesson %d) %s", p.HiveRadius, p.UseRadius, lesson, req.Reason),
				Category:    engine.CategoryCurriculum,
				Meta: map[string]any{
					"hive_radius": p.HiveRadius,
					"use_radius":  p.UseRadius,
					"lesson":      lesson,
				},
			})
		}
		slog.Info("curriculum changed", "hive_radius", p.HiveRadius, "use_radius", p.UseRadius, "lesson", lesson, "reason", req.Reason)
	}

	writeJSON(w, map[string]any{
		"curriculum":       s.Board.Current(),
		"reset_parameters": s.Board.Current().ResetParameters(),
		"version":          s.Board.Version(),
		"lesson":           s.Lesson(),
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleFlowers grows the meadow of every live slot: POST /api/v1/flowers
// {"flower_count": n}. Slots pick it up at their next reset.
func (s *Server) handleFlowers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.Registry == nil {
		http.Error(w, "no slots", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		FlowerCount int `json:"flower_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.FlowerCount < 1 {
		http.Error(w, "flower_count must be >= 1", http.StatusBadRequest)
		return
	}

	grown, refused := s.Registry.SetFlowerCount(req.FlowerCount)
	slog.Info("flower count changed", "flower_count", req.FlowerCount, "slots", grown, "refused", refused)
	if s.Events != nil {
		s.Events.Emit(engine.Event{
			Tick:        s.Eng.Tick(),
			Description: fmt.Sprintf("flower count set to %d (%d slots, %d refused a shrink)", req.FlowerCount, grown, refused),
			Category:    engine.CategoryConfig,
			Meta:        map[string]any{"flower_count": req.FlowerCount, "refused": refused},
		})
	}

	writeJSON(w, map[string]int{
		"flower_count": req.FlowerCount,
		"slots":        grown,
		"refused":      refused,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil || s.Events == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	tick := s.Eng.Tick()
	if err := s.DB.SaveRunState(tick, s.Events); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    tick,
		"message": "run state saved",
	})
}

func queryInt(r *http.Request, key string, def, max int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
