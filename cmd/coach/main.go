// Command coach steers a running beesim's curriculum. Each cycle it reads
// recent episodes over the HTTP API, checks them against the lesson
// schedule and posts the next lesson when the current one is mastered.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/talgya/bee-forage/internal/coach"
	"github.com/talgya/bee-forage/internal/curriculum"
)

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("BEESIM_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("BEESIM_API_ADMIN_KEY")
	intervalSec := envIntOrDefault("COACH_INTERVAL", 60)
	limit := envIntOrDefault("COACH_EPISODES", 200)
	memoryPath := envOrDefault("COACH_MEMORY", "data/coach_memory.json")
	lessonsFile := os.Getenv("BEESIM_CURRICULUM_LESSONS_FILE")

	if adminKey == "" {
		slog.Error("BEESIM_API_ADMIN_KEY is required")
		os.Exit(1)
	}

	sched := curriculum.DefaultSchedule()
	if lessonsFile != "" {
		var err error
		if sched, err = curriculum.LoadSchedule(lessonsFile); err != nil {
			slog.Error("lesson schedule unreadable", "path", lessonsFile, "error", err)
			os.Exit(1)
		}
	}

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("beesim coach starting",
		"api_url", apiURL,
		"interval", interval,
		"lessons", len(sched.Lessons),
	)

	c := &coach.Coach{
		Observer: coach.NewObserver(apiURL, limit),
		Actor:    coach.NewActor(apiURL, adminKey),
		Schedule: sched,
		Memory:   coach.LoadMemory(memoryPath),
	}
	if s := c.Memory.Summary(3); s != "" {
		slog.Info("resuming from memory", "recent", s)
	}

	slog.Info("waiting for beesim API...")
	waitForAPI(apiURL)

	runCycle(c)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(c)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Coach stopped.")
			return
		}
	}
}

func runCycle(c *coach.Coach) {
	rec, err := c.RunCycle()
	if err != nil {
		slog.Error("coach cycle failed", "stage", rec.Stage, "error", err)
		return
	}
	if rec.Action == coach.ActionNone {
		slog.Info("coach cycle complete, no change", "stage", rec.Stage)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("beesim API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("beesim API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("beesim not ready, retrying", "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
