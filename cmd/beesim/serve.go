package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/talgya/bee-forage/internal/api"
	"github.com/talgya/bee-forage/internal/config"
	"github.com/talgya/bee-forage/internal/transport/ws"
)

func newServeCmd() *cobra.Command {
	var noLocal bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the environment with the HTTP API and websocket policy endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			local := cfg.Sim.Slots
			if noLocal {
				local = 0
			}
			return serve(cfg, local)
		},
	}

	cmd.Flags().BoolVar(&noLocal, "no-local", false, "only serve remote policies; run no in-process slots")
	cmd.Flags().Int("port", 0, "HTTP port")
	cmd.Flags().Int("slots", 0, "in-process slots")
	cmd.Flags().String("policy", "", "in-process policy (heuristic, random)")
	cmd.PreRunE = bindFlags(map[string]string{
		"api.port":   "port",
		"sim.slots":  "slots",
		"sim.policy": "policy",
	})
	return cmd
}

func serve(cfg *config.Config, localSlots int) error {
	r, err := openRun(cfg, localSlots)
	if err != nil {
		return err
	}
	defer r.Close()

	if cfg.Curriculum.Schedule {
		if err := r.followSchedule(); err != nil {
			return err
		}
	}

	// ── Remote policies ───────────────────────────────────────────────
	remote := ws.NewServer(r.factory, r.registry, cfg.Sim.Slots)
	remote.Limiter = api.NewRateLimiter(cfg.API.SessionsPerHour, time.Hour)
	remote.KeyFunc = api.ClientIP

	// ── HTTP API ──────────────────────────────────────────────────────
	srv := &api.Server{
		Eng:      r.eng,
		Batch:    r.batch,
		Registry: r.registry,
		Events:   r.events,
		Board:    r.board,
		DB:       r.db,
		Config:   cfg,
		RunID:    r.id,
		Port:     cfg.API.Port,
		AdminKey: cfg.API.AdminKey,
		Remote:   remote.Handler(),

		QueryLimiter: api.NewRateLimiter(600, time.Minute),
	}
	srv.SetLesson(r.currentLesson())
	if cfg.API.AdminKey == "" {
		slog.Warn("no admin key configured, curriculum and control endpoints are disabled")
	}
	httpSrv := srv.Start()

	// ── Signals ───────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		r.eng.Stop()
	}()

	if localSlots > 0 {
		r.eng.Run(ctx)
	} else {
		slog.Info("no local slots, waiting for remote policies", "port", cfg.API.Port)
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http shutdown failed", "error", err)
	}
	slog.Info("beesim stopped", "tick", r.eng.Tick())
	return nil
}
