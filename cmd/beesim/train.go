package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/bee-forage/internal/config"
)

func newTrainCmd() *cobra.Command {
	var ticks uint64

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Step in-process slots headlessly as fast as possible",
		Long: `Train runs the configured number of slots for a fixed number of ticks
without the HTTP API. Episodes are written to the database; trajectories
are recorded when data.record_trajectories is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return train(cfg, ticks)
		},
	}

	cmd.Flags().Uint64Var(&ticks, "ticks", 100000, "ticks to run")
	cmd.Flags().Int("slots", 0, "parallel slots")
	cmd.Flags().String("policy", "", "policy (heuristic, random)")
	cmd.Flags().Int("max-steps", 0, "steps per episode (0 for unlimited)")
	cmd.Flags().Bool("schedule", false, "advance lessons from episode rewards")
	cmd.PreRunE = bindFlags(map[string]string{
		"sim.slots":           "slots",
		"sim.policy":          "policy",
		"sim.max_steps":       "max-steps",
		"curriculum.schedule": "schedule",
	})
	return cmd
}

func train(cfg *config.Config, ticks uint64) error {
	r, err := openRun(cfg, cfg.Sim.Slots)
	if err != nil {
		return err
	}
	defer r.Close()

	if cfg.Curriculum.Schedule {
		if err := r.followSchedule(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	from := r.eng.Tick()
	r.eng.StepN(ctx, ticks)
	elapsed := time.Since(start)

	st := r.batch.Stats()
	ran := r.eng.Tick() - from
	rate := float64(ran) / elapsed.Seconds()
	fmt.Fprintf(os.Stdout, "\n%s ticks in %s (%s ticks/s) across %d slots\n",
		humanize.Comma(int64(ran)), elapsed.Round(time.Millisecond), humanize.Commaf(float64(int64(rate))), len(r.batch.Slots))
	fmt.Fprintf(os.Stdout, "episodes %s, nectar deposited %.2f, best reward %.3f, failed ticks %d\n",
		humanize.Comma(int64(st.Episodes)), st.TotalDeposited, st.BestReward, r.batch.Errors())
	if l := r.batch.Lesson(); l >= 0 {
		fmt.Fprintf(os.Stdout, "lesson %d, hive radius %.1f\n", l, r.board.Current().HiveRadius)
	}
	if r.recorder != nil {
		fmt.Fprintf(os.Stdout, "transitions recorded %s\n", humanize.Comma(int64(r.recorder.Written())))
	}
	return nil
}
