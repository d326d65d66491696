package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/bee-forage/internal/config"
	"github.com/talgya/bee-forage/internal/persistence"
)

func newEpisodesCmd() *cobra.Command {
	var limit, window int

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Show recent episodes and a reward summary from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := persistence.Open(cfg.Data.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			episodes, err := db.RecentEpisodes(limit)
			if err != nil {
				return err
			}
			if len(episodes) == 0 {
				fmt.Println("No episodes recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tEPISODE\tSTEPS\tREWARD\tDEPOSITED\tENDED BY\tRADIUS\tWHEN")
			for _, e := range episodes {
				radius := "off"
				if e.Curriculum.UseRadius {
					radius = fmt.Sprintf("%.1f", e.Curriculum.HiveRadius)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.3f\t%.2f\t%s\t%s\t%s\n",
					shortID(e.Session), e.Episode, e.Steps, e.Reward, e.Deposited, e.EndedBy, radius, humanize.Time(e.EndedAt))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			sum, err := db.Summarize(window)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s episodes total. Last %d: mean reward %.3f, best %.3f, mean deposited %.2f\n",
				humanize.Comma(int64(sum.Episodes)), sum.Window, sum.MeanReward, sum.BestReward, sum.MeanDeposited)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "episodes to list")
	cmd.Flags().IntVar(&window, "window", 100, "episodes to summarize")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
