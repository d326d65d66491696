// Command beesim runs the bee foraging training environment: in-process
// training slots, remote policies over websocket, and the HTTP API.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/talgya/bee-forage/internal/config"
)

var cfgFile string

func main() {
	for _, envFile := range []string{".env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd := &cobra.Command{
		Use:   "beesim",
		Short: "Beesim is a reinforcement-learning environment where bees forage nectar for their hive.",
		Long: `Beesim simulates bees collecting nectar from regrowing flowers and
returning it to a hive, with shaped rewards and a hive-radius curriculum.

Policies run in-process (heuristic, random) or connect over websocket.

Example:
  beesim train --slots 8 --ticks 1000000
  beesim serve --config beesim.yaml`,
		SilenceUsage:      true,
		PersistentPreRunE: initRun,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./beesim.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().Int64("seed", 0, "run seed (0 draws a random one)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("sim.seed", rootCmd.PersistentFlags().Lookup("seed"))
	_ = viper.BindPFlag("data.db_path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(newServeCmd(), newTrainCmd(), newEpisodesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initRun reads configuration and installs the default logger.
func initRun(cmd *cobra.Command, args []string) error {
	if err := config.Setup(cfgFile); err != nil {
		return err
	}

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if used := viper.ConfigFileUsed(); used != "" {
		slog.Debug("using config file", "path", used)
	}
	return nil
}

// bindFlags binds a subcommand's flags to config keys when that subcommand
// runs. Sibling commands share keys, so binding at construction would let
// the last one registered win.
func bindFlags(keys map[string]string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		for key, flag := range keys {
			if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
				return err
			}
		}
		return nil
	}
}
