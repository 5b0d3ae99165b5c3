// Package main is the entry point for the mindforge CLI: a meta-cognitive
// decision engine that picks a reasoning strategy per query, verifies it,
// and keeps learning from the outcomes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mindforge-ai/mindforge/internal/config"
	"github.com/mindforge-ai/mindforge/internal/core"
	"github.com/mindforge-ai/mindforge/internal/logging"
	"github.com/mindforge-ai/mindforge/internal/mab"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	jsonOut bool
	log     zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mindforge",
		Short: "Mindforge - verify-then-learn decision engine",
		Long: `Mindforge decides HOW to answer before answering: it triages the
query, generates candidate reasoning strategies, verifies each one, and
lets a multi-armed bandit pick the best survivor. Outcomes feed back in,
so the strategy pool keeps improving.

One-shot decision:     mindforge decide "your question"
Engine statistics:     mindforge stats
Record feedback:       mindforge feedback <strategy_id> --success --reward 0.5`,
		PersistentPreRun: initLogging,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.mindforge/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "machine-readable JSON output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Mindforge v%s\n", version)
		},
	})

	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(feedbackCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(maintainCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogging(cmd *cobra.Command, args []string) {
	level := "info"
	if verbose {
		level = "debug"
	}
	log = logging.New(logging.Config{Level: level, Console: true})
}

func loadCore() (*core.Core, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	return core.New(cfg, log)
}

// ═══════════════════════════════════════════════════════════════════════════════
// DECIDE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func decideCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "decide [query]",
		Short: "Run one decision and print the plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			c, err := loadCore()
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			plan, res := c.Plan(ctx, query, nil)

			if jsonOut {
				out := map[string]any{"plan": plan, "decision": res}
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Strategy:   %s (%s)\n", res.ChosenPath.PathType, res.SelectionAlgorithm)
			fmt.Printf("Candidates: %d generated, %d feasible\n",
				len(res.AvailablePaths), res.VerificationStats.FeasibleCount)
			fmt.Printf("Round:      %d (%.0f ms)\n\n", res.Round, float64(res.Timings.Total.Milliseconds()))

			fmt.Printf("Thought: %s\n", plan.Thought)
			if plan.IsDirectAnswer() {
				fmt.Printf("\n%s\n", plan.FinalAnswer)
				return nil
			}
			fmt.Println("\nPlanned actions:")
			for i, a := range plan.Actions {
				input, _ := json.Marshal(a.ToolInput)
				fmt.Printf("  %d. %s %s\n", i+1, a.ToolName, string(input))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "decision deadline")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// FEEDBACK COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func feedbackCmd() *cobra.Command {
	var (
		success bool
		reward  float64
		source  string
	)

	cmd := &cobra.Command{
		Use:   "feedback [strategy_id]",
		Short: "Record an outcome for a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCore()
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer c.Close()

			c.RecordOutcome(args[0], success, reward, mab.FeedbackSource(source))
			fmt.Printf("Recorded %s outcome for %s (reward %.2f, source %s)\n",
				outcomeWord(success), args[0], reward, source)
			return nil
		},
	}

	cmd.Flags().BoolVar(&success, "success", false, "the strategy worked")
	cmd.Flags().Float64Var(&reward, "reward", 0, "reward in [-1, 1]")
	cmd.Flags().StringVar(&source, "source", string(mab.SourceUserFeedback), "feedback source")
	return cmd
}

func outcomeWord(success bool) string {
	if success {
		return "successful"
	}
	return "failed"
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show engine statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCore()
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer c.Close()

			stats := c.GetStats()

			if jsonOut {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Println("Mindforge Statistics")
			fmt.Println("────────────────────")
			fmt.Printf("Selection rounds:  %d\n", stats.TotalSelections)
			fmt.Printf("Converged:         %t\n", stats.Converged)
			fmt.Printf("Golden templates:  %d\n", len(stats.GoldenTemplates))
			fmt.Printf("Learned paths:     %d\n", stats.Trial.LearnedPaths)
			fmt.Printf("Watched paths:     %d\n", stats.Trial.Watched)
			fmt.Printf("Culled total:      %d\n\n", stats.Trial.CulledTotal)

			if len(stats.Arms) == 0 {
				fmt.Println("No strategies learned yet.")
				return nil
			}
			fmt.Println("Strategies:")
			for sid, arm := range stats.Arms {
				marker := " "
				if _, ok := stats.GoldenTemplates[sid]; ok {
					marker = "★"
				}
				fmt.Printf("  %s %-28s rate %.2f  samples %-4d activations %d\n",
					marker, sid, arm.SuccessRate(), arm.Samples(), arm.ActivationCount)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// MAINTAIN COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func maintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Run the trial ground culling sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCore()
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer c.Close()

			culled := c.Maintain()
			fmt.Printf("Maintenance complete: %d strategies culled\n", culled)
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			fmt.Println("Mindforge Configuration:")
			fmt.Println("────────────────────────")
			fmt.Printf("Primary provider:  %s\n", cfg.LLM.PrimaryProvider)
			fmt.Printf("Fallback chain:    %s\n", strings.Join(cfg.LLM.FallbackProviders, " → "))
			fmt.Printf("Max paths:         %d\n", cfg.Paths.MaxPaths)
			fmt.Printf("Golden threshold:  %.2f\n", cfg.Golden.SuccessRateThreshold)
			fmt.Printf("Culling threshold: %.2f\n", cfg.Trial.CullingThreshold)
			fmt.Printf("State persistence: %t (%s)\n", cfg.State.Enabled, cfg.State.Path)
			fmt.Printf("Log level:         %s\n", cfg.Logging.Level)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			home, err := os.UserHomeDir()
			if err != nil {
				fmt.Println("~/.mindforge/config.yaml")
				return
			}
			fmt.Println(home + "/.mindforge/config.yaml")
		},
	})

	return cmd
}
