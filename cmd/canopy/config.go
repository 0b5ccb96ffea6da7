package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skalene/canopy/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	Long: `Display the effective canopy configuration.

Configuration is stored at ~/.config/canopy/config.yaml
Project-specific overrides can be placed in .canopy.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

func displayConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.temperature: %g\n", cfg.Anthropic.Temperature)
	fmt.Printf("pool.max_concurrent_tasks: %d\n", cfg.Pool.MaxConcurrentTasks)
	fmt.Printf("pool.max_calls_per_window: %d\n", cfg.Pool.MaxCallsPerWindow)
	fmt.Printf("pool.window_length: %s\n", cfg.Pool.WindowLength)
	fmt.Printf("pool.max_memory_fraction: %g\n", cfg.Pool.MaxMemoryFraction)
	fmt.Printf("tree.max_depth: %d\n", cfg.Tree.MaxDepth)
	fmt.Printf("tree.max_breadth: %d\n", cfg.Tree.MaxBreadth)
	fmt.Printf("tree.pruning_threshold: %g\n", cfg.Tree.PruningThreshold)
	fmt.Printf("scheduler.task_timeout: %s\n", cfg.Scheduler.TaskTimeout)
	fmt.Printf("scheduler.event_buffer: %d\n", cfg.Scheduler.EventBuffer)

	if p := config.GetProjectConfigPath(); p != "" {
		fmt.Printf("\nproject overrides: %s\n", p)
	}
	fmt.Printf("user config: %s\n", config.GetUserConfigPath())
}
