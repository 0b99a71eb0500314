package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"parallax/internal/archivist"
	"parallax/internal/browserdrv"
	"parallax/internal/config"
	"parallax/internal/constitution"
	"parallax/internal/llmprovider"
	"parallax/internal/logging"
	"parallax/internal/metrics"
	"parallax/internal/orchestrator"
	"parallax/internal/planner"
	"parallax/internal/strategy"
)

var startURL string

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a natural-language UI automation task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTask,
}

func init() {
	runCmd.Flags().StringVar(&startURL, "start-url", "", "URL to begin the run from (required)")
	runCmd.MarkFlagRequired("start-url")
}

func runTask(cmd *cobra.Command, args []string) error {
	task := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	failureStore := constitution.NewFailureStore(cfg.Output.BaseDir)
	strategyStore := strategy.NewStore(filepath.Join(cfg.Output.BaseDir, "_strategies", "strategies.json"))
	archivistStore := archivist.New(cfg.Output.BaseDir, failureStore)

	var instruments *metrics.Instruments
	if cfg.Metrics.PrometheusPort > 0 {
		provider, merr := metrics.Init(cfg.Metrics.PrometheusPort)
		if merr != nil {
			logging.BootWarn("metrics init failed: %v", merr)
		} else {
			instruments = provider.Instruments
		}
	}

	provider, err := buildProvider(ctx, cfg, instruments)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	pl := planner.New(provider, failureStore, strategyStore)

	newDriver := func(ctx context.Context) (browserdrv.Capability, error) {
		return browserdrv.NewRodDriver(ctx, browserdrv.RodConfig{
			Headless:            cfg.Browser.Headless,
			ViewportWidth:       cfg.Capture.DesktopViewport.Width,
			ViewportHeight:      cfg.Capture.DesktopViewport.Height,
			NavigationTimeoutMs: 30000,
		})
	}

	orch := orchestrator.New(cfg, pl, strategyStore, failureStore, archivistStore, instruments, newDriver, nil)

	result, err := orch.Run(ctx, task, startURL)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"dataset_path": result.DatasetPath,
		"attempts":     result.Attempts,
		"final_url":    result.FinalURL,
		"states":       len(result.States),
		"classification": result.Completion.Classification,
	})
}

// buildProvider constructs the llmprovider.Provider named by cfg.Provider,
// falling back to a local/ZAI-backed completer when no cloud credential is
// configured (spec.md §4.2).
func buildProvider(ctx context.Context, cfg *config.Config, instruments *metrics.Instruments) (llmprovider.Provider, error) {
	cost := llmprovider.NewCostTracker(instruments)

	switch cfg.Provider {
	case "anthropic", "openai":
		key := cfg.APIKeys.Anthropic
		name := "anthropic"
		if cfg.Provider == "openai" {
			key = cfg.APIKeys.OpenAI
			name = "openai"
		}
		return llmprovider.NewGenAIProvider(ctx, key, name, "", 50, cfg.Planner.TimeoutMs, cost)
	default:
		if cfg.APIKeys.ZAI != "" {
			completer := llmprovider.NewZAICompleter(cfg.APIKeys.ZAI, "")
			return llmprovider.NewLocalProvider("", 30, completer.Complete), nil
		}
		return llmprovider.NewLocalProvider("", 30, func(ctx context.Context, prompt string) (string, error) {
			return "", fmt.Errorf("no local completion backend configured")
		}), nil
	}
}
