package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vango-dev/observ/internal/config"
	"github.com/vango-dev/observ/internal/errors"
	"github.com/vango-dev/observ/pkg/observ"
	"github.com/vango-dev/observ/pkg/telemetry"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "observ",
		Short: "Benchmark and inspect fine-grained observable state",
		Long: `observ drives the observ propagation engine from the command line.

  • bench     run propagation workloads and print timings
  • inspect   serve the inspector for a live demo graph
  • archive   upload a recorded flush trace to S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory holding observ.json or observ.yaml")

	load := func() (*config.Config, error) {
		return config.LoadOrDefault(configDir)
	}

	rootCmd.AddCommand(
		benchCmd(load),
		inspectCmd(load),
		archiveCmd(load),
		versionCmd(),
	)

	errors.SetColors(os.Getenv("NO_COLOR") == "")
	if err := rootCmd.Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

type loader func() (*config.Config, error)

// newLogger returns a text logger at the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	if p := cfg.Path(); p != "" {
		logger.Debug("config loaded", "path", p)
	}
	return logger
}

// newRuntime builds a runtime from cfg with the configured telemetry plus
// extra hooks. Metrics register on reg when enabled.
func newRuntime(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, extra ...observ.Hooks) *observ.Runtime {
	cfg.ApplyDebug()

	hooks := append([]observ.Hooks(nil), extra...)
	if cfg.Metrics.Enabled && reg != nil {
		hooks = append(hooks, telemetry.NewMetrics(
			telemetry.WithRegistry(reg),
			telemetry.WithNamespace(cfg.Metrics.Namespace),
			telemetry.WithSubsystem(cfg.Metrics.Subsystem),
		))
	}
	if cfg.Tracing.Enabled {
		hooks = append(hooks, telemetry.NewTracing(
			telemetry.WithTracerName(cfg.Tracing.TracerName),
			telemetry.WithDirectRuns(cfg.Tracing.DirectRuns),
		))
	}
	return observ.NewRuntime(
		observ.WithLogger(logger),
		observ.WithBudget(cfg.RuntimeBudget()),
		observ.WithHooks(hooks...),
	)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
