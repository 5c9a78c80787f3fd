// Command strix is the CLI entry point for an autonomous scan: it wires
// the Tool Registry, Sandbox Runtime, LLM Gateway, Memory Compressor,
// Agent Engine, Agent Graph, Verification Pipeline, and Run Store
// together and drives one scan to completion (§6).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zBiTz/strix/pkg/models"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes (§6).
const (
	exitSuccess       = 0
	exitMisuse        = 2
	exitEnvNotReady   = 3
	exitScanFailed    = 4
	exitCancelled     = 5
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	os.Exit(run(logger))
}

func run(logger *slog.Logger) int {
	// A single SIGINT/SIGTERM cancels the scan's context, driving the §5
	// cancellation path (Agent Graph marks running agents failed(cancelled),
	// sandbox containers are torn down) rather than killing the process
	// mid-run and leaking containers.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := buildRootCmd(logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitFor(err)
	}
	return exitSuccess
}

func buildRootCmd(logger *slog.Logger) *cobra.Command {
	var (
		target         string
		scanMode       string
		nonInteractive bool
		runName        string
	)

	cmd := &cobra.Command{
		Use:     "strix",
		Short:   "Strix - autonomous security-testing agent runner",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" {
				return exitErr{code: exitMisuse, err: fmt.Errorf("--target is required")}
			}
			mode := models.ScanMode(scanMode)
			switch mode {
			case models.ScanModeQuick, models.ScanModeStandard, models.ScanModeDeep:
			default:
				return exitErr{code: exitMisuse, err: fmt.Errorf("invalid --scan-mode %q", scanMode)}
			}

			return runScan(cmd.Context(), logger, scanParams{
				target:         target,
				scanMode:       mode,
				nonInteractive: nonInteractive,
				runName:        runName,
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "scan target: path, URL, repo, or IP")
	cmd.Flags().StringVar(&scanMode, "scan-mode", string(models.ScanModeStandard), "quick|standard|deep")
	cmd.Flags().BoolVarP(&nonInteractive, "non-interactive", "n", false, "run without interactive prompts")
	cmd.Flags().StringVar(&runName, "run-name", "", "name for this run's output directory")

	return cmd
}

// exitErr carries a specific process exit code alongside the underlying
// error, so cobra's generic error return can still map to §6's codes.
type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }
func (e exitErr) Unwrap() error { return e.err }

func exitFor(err error) int {
	var ee exitErr
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitScanFailed
}
