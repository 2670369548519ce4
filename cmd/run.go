package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/fleetpm/internal/auth"
	"github.com/xkilldash9x/fleetpm/internal/browser/locator"
	"github.com/xkilldash9x/fleetpm/internal/browser/session"
	"github.com/xkilldash9x/fleetpm/internal/browser/wait"
	"github.com/xkilldash9x/fleetpm/internal/config"
	"github.com/xkilldash9x/fleetpm/internal/eligibility"
	"github.com/xkilldash9x/fleetpm/internal/input"
	"github.com/xkilldash9x/fleetpm/internal/navigation"
	"github.com/xkilldash9x/fleetpm/internal/observability"
	"github.com/xkilldash9x/fleetpm/internal/orchestrator"
	"github.com/xkilldash9x/fleetpm/internal/results"
	"github.com/xkilldash9x/fleetpm/internal/wizard"
)

// metricsFlushInterval is how often the metrics textfile is refreshed during
// a run.
const metricsFlushInterval = 30 * time.Second

func newRunCmd() *cobra.Command {
	var (
		inputPath string
		headless  bool
		dryList   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in and process every vehicle in the input list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.SetInputPath(inputPath)
			}
			if cmd.Flags().Changed("headless") {
				cfg.SetBrowserHeadless(headless)
			}
			logger := observability.GetLogger()

			records, err := input.Load(cfg.Input().Path)
			if err != nil {
				return err
			}
			ids := input.IDs(records)
			logger.Info("Vehicle list loaded.", zap.String("path", cfg.Input().Path), zap.Int("vehicles", len(ids)))

			if dryList {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
				return nil
			}
			if len(ids) == 0 {
				return fmt.Errorf("no vehicles in %s", cfg.Input().Path)
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return err
			}
			return runFleet(cmd.Context(), cfg, ids, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "CSV file of vehicle MVAs. (Overrides config/env)")
	cmd.Flags().BoolVar(&headless, "headless", false, "Run Chrome without a window. (Overrides config/env)")
	cmd.Flags().BoolVar(&dryList, "dry-list", false, "Print the normalized vehicle list and exit without opening a browser.")
	return cmd
}

// runFleet wires the session, sign-in, recovery, wizard and orchestrator for
// one run and writes the run artifacts.
func runFleet(ctx context.Context, cfg *config.Config, ids []string, out io.Writer, logger *zap.Logger) error {
	t := cfg.Timeouts()
	runID := results.NewRunID()
	logger = logger.With(zap.String("run_id", runID))

	writer, err := results.NewWriter(cfg.Results().Dir, runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Warn("Failed to close results file.", zap.Error(err))
		}
	}()

	handle := session.NewHandle(cfg.Browser(), logger)
	defer handle.Close()

	driver, err := handle.Acquire(ctx)
	if err != nil {
		return err
	}
	defer handle.Release()

	resolver := locator.NewResolver(driver, wait.SystemClock(), locator.Options{PerCandidate: t.PerCandidate, Interval: t.PollInterval}, logger)
	creds := auth.CredentialsFromConfig(cfg.Credentials())
	signIn := auth.NewSSOFlow(resolver, auth.Options{LoginURL: cfg.App().LoginURL, Timeout: t.Login}, logger)

	if res := signIn.EnsureAuthenticated(ctx, creds); !res.OK() {
		if res.Err != nil {
			return fmt.Errorf("sign-in failed (%s): %w", res.Reason, res.Err)
		}
		return fmt.Errorf("sign-in failed (%s)", res.Reason)
	}

	metrics := observability.NewMetrics()
	recovery := navigation.NewRecovery(resolver, signIn, creds, metrics, navigation.Options{
		AppURL:        cfg.App().URL,
		MaxBackClicks: cfg.Navigation().MaxBackClicks,
		Timeout:       t.VehicleLookup,
	}, logger)

	orch, err := orchestrator.New(orchestrator.Deps{
		Resolver:  resolver,
		Wizard:    wizard.NewMachine(resolver, wizard.OptionsFromConfig(t, cfg.Workflow()), logger),
		Reader:    eligibility.NewReader(resolver, t.PerCandidate, logger),
		Baseline:  recovery,
		Sink:      writer,
		Metrics:   metrics,
		Artifacts: results.NewArtifacts(cfg.Results().Dir, runID),
	}, orchestrator.OptionsFromConfig(cfg, runID), logger)
	if err != nil {
		return err
	}

	metricsFile := cfg.Results().MetricsFile
	var summary *results.Summary
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		var runErr error
		summary, runErr = orch.Run(gctx, ids)
		return runErr
	})
	if metricsFile != "" {
		g.Go(func() error {
			ticker := time.NewTicker(metricsFlushInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					if err := metrics.WriteTextfile(metricsFile); err != nil {
						logger.Warn("Failed to refresh metrics textfile.", zap.Error(err))
					}
				}
			}
		})
	}
	runErr := g.Wait()

	if summary != nil {
		path, err := results.WriteSummary(cfg.Results().Dir, summary)
		if err != nil {
			logger.Error("Failed to write run summary.", zap.Error(err))
		} else {
			logger.Info("Run summary written.", zap.String("path", path))
		}
		fmt.Fprintf(out, "Run %s: %s\nResults: %s\n", runID, summary, writer.Path())
	}
	if err := metrics.WriteTextfile(metricsFile); err != nil {
		logger.Warn("Failed to write metrics textfile.", zap.Error(err))
	}

	if errors.Is(runErr, context.Canceled) {
		logger.Warn("Run stopped by signal before all vehicles were processed.")
	}
	return runErr
}
