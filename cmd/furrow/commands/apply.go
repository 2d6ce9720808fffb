package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/stores"
	"github.com/furrowlabs/furrow/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		dryRun      bool
		retries     int
		backoff     time.Duration
		stepTimeout time.Duration
		journalPath string
		metricsOut  string
		traceOut    string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the host onto the profile",
		Long: `Build the provisioning plan and execute it step by step.

Each step re-checks the host immediately before acting; already-satisfied
steps are skipped. Failed steps are retried with a fixed backoff, then the
step's failure policy decides whether the run aborts or continues. There is
no rollback: state applied before an abort stays applied.

Exits 0 when the run completes with no failures and 1 otherwise.`,
		Example: `  # Converge the host
  furrow apply -c profile.yaml

  # Preview without mutating anything
  furrow apply -c profile.yaml --dry-run

  # Retry flaky steps twice, 10s apart
  furrow apply -c profile.yaml --retries 2 --backoff 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}
			plan, err := buildPlan(profile)
			if err != nil {
				return err
			}

			log := telemetry.NewLogger(verbose)
			ctx := cmd.Context()

			eng := engine.New(engine.Options{
				Instance:     profile.Instance,
				MaxRetries:   retries,
				RetryBackoff: backoff,
				StepTimeout:  stepTimeout,
				DryRun:       dryRun,
			}, log)

			// The journal is best-effort history: failure to open it is a
			// warning, never a reason to skip provisioning.
			if journalPath != "" && !dryRun {
				journal, err := stores.Open(ctx, journalPath)
				if err != nil {
					log.Warn().Err(err).Str("path", journalPath).Msg("audit journal unavailable")
				} else {
					defer journal.Close()
					eng.WithRecorder(journal)
				}
			}

			metrics := telemetry.NewMetrics()
			observers := []engine.Observer{metrics}

			var tracer *telemetry.Tracer
			if traceOut != "" {
				traceFile, err := os.Create(traceOut)
				if err != nil {
					return fmt.Errorf("creating trace output: %w", err)
				}
				defer traceFile.Close()
				tracer, err = telemetry.NewTracer(traceFile, cmd.Root().Version)
				if err != nil {
					return err
				}
				ctx = tracer.StartRun(ctx, profile.Instance)
				observers = append(observers, tracer)
			}
			eng.WithObserver(telemetry.CombineObservers(observers...))

			report, err := eng.Run(ctx, plan)
			if err != nil {
				return err
			}

			if tracer != nil {
				if err := tracer.Shutdown(ctx); err != nil {
					log.Warn().Err(err).Msg("trace export incomplete")
				}
			}
			if metricsOut != "" {
				if err := metrics.WriteSnapshot(metricsOut); err != nil {
					log.Warn().Err(err).Msg("metrics snapshot failed")
				}
			}

			printReport(report)
			if !report.Succeeded() {
				return &ExitError{Code: ExitRunFailed, Err: fmt.Errorf("run %s %s with %d failure(s)",
					report.ID, report.State, report.Summary.Failed)}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be applied without mutating the host")
	cmd.Flags().IntVar(&retries, "retries", 0, "apply retries per step before the failure policy applies")
	cmd.Flags().DurationVar(&backoff, "backoff", 5*time.Second, "fixed delay between apply retries")
	cmd.Flags().DurationVar(&stepTimeout, "step-timeout", 0, "per-step timeout (0 disables)")
	cmd.Flags().StringVar(&journalPath, "journal", "/var/lib/furrow/journal.db", "audit journal database path (empty disables)")
	cmd.Flags().StringVar(&metricsOut, "metrics-out", "", "write a Prometheus textfile snapshot after the run")
	cmd.Flags().StringVar(&traceOut, "trace-out", "", "write run trace spans to this file")

	return cmd
}

func printReport(report *engine.RunReport) {
	if jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(report)
		return
	}

	for _, res := range report.Results {
		line := fmt.Sprintf("  %-20s %s", res.Step, res.Outcome)
		if res.Attempts > 1 {
			line += fmt.Sprintf(" (attempts=%d)", res.Attempts)
		}
		if res.Outcome == engine.OutcomeFailed {
			line += ": " + res.Detail
		}
		fmt.Println(line)
	}
	fmt.Printf("run %s: %s in %s (%d applied, %d skipped, %d failed of %d)\n",
		report.ID, report.State, report.Duration.Round(time.Millisecond),
		report.Summary.Applied, report.Summary.Skipped, report.Summary.Failed, report.Summary.Total)
}
