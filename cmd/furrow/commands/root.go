// Package commands implements the furrow CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Exit codes. Step failures and validation failures are distinguishable so
// wrapper scripts can react to each.
const (
	ExitOK         = 0
	ExitRunFailed  = 1
	ExitBadProfile = 2
)

// ExitError carries a specific process exit code through cobra.
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error { return e.Err }

var (
	// Global flags
	profilePath string
	verbose     bool
	jsonOutput  bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "furrow",
		Short: "Furrow - declarative server provisioning",
		Long: `Furrow provisions an application server from a declarative profile.

Each provisioning step probes the host before acting: steps whose target
state already holds are skipped, so re-running furrow against a converged
server changes nothing. There is no persisted desired-state database; the
host itself is the source of truth.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&profilePath, "config", "c", "profile.yaml", "provisioning profile path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}
