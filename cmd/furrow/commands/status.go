package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/furrowlabs/furrow/pkg/engine"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report how far the host has converged",
		Long: `Run every step's check without applying anything and report which
target states currently hold. This is a live survey of the host, not a
replay of past runs.

Exits 0 when every step is satisfied and 1 otherwise.`,
		Example: `  furrow status -c profile.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}
			plan, err := buildPlan(profile)
			if err != nil {
				return err
			}

			reports := engine.Survey(cmd.Context(), plan)

			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					line := fmt.Sprintf("  %-20s %s", r.Step, r.State)
					if r.Detail != "" {
						line += ": " + r.Detail
					}
					fmt.Println(line)
				}
			}

			pending := 0
			for _, r := range reports {
				if r.State != engine.StateSatisfied {
					pending++
				}
			}
			if pending > 0 {
				return &ExitError{Code: ExitRunFailed,
					Err: fmt.Errorf("%d of %d step(s) not yet satisfied", pending, len(reports))}
			}
			if !jsonOutput {
				fmt.Printf("all %d step(s) satisfied\n", len(reports))
			}
			return nil
		},
	}

	return cmd
}
