package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/furrowlabs/furrow/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		journalPath string
		limit       int
		runID       string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past provisioning runs from the audit journal",
		Long: `List the runs recorded in the audit journal, newest first, or the
step-by-step results of one run. The journal is history only; use status
for the host's current state.`,
		Example: `  # Recent runs for the profile's instance
  furrow history -c profile.yaml

  # Step results of one run
  furrow history -c profile.yaml --run 6d7c9a58-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}

			journal, err := stores.Open(cmd.Context(), journalPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			if runID != "" {
				steps, err := journal.Steps(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(steps)
				}
				for _, s := range steps {
					line := fmt.Sprintf("  %2d. %-20s %-8s attempts=%d", s.Seq+1, s.Step, s.Outcome, s.Attempts)
					if s.Error != "" {
						line += " error=" + s.Error
					}
					fmt.Println(line)
				}
				return nil
			}

			runs, err := journal.ListRuns(cmd.Context(), profile.Instance, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Printf("no recorded runs for instance %s\n", profile.Instance)
				return nil
			}
			for _, r := range runs {
				fmt.Printf("  %s  %s  %-9s  %d applied, %d skipped, %d failed  (%s)\n",
					r.StartedAt.Format(time.RFC3339), r.ID, r.State,
					r.Applied, r.Skipped, r.Failed, r.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "/var/lib/furrow/journal.db", "audit journal database path")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show step results for this run id")

	return cmd
}
