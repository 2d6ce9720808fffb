package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/furrowlabs/furrow/pkg/config"
	"github.com/furrowlabs/furrow/pkg/engine"
	"github.com/furrowlabs/furrow/pkg/runner"
	"github.com/furrowlabs/furrow/pkg/steps"
	"github.com/furrowlabs/furrow/pkg/telemetry"
)

func newPlanCommand() *cobra.Command {
	var dotOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the ordered provisioning plan",
		Long: `Build the provisioning plan for the profile and print it without
touching the host. The order shown is exactly the order apply will use.`,
		Example: `  # Human-readable plan
  furrow plan -c profile.yaml

  # Graphviz dependency graph
  furrow plan -c profile.yaml --dot | dot -Tsvg -o plan.svg`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}

			plan, err := buildPlan(profile)
			if err != nil {
				return err
			}

			switch {
			case dotOutput:
				fmt.Print(plan.ToDOT())
			case jsonOutput:
				return json.NewEncoder(os.Stdout).Encode(planView(plan))
			default:
				fmt.Printf("plan for instance %s: %d step(s)\n", profile.Instance, plan.Len())
				for i, s := range plan.Steps() {
					fmt.Printf("  %2d. %-20s policy=%-8s requires=%v\n",
						i+1, s.Name(), s.Policy(), s.Requires())
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dotOutput, "dot", false, "emit the plan as a Graphviz graph")

	return cmd
}

func buildPlan(profile config.Profile) (*engine.Plan, error) {
	run := runner.NewLocal(telemetry.NewLogger(verbose))
	return steps.BuildPlan(profile, steps.DefaultHosts(run))
}

type planStepView struct {
	Name     string               `json:"name"`
	Requires []string             `json:"requires"`
	Policy   engine.FailurePolicy `json:"policy"`
}

func planView(plan *engine.Plan) []planStepView {
	views := make([]planStepView, 0, plan.Len())
	for _, s := range plan.Steps() {
		views = append(views, planStepView{
			Name:     s.Name(),
			Requires: s.Requires(),
			Policy:   s.Policy(),
		})
	}
	return views
}
