package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/furrowlabs/furrow/pkg/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a provisioning profile",
		Long: `Load the profile, apply defaults, and run every validation rule.

All violations are reported together so the profile can be fixed in one
pass. Exits 2 when the profile is rejected.`,
		Example: `  furrow validate -c profile.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := loadProfile()
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(profile)
			}
			fmt.Printf("profile %s is valid: instance=%s edition=%s domain=%s\n",
				profilePath, profile.Instance, profile.Edition, profile.Domain)
			return nil
		},
	}
}

// loadProfile reads and validates the profile, converting validation
// failures into exit code 2 with every violation printed.
func loadProfile() (config.Profile, error) {
	profile, err := config.Load(profilePath)
	if err == nil {
		return profile, nil
	}

	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		if jsonOutput {
			_ = json.NewEncoder(os.Stderr).Encode(verrs)
		} else {
			fmt.Fprintf(os.Stderr, "profile %s has %d invalid field(s):\n", profilePath, len(verrs))
			for _, ve := range verrs {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", ve.Field, ve.Message)
			}
		}
		return config.Profile{}, &ExitError{Code: ExitBadProfile, Err: verrs}
	}
	return config.Profile{}, err
}
