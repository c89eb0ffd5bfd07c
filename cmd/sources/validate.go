package sources

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
)

// NewValidateCommand creates the validate command. Loading the
// configuration already validates every section, so reaching the
// handler means the sources are sound; the command exists to give
// deployments an explicit preflight check.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configured sources",
		Long:  `Validate every source declaration and report the result.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			fmt.Printf("%d source(s) valid\n", len(deps.Config.Sources))
			return nil
		},
	}
}
