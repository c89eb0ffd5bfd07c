package egress

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/egress"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one health-check sweep over the pool",
		Long:  `Probe every egress point once and print the sweep report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			manager, err := buildManager(cmd.Context(), deps)
			if err != nil {
				return err
			}
			if len(manager.Points()) == 0 {
				fmt.Println("No egress points configured")
				return nil
			}

			report := manager.HealthCheckAll(cmd.Context())
			renderReport(report)
			return nil
		},
	}
}

// renderReport prints one sweep's outcomes as a table.
func renderReport(report egress.HealthReport) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "OK", "Status", "RT", "Health", "Error"})
	for _, outcome := range report.Outcomes {
		t.AppendRow(table.Row{
			outcome.EgressID,
			outcome.Success,
			outcome.StatusCode,
			outcome.ResponseTime.Round(time.Millisecond),
			fmt.Sprintf("%.2f", outcome.HealthScore),
			outcome.Error,
		})
	}
	t.Render()

	fmt.Printf("checked %d point(s) in %s: %d healthy, %d quarantined, %d blocked\n",
		report.Total, report.Duration.Round(time.Millisecond),
		report.Healthy, report.Quarantined, report.Blocked,
	)
}
