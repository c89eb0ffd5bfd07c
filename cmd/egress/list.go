package egress

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/egress"
)

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List egress points and their scores",
		Long:  `List every egress point with its success rate, health score and load.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			manager, err := buildManager(cmd.Context(), deps)
			if err != nil {
				return err
			}

			points := manager.Points()
			if len(points) == 0 {
				fmt.Println("No egress points configured")
				return nil
			}
			sort.Slice(points, func(i, j int) bool {
				return points[i].HealthScore > points[j].HealthScore
			})

			renderPoints(points)
			return nil
		},
	}
}

// renderPoints prints the pool as a table.
func renderPoints(points []*egress.Point) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"ID", "Address", "Geo", "Class", "Success", "Health", "Avg RT", "Load", "Failures", "Blocked By",
	})

	for _, p := range points {
		class := "datacenter"
		if p.Residential {
			class = "residential"
		}
		t.AppendRow(table.Row{
			p.ID,
			p.Address,
			p.Geo,
			class,
			fmt.Sprintf("%.2f", p.SuccessRate),
			fmt.Sprintf("%.2f", p.HealthScore),
			fmt.Sprintf("%.1fs", p.AvgResponseTime),
			fmt.Sprintf("%d/%d", p.CurrentLoad, p.Capacity),
			p.ConsecutiveFailures,
			strings.Join(p.BlockedSources(), ", "),
		})
	}

	t.Render()
}
