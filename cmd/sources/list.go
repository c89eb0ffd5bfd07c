package sources

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/config"
)

// TableRenderer handles the display of source data in a table format.
type TableRenderer struct{}

// RenderTable formats and displays the sources in a table format.
func (r *TableRenderer) RenderTable(sources []config.SourceConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Name", "Enabled", "Tier", "Category", "URLs", "Concurrency", "Rate Limit", "Egress",
	})

	for i := range sources {
		src := &sources[i]
		t.AppendRow(table.Row{
			src.Name,
			src.Enabled,
			src.Tier,
			src.Category,
			len(src.URLs),
			src.MaxConcurrent,
			src.RateLimit,
			egressSummary(src),
		})
	}

	t.Render()
}

// egressSummary compacts a source's egress requirements into one
// cell.
func egressSummary(src *config.SourceConfig) string {
	var parts []string
	if src.Egress.Residential {
		parts = append(parts, "residential")
	}
	if src.Egress.Geo != "" {
		geo := src.Egress.Geo
		if src.Egress.StrictGeo {
			geo += "!"
		}
		parts = append(parts, geo)
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ", ")
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configured sources",
		Long:  `List all harvesting sources configured in the system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			if len(deps.Config.Sources) == 0 {
				fmt.Println("No sources configured")
				return nil
			}

			renderer := &TableRenderer{}
			renderer.RenderTable(deps.Config.Sources)
			return nil
		},
	}
}
