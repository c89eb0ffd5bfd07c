// Package patterns implements the command that prints the
// accumulated failure-pattern report.
package patterns

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/state"
)

// defaultWindow is the report window when no flag is given.
const defaultWindow = 7 * 24 * time.Hour

// Command returns the patterns command.
func Command() *cobra.Command {
	var (
		source string
		window time.Duration
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Print the failure pattern report",
		Long:  `Print the learned failure patterns with frequencies and recovery suggestions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}

			det := detector.New(detector.Config{
				ProductSelectors: deps.Config.ProductSelectors(),
				PatternRetention: deps.Config.Detector.PatternRetention,
			}, deps.Logger)

			store, err := state.New(state.Config{
				Addr:     deps.Config.Redis.Addr,
				Password: deps.Config.Redis.Password,
				DB:       deps.Config.Redis.DB,
				Prefix:   deps.Config.Redis.Prefix,
			})
			if err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			defer store.Close()

			if err := det.Patterns().LoadFrom(cmd.Context(), store); err != nil {
				if errors.Is(err, state.ErrNotFound) {
					fmt.Println("No failure patterns recorded yet")
					return nil
				}
				return fmt.Errorf("loading failure patterns: %w", err)
			}

			report := det.Report(source, window)
			renderReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "filter patterns to one source")
	cmd.Flags().DurationVar(&window, "window", defaultWindow, "report window")

	return cmd
}

// renderReport prints the pattern report as a table plus the
// synthesized recommendations.
func renderReport(report detector.Report) {
	if report.TotalPatterns == 0 {
		fmt.Println("No failure patterns inside the window")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Source", "URL Pattern", "Type", "Frequency", "Confidence", "Last Seen", "Suggestions",
	})
	for _, p := range report.TopPatterns {
		t.AppendRow(table.Row{
			p.Source,
			p.URLPattern,
			p.ErrorType,
			p.Frequency,
			fmt.Sprintf("%.1f", p.Confidence),
			p.LastSeen.Format(time.RFC3339),
			strings.Join(p.Suggestions, "; "),
		})
	}
	t.Render()

	if len(report.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
}
