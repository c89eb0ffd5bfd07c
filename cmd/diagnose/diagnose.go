// Package diagnose implements the on-demand deep diagnosis command.
package diagnose

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/goharvest/cmd/common"
	"github.com/jonesrussell/goharvest/internal/circuitbreaker"
	"github.com/jonesrussell/goharvest/internal/detector"
	"github.com/jonesrussell/goharvest/internal/egress"
	"github.com/jonesrussell/goharvest/internal/fetch"
	"github.com/jonesrussell/goharvest/internal/orchestrator"
	"github.com/jonesrussell/goharvest/internal/state"
)

// Command returns the diagnose command.
func Command() *cobra.Command {
	var (
		source  string
		pageURL string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run a deep diagnosis of one source URL",
		Long: `Fetch one URL through the configured egress policy, run the full
blocking analysis on the response, and print the verdict together
with the historical failure patterns for the source.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			cfg := deps.Config
			log := deps.Logger

			manager := egress.NewManager(egress.Config{
				SuccessRateFloor:    cfg.Egress.SuccessRateFloor,
				QuarantineThreshold: cfg.Egress.QuarantineThreshold,
				SessionTTL:          cfg.Egress.SessionTTL,
				ProbeTarget:         cfg.Egress.ProbeTarget,
			}, log)
			for i := range cfg.Egress.Points {
				pc := &cfg.Egress.Points[i]
				if regErr := manager.Register(&egress.Point{
					ID:          pc.ID,
					Address:     pc.Address,
					Protocol:    pc.Protocol,
					Geo:         pc.Geo,
					Residential: pc.Residential,
					Capacity:    pc.Capacity,
				}); regErr != nil {
					return fmt.Errorf("registering egress point %s: %w", pc.ID, regErr)
				}
			}

			det := detector.New(detector.Config{
				ProductSelectors: cfg.ProductSelectors(),
				PatternRetention: cfg.Detector.PatternRetention,
			}, log)

			// Overlay checkpointed history when Redis is reachable so
			// the verdict reflects what the running control plane has
			// learned.
			if store, storeErr := state.New(state.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   cfg.Redis.Prefix,
			}); storeErr == nil {
				defer store.Close()
				if loadErr := manager.LoadFrom(cmd.Context(), store); loadErr != nil && !errors.Is(loadErr, state.ErrNotFound) {
					log.Warn("loading egress checkpoint failed", "error", loadErr.Error())
				}
				if loadErr := det.Patterns().LoadFrom(cmd.Context(), store); loadErr != nil && !errors.Is(loadErr, state.ErrNotFound) {
					log.Warn("loading pattern checkpoint failed", "error", loadErr.Error())
				}
			} else {
				log.Warn("redis unreachable, diagnosing without history", "error", storeErr.Error())
			}

			orch, err := orchestrator.New(orchestrator.DefaultConfig(), orchestrator.Deps{
				Logger:   log,
				Sources:  cfg.SourceProfiles(),
				Breakers: circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), nil),
				Egress:   manager,
				Detector: det,
				Fetcher: fetch.New(fetch.Config{
					UserAgent:        cfg.Fetch.UserAgent,
					Timeout:          cfg.Fetch.Timeout,
					MaxBodyBytes:     int(cfg.Fetch.MaxBodyBytes),
					ProductSelectors: cfg.ProductSelectors(),
				}, log),
			})
			if err != nil {
				return fmt.Errorf("building orchestrator: %w", err)
			}

			report, err := orch.Diagnose(cmd.Context(), source, pageURL)
			if err != nil {
				return fmt.Errorf("diagnosis failed: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "source to diagnose (required)")
	cmd.Flags().StringVar(&pageURL, "url", "", "target URL (defaults to the source's first target)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("source")

	return cmd
}

// printReport renders the diagnosis in a readable form.
func printReport(report *orchestrator.DiagnosticReport) {
	fmt.Printf("Source:       %s\n", report.Source)
	fmt.Printf("URL:          %s\n", report.URL)
	fmt.Printf("Verdict:      %s (probability %.2f)\n", report.Verdict, report.Analysis.Probability)
	fmt.Printf("Fetch:        success=%t status=%d items=%d in %s via %s\n",
		report.Success, report.StatusCode, report.ItemsFound,
		report.FetchDuration.Round(time.Millisecond), report.EgressID,
	)
	fmt.Printf("Breaker:      %s (%d consecutive failures)\n",
		report.BreakerState, report.ConsecutiveFailures,
	)
	if report.ErrorReason != "" {
		fmt.Printf("Error:        %s\n", report.ErrorReason)
	}
	if len(report.Analysis.Indicators) > 0 {
		fmt.Printf("Indicators:   %s\n", strings.Join(report.Analysis.Indicators, "; "))
	}
	if len(report.Analysis.VisualFindings) > 0 {
		fmt.Printf("Visual:       %s\n", strings.Join(report.Analysis.VisualFindings, "; "))
	}

	if len(report.Patterns) > 0 {
		fmt.Printf("\nKnown patterns for this source:\n")
		for _, p := range report.Patterns {
			fmt.Printf("  %s %s seen %d time(s), confidence %.1f\n",
				p.ErrorType, p.URLPattern, p.Frequency, p.Confidence)
		}
	}
	if len(report.Recommendations) > 0 {
		fmt.Printf("\nRecommendations:\n")
		for _, rec := range report.Recommendations {
			fmt.Printf("  - %s\n", rec)
		}
	}
}
