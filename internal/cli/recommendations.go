package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/soniam4/carbonfootprint-tracker/internal/domain"
	"github.com/soniam4/carbonfootprint-tracker/internal/logging"
)

func newRecommendationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "Manage recommendation assignments",
	}
	cmd.AddCommand(newRecommendationsRefreshCmd(a))
	return cmd
}

func newRecommendationsRefreshCmd(a *app) *cobra.Command {
	var (
		cooldown    time.Duration
		starterSize int
	)
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-run recommendation assignment for every user",
		Long: "Runs the assignment rules for every user with activities or assignments. " +
			"Users inside their cooldown are left unchanged.",
		Example: `  carbonctl recommendations refresh
  carbonctl recommendations refresh --cooldown 336h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := domain.DefaultRecommenderConfig()
			cfg.Cooldown = cooldown
			cfg.StarterSetSize = starterSize

			return a.withStore(cmd.Context(), func(store Store) error {
				recommender := domain.NewRecommender(store, cfg,
					domain.WithRecommenderLogger(logging.Component(a.logger, "recommender")))
				report, err := recommender.RefreshAll(cmd.Context())
				printRefreshReport(cmd, report)
				if err != nil {
					return fmt.Errorf("refresh finished with %d failed users: %w", report.Failed, err)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&cooldown, "cooldown", a.cfg.RecommendationCooldown, "minimum age of the newest assignment before an update")
	cmd.Flags().IntVar(&starterSize, "starter-size", a.cfg.StarterSetSize, "number of recommendations in the starter set")
	return cmd
}

func printRefreshReport(cmd *cobra.Command, report domain.RefreshReport) {
	cmd.Printf("Users processed: %d\n", report.Users)
	cmd.Printf("Recommendations assigned: %d\n", report.Assigned)

	outcomes := make([]string, 0, len(report.Outcomes))
	for outcome := range report.Outcomes {
		outcomes = append(outcomes, string(outcome))
	}
	sort.Strings(outcomes)
	for _, outcome := range outcomes {
		cmd.Printf("  %s: %d\n", outcome, report.Outcomes[domain.AssignmentOutcome(outcome)])
	}
	if report.Failed > 0 {
		cmd.Printf("Failed: %d\n", report.Failed)
	}
}
