package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kevinmaint/maint-api/internal/models"
)

// SummaryRecomputer rebuilds an issue's smart summary from its thread
type SummaryRecomputer interface {
	RecomputeSummary(ctx context.Context, issueID uuid.UUID) (*models.SmartSummary, error)
}

// NewSummaryCmd creates the summary command
func NewSummaryCmd(open Loader[SummaryRecomputer]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Manage smart summaries",
	}

	var issue string
	recompute := &cobra.Command{
		Use:   "recompute",
		Short: "Rebuild the smart summary of an issue from its accepted proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issueID, err := uuid.Parse(issue)
			if err != nil {
				return fmt.Errorf("invalid --issue: %w", err)
			}

			svc, release, err := load(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer release()

			summary, err := svc.RecomputeSummary(cmd.Context(), issueID)
			if err != nil {
				return fmt.Errorf("failed to recompute summary: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Issue:       %s\n", summary.IssueID)
			fmt.Fprintf(out, "Status:      %s\n", summary.CurrentStatus)
			fmt.Fprintf(out, "Risk:        %s\n", summary.RiskLevel)
			fmt.Fprintf(out, "Total cost:  %.2f\n", summary.TotalCost)
			fmt.Fprintf(out, "Next action: %s\n", summary.NextAction)
			return nil
		},
	}
	recompute.Flags().StringVar(&issue, "issue", "", "Issue ID (required)")
	_ = recompute.MarkFlagRequired("issue")

	cmd.AddCommand(recompute)
	return cmd
}
