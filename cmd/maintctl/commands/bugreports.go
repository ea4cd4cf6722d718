package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevinmaint/maint-api/internal/models"
)

// BugReportLister reads filed bug reports
type BugReportLister interface {
	List(ctx context.Context, status *models.BugReportStatus, limit int) ([]*models.BugReport, error)
}

// NewBugReportsCmd creates the bug-reports command
func NewBugReportsCmd(open Loader[BugReportLister]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bug-reports",
		Short: "Triage in-app bug reports",
	}

	var status string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List bug reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *models.BugReportStatus
			switch s := models.BugReportStatus(status); s {
			case "":
			case models.BugReportOpen, models.BugReportResolved:
				filter = &s
			default:
				return fmt.Errorf("invalid --status %q: must be open or resolved", status)
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			reports, release, err := load(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer release()

			items, err := reports.List(cmd.Context(), filter, limit)
			if err != nil {
				return fmt.Errorf("failed to list bug reports: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No bug reports")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tTITLE\tAPP VERSION")
			for _, r := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Status, r.CreatedAt.UTC().Format("2006-01-02 15:04"), r.Title, r.AppVersion)
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (open, resolved)")
	list.Flags().IntVar(&limit, "limit", 50, "Maximum number of reports to show")

	cmd.AddCommand(list)
	return cmd
}
