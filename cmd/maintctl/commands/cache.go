package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevinmaint/maint-api/internal/location"
)

// NewCacheCmd creates the cache command for inspecting the shared fingerprint cache
func NewCacheCmd(open Loader[location.FingerprintCache]) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the Wi-Fi fingerprint cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached fingerprints, most recently seen first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, release, err := load(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer release()

			entries, err := cache.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list fingerprint cache: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Fingerprint cache is empty")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FINGERPRINT\tBUSINESS\tCONFIDENCE\tMETHOD\tHITS\tLAST SEEN")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%d\t%s\n",
					shortFingerprint(e.Fingerprint), e.Business.Name, e.Confidence,
					e.DetectionMethod, e.HitCount, e.LastSeen.UTC().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <fingerprint>",
		Short: "Forget one fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, release, err := load(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer release()

			if err := cache.Remove(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to remove fingerprint: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", shortFingerprint(args[0]))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Drop expired entries and entries beyond capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, release, err := load(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer release()

			removed, err := cache.Prune(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to prune fingerprint cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries\n", removed)
			return nil
		},
	})

	return cmd
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
