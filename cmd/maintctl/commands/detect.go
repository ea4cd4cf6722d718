package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevinmaint/maint-api/internal/location"
	"github.com/kevinmaint/maint-api/internal/models"
)

// Detector runs one location detection
type Detector interface {
	Detect(ctx context.Context, req location.DetectionRequest) (*models.LocationContext, error)
}

// NewDetectCmd creates the detect command, which runs the detection pipeline
// against the configured Places API and fingerprint cache. newRetry may be nil.
func NewDetectCmd(open Loader[Detector], newRetry func() *location.RetryManager) *cobra.Command {
	if newRetry == nil {
		newRetry = location.NewRetryManager
	}

	var (
		lat, lon, accuracy float64
		ssid, bssid        string
		retry              bool
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the restaurant at a position",
		Long:  "Run location detection for a GPS position and optional Wi-Fi network, retrying with backoff when --retry is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
				return fmt.Errorf("--lat/--lon out of range")
			}
			req := location.DetectionRequest{
				GPS: &location.GPSFix{Latitude: lat, Longitude: lon, Accuracy: accuracy, Timestamp: time.Now()},
			}
			if ssid != "" || bssid != "" {
				req.WiFi = &location.WiFiReading{SSID: ssid, BSSID: bssid}
			}

			detector, release, err := load(cmd.Context(), open)
			if err != nil {
				return err
			}
			defer release()

			out := cmd.OutOrStdout()
			lc, err := detector.Detect(cmd.Context(), req)
			if err != nil && retry {
				manager := newRetry()
				for err != nil && isRetryable(err) && manager.CanRetry() {
					fmt.Fprintf(out, "Detection failed (%v), retrying in %s (%d left)\n",
						err, manager.NextDelay(), manager.Remaining()-1)
					err = manager.PerformRetry(cmd.Context(), func(ctx context.Context) error {
						var detectErr error
						lc, detectErr = detector.Detect(ctx, req)
						return detectErr
					})
				}
			}
			if err != nil {
				return describeDetectionError(err)
			}

			printLocation(cmd, lc)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (required)")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude (required)")
	cmd.Flags().Float64Var(&accuracy, "accuracy", 10, "GPS accuracy in meters")
	cmd.Flags().StringVar(&ssid, "ssid", "", "Wi-Fi network name")
	cmd.Flags().StringVar(&bssid, "bssid", "", "Wi-Fi access point MAC")
	cmd.Flags().BoolVar(&retry, "retry", false, "Retry retryable failures with backoff")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func isRetryable(err error) bool {
	de, ok := location.AsDetectionError(err)
	return ok && de.Kind.Retryable()
}

func describeDetectionError(err error) error {
	if errors.Is(err, location.ErrRetriesExhausted) {
		return fmt.Errorf("detection failed after all retries: %w", err)
	}
	de, ok := location.AsDetectionError(err)
	if !ok {
		return fmt.Errorf("detection failed: %w", err)
	}
	return fmt.Errorf("%s: %s %s", de.Kind, de.Kind.Description(), de.Kind.RecoverySuggestion())
}

func printLocation(cmd *cobra.Command, lc *models.LocationContext) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Method:     %s\n", lc.DetectionMethod)
	fmt.Fprintf(out, "Confidence: %.2f\n", lc.Confidence)
	if lc.SuggestedBusiness != nil {
		fmt.Fprintf(out, "Suggested:  %s (%.0fm) %s\n",
			lc.SuggestedBusiness.Name, lc.SuggestedBusiness.Distance, lc.SuggestedBusiness.Address)
	}
	if len(lc.NearbyBusinesses) > 0 {
		fmt.Fprintln(out, "Nearby:")
		for _, b := range lc.NearbyBusinesses {
			fmt.Fprintf(out, "  - %s (%.0fm, %s)\n", b.Name, b.Distance, b.BusinessType)
		}
	}
}
