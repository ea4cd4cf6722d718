package location

import (
	"errors"
	"fmt"

	"github.com/kevinmaint/maint-api/internal/models"
)

// DetectionErrorKind is the closed set of ways a detection attempt can fail
type DetectionErrorKind string

const (
	ErrKindPermissionDenied    DetectionErrorKind = "permission_denied"
	ErrKindLocationUnavailable DetectionErrorKind = "location_unavailable"
	ErrKindNoRestaurantsFound  DetectionErrorKind = "no_restaurants_found"
	ErrKindWiFiUnavailable     DetectionErrorKind = "wifi_unavailable"
	ErrKindNetworkError        DetectionErrorKind = "network_error"
	ErrKindTimeout             DetectionErrorKind = "timeout"
	ErrKindCacheCorrupted      DetectionErrorKind = "cache_corrupted"
)

var (
	// ErrCacheCorrupted is returned by caches holding an entry they cannot decode
	ErrCacheCorrupted = errors.New("fingerprint cache entry corrupted")
	// ErrPlacesNotConfigured is returned when no Places API key is available
	ErrPlacesNotConfigured = errors.New("places API key not configured")
)

type kindText struct {
	description string
	suggestion  string
}

var kindTexts = map[DetectionErrorKind]kindText{
	ErrKindPermissionDenied: {
		"Location access is turned off for this app.",
		"Enable location access in Settings, or pick your restaurant from the list.",
	},
	ErrKindLocationUnavailable: {
		"We couldn't get a GPS fix for your device.",
		"Move closer to a window or outdoors and try again, or pick your restaurant manually.",
	},
	ErrKindNoRestaurantsFound: {
		"No restaurants were found close enough to your location.",
		"Select your restaurant from the nearby list or search for it by name.",
	},
	ErrKindWiFiUnavailable: {
		"Wi-Fi information isn't available.",
		"Connect to your restaurant's Wi-Fi for faster detection next time.",
	},
	ErrKindNetworkError: {
		"We couldn't reach the location service.",
		"Check your internet connection and try again.",
	},
	ErrKindTimeout: {
		"Location detection took too long.",
		"Try again, or pick your restaurant manually.",
	},
	ErrKindCacheCorrupted: {
		"Saved location data was unreadable and has been cleared.",
		"Try again to detect your location from GPS.",
	},
}

// Description is the user-facing explanation of the failure
func (k DetectionErrorKind) Description() string {
	if t, ok := kindTexts[k]; ok {
		return t.description
	}
	return "Location detection failed."
}

// RecoverySuggestion tells the user what to do next
func (k DetectionErrorKind) RecoverySuggestion() string {
	if t, ok := kindTexts[k]; ok {
		return t.suggestion
	}
	return "Pick your restaurant manually."
}

// Retryable reports whether retrying could plausibly succeed. Permission and
// empty-result failures have no transient cause.
func (k DetectionErrorKind) Retryable() bool {
	switch k {
	case ErrKindPermissionDenied, ErrKindNoRestaurantsFound:
		return false
	}
	return true
}

// DetectionError is returned by Detect. Candidates is populated when a search
// succeeded but nothing could be suggested, so the caller can fall back to
// manual selection.
type DetectionError struct {
	Kind       DetectionErrorKind
	Candidates []models.NearbyBusiness
	Err        error
}

func newDetectionError(kind DetectionErrorKind, err error) *DetectionError {
	return &DetectionError{Kind: kind, Err: err}
}

func (e *DetectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location detection failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("location detection failed (%s)", e.Kind)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// AsDetectionError extracts a *DetectionError from err
func AsDetectionError(err error) (*DetectionError, bool) {
	var de *DetectionError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
