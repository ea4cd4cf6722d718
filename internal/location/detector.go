package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/metrics"
	"github.com/kevinmaint/maint-api/internal/models"
	"github.com/kevinmaint/maint-api/internal/telemetry"
)

// Config tunes the detection pipeline
type Config struct {
	Timeout                 time.Duration
	SearchRadiusMeters      int
	HighConfidenceRadius    float64
	WiFiCacheMaxAge         time.Duration
	WiFiConfidenceThreshold float64
	WiFiCacheConfidence     float64
	PartialMatchBonus       float64
}

// DefaultConfig returns the production detection tuning
func DefaultConfig() Config {
	return Config{
		Timeout:                 10 * time.Second,
		SearchRadiusMeters:      500,
		HighConfidenceRadius:    50,
		WiFiCacheMaxAge:         7 * 24 * time.Hour,
		WiFiConfidenceThreshold: 0.8,
		WiFiCacheConfidence:     0.95,
		PartialMatchBonus:       0.05,
	}
}

// GPSFix is a position reported by the device
type GPSFix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// GPSFailure is why the device could not supply a fix
type GPSFailure string

const (
	GPSFailureNone             GPSFailure = ""
	GPSFailurePermissionDenied GPSFailure = "permission_denied"
	GPSFailureUnavailable      GPSFailure = "unavailable"
)

// WiFiReading is the network the device is currently joined to
type WiFiReading struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

// DetectionRequest carries everything the device knows about where it is.
// Fingerprint may be supplied pre-hashed; otherwise it is derived from WiFi.
type DetectionRequest struct {
	GPS         *GPSFix
	GPSFailure  GPSFailure
	WiFi        *WiFiReading
	Fingerprint string
}

func (r DetectionRequest) fingerprint() string {
	if r.Fingerprint != "" {
		return r.Fingerprint
	}
	if r.WiFi != nil {
		return Fingerprint(r.WiFi.SSID, r.WiFi.BSSID)
	}
	return ""
}

// Detector resolves a DetectionRequest into a LocationContext
type Detector struct {
	places PlacesClient
	cache  FingerprintCache
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewDetector wires a detector. cache may be nil, which disables the Wi-Fi paths.
func NewDetector(places PlacesClient, cache FingerprintCache, cfg Config, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{places: places, cache: cache, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the detector's time source
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Detect runs the pipeline: Wi-Fi cache fast path, then GPS plus nearby search.
// Failures are always *DetectionError.
func (d *Detector) Detect(ctx context.Context, req DetectionRequest) (*models.LocationContext, error) {
	start := d.now()
	ctx, span := telemetry.Tracer("location").Start(ctx, "location.detect")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	lc, err := d.detect(ctx, req)

	method := "none"
	outcome := "success"
	if lc != nil {
		method = string(lc.DetectionMethod)
	}
	if de, ok := AsDetectionError(err); ok {
		outcome = string(de.Kind)
	}
	metrics.LocationDetections.WithLabelValues(method, outcome).Inc()
	metrics.LocationDetectionDuration.WithLabelValues(method).Observe(d.now().Sub(start).Seconds())
	span.SetAttributes(
		attribute.String("location.method", method),
		attribute.String("location.outcome", outcome),
	)

	if err != nil {
		span.SetStatus(codes.Error, outcome)
		d.logger.Info("location_detection_failed", zap.String("kind", outcome), zap.Error(err))
		return nil, err
	}
	d.logger.Debug("location_detected",
		zap.String("method", method),
		zap.Float64("confidence", lc.Confidence),
		zap.Int("candidates", len(lc.NearbyBusinesses)),
	)
	return lc, nil
}

func (d *Detector) detect(ctx context.Context, req DetectionRequest) (*models.LocationContext, error) {
	now := d.now()
	fp := req.fingerprint()

	var partial *models.FingerprintEntry
	cacheCorrupted := false

	if fp != "" && d.cache != nil {
		entry, err := d.cache.Lookup(ctx, fp)
		switch {
		case errors.Is(err, ErrCacheCorrupted):
			cacheCorrupted = true
			metrics.FingerprintCacheLookups.WithLabelValues("corrupted").Inc()
			d.logger.Warn("fingerprint_cache_corrupted", zap.String("fingerprint", fp))
			if rmErr := d.cache.Remove(ctx, fp); rmErr != nil {
				d.logger.Warn("fingerprint_cache_remove_failed", zap.Error(rmErr))
			}
		case err != nil:
			metrics.FingerprintCacheLookups.WithLabelValues("error").Inc()
			d.logger.Warn("fingerprint_cache_lookup_failed", zap.Error(err))
		case entry == nil:
			metrics.FingerprintCacheLookups.WithLabelValues("miss").Inc()
		case now.Sub(entry.LastSeen) <= d.cfg.WiFiCacheMaxAge && entry.Confidence >= d.cfg.WiFiConfidenceThreshold:
			metrics.FingerprintCacheLookups.WithLabelValues("hit").Inc()
			return d.fromCache(ctx, fp, entry, req.GPS, now), nil
		default:
			metrics.FingerprintCacheLookups.WithLabelValues("partial").Inc()
			partial = entry
		}
	}

	if req.GPS == nil {
		switch {
		case cacheCorrupted:
			return nil, newDetectionError(ErrKindCacheCorrupted, ErrCacheCorrupted)
		case req.GPSFailure == GPSFailurePermissionDenied:
			return nil, newDetectionError(ErrKindPermissionDenied, nil)
		default:
			return nil, newDetectionError(ErrKindLocationUnavailable, nil)
		}
	}

	fix := *req.GPS
	if !ValidCoordinate(fix.Latitude, fix.Longitude) {
		return nil, newDetectionError(ErrKindLocationUnavailable,
			fmt.Errorf("invalid coordinate %.6f,%.6f", fix.Latitude, fix.Longitude))
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}

	businesses, err := d.places.SearchNearby(ctx, fix.Latitude, fix.Longitude, d.cfg.SearchRadiusMeters)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			return nil, newDetectionError(ErrKindTimeout, err)
		}
		return nil, newDetectionError(ErrKindNetworkError, err)
	}
	if ctx.Err() != nil {
		return nil, newDetectionError(ErrKindTimeout, ctx.Err())
	}

	for i := range businesses {
		businesses[i].Distance = DistanceMeters(fix.Latitude, fix.Longitude, businesses[i].Latitude, businesses[i].Longitude)
	}
	SortByDistance(businesses)

	if len(businesses) == 0 || businesses[0].Distance > d.cfg.HighConfidenceRadius {
		return nil, &DetectionError{Kind: ErrKindNoRestaurantsFound, Candidates: businesses}
	}

	suggested := businesses[0]
	method := models.DetectionGPSOnly
	if fp != "" {
		method = models.DetectionWiFiGPSHybrid
	}
	confidence := d.gpsConfidence(method, suggested, fix.Accuracy, partial)

	lc := &models.LocationContext{
		Latitude:          fix.Latitude,
		Longitude:         fix.Longitude,
		Accuracy:          fix.Accuracy,
		Timestamp:         fix.Timestamp,
		NearbyBusinesses:  businesses,
		SuggestedBusiness: &suggested,
		DetectionMethod:   method,
		Confidence:        confidence,
	}
	if fp != "" {
		lc.WiFiFingerprint = &fp
		d.remember(ctx, fp, suggested, confidence, method)
	}
	return lc, nil
}

func (d *Detector) fromCache(ctx context.Context, fp string, entry *models.FingerprintEntry,
	gps *GPSFix, now time.Time) *models.LocationContext {
	business := entry.Business
	lc := &models.LocationContext{
		Latitude:          business.Latitude,
		Longitude:         business.Longitude,
		Timestamp:         now,
		WiFiFingerprint:   &fp,
		NearbyBusinesses:  []models.NearbyBusiness{business},
		SuggestedBusiness: &business,
		DetectionMethod:   models.DetectionWiFiCache,
		Confidence:        d.cfg.WiFiCacheConfidence,
	}
	if gps != nil && ValidCoordinate(gps.Latitude, gps.Longitude) {
		lc.Latitude = gps.Latitude
		lc.Longitude = gps.Longitude
		lc.Accuracy = gps.Accuracy
		business.Distance = DistanceMeters(gps.Latitude, gps.Longitude, business.Latitude, business.Longitude)
		lc.NearbyBusinesses[0] = business
		lc.SuggestedBusiness = &business
	}
	d.remember(ctx, fp, entry.Business, entry.Confidence, entry.DetectionMethod)
	return lc
}

// gpsConfidence scales the method weight down with distance from the
// suggested business and with poor GPS accuracy. A cached partial match for the
// same business adds a bonus, capped below the Wi-Fi cache confidence.
func (d *Detector) gpsConfidence(method models.DetectionMethod, suggested models.NearbyBusiness,
	accuracy float64, partial *models.FingerprintEntry) float64 {
	radius := d.cfg.HighConfidenceRadius
	if radius <= 0 {
		radius = 50
	}

	distanceFactor := 1 - 0.3*math.Min(suggested.Distance/radius, 1)

	accuracyFactor := 1.0
	if accuracy > radius {
		accuracyFactor = math.Max(0.5, radius/accuracy)
	}

	confidence := method.Weight() * distanceFactor * accuracyFactor
	if partial != nil && partial.Business.ID == suggested.ID {
		confidence = math.Min(confidence+d.cfg.PartialMatchBonus, d.cfg.WiFiCacheConfidence)
	}
	return clamp01(confidence)
}

func (d *Detector) remember(ctx context.Context, fp string, business models.NearbyBusiness,
	confidence float64, method models.DetectionMethod) {
	if d.cache == nil {
		return
	}
	if _, err := d.cache.Upsert(ctx, fp, business, confidence, method); err != nil {
		d.logger.Warn("fingerprint_cache_upsert_failed", zap.Error(err))
	}
}

// ConfirmSelection records a business chosen by a person for a fingerprint.
// Manual and admin selections carry full confidence, so the next detection on
// the same network takes the Wi-Fi fast path.
func (d *Detector) ConfirmSelection(ctx context.Context, fingerprint string, business models.NearbyBusiness,
	method models.DetectionMethod) (*models.FingerprintEntry, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is required")
	}
	if business.ID == "" {
		return nil, fmt.Errorf("business id is required")
	}
	if method != models.DetectionManualSelection && method != models.DetectionAdminOverride {
		return nil, fmt.Errorf("invalid selection method: %s", method)
	}
	if d.cache == nil {
		return nil, fmt.Errorf("fingerprint cache not configured")
	}

	entry, err := d.cache.Upsert(ctx, fingerprint, business, method.Weight(), method)
	if err != nil {
		return nil, fmt.Errorf("failed to record selection: %w", err)
	}
	d.logger.Info("location_selection_confirmed",
		zap.String("business_id", business.ID),
		zap.String("method", string(method)),
	)
	return entry, nil
}
