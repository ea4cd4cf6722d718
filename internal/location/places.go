package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kevinmaint/maint-api/internal/models"
)

// DefaultPlacesBaseURL is the Google Places nearby-search endpoint
const DefaultPlacesBaseURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// PlacesClient finds businesses around a coordinate
type PlacesClient interface {
	SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]models.NearbyBusiness, error)
}

// GooglePlacesClient queries the Google Places nearby-search API
type GooglePlacesClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewGooglePlacesClient creates a Places client. An empty baseURL selects the
// public Google endpoint.
func NewGooglePlacesClient(apiKey, baseURL string, logger *zap.Logger) *GooglePlacesClient {
	if baseURL == "" {
		baseURL = DefaultPlacesBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GooglePlacesClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type placesResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type placeResult struct {
	PlaceID          string   `json:"place_id"`
	Name             string   `json:"name"`
	Vicinity         string   `json:"vicinity"`
	FormattedAddress string   `json:"formatted_address"`
	Types            []string `json:"types"`
	Rating           *float64 `json:"rating"`
	PriceLevel       *int     `json:"price_level"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	OpeningHours *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"opening_hours"`
	Photos []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

// SearchNearby returns businesses within radiusMeters of (lat, lon) with their
// distance from that point filled in, nearest first.
func (c *GooglePlacesClient) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int) ([]models.NearbyBusiness, error) {
	if c.apiKey == "" {
		return nil, ErrPlacesNotConfigured
	}

	params := url.Values{}
	params.Add("location", fmt.Sprintf("%.6f,%.6f", lat, lon))
	params.Add("radius", fmt.Sprintf("%d", radiusMeters))
	params.Add("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build places request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Google Places API: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("google places API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse Google Places response: %w", err)
	}
	switch result.Status {
	case "OK", "ZERO_RESULTS", "":
	default:
		return nil, fmt.Errorf("google places API returned %s: %s", result.Status, result.ErrorMessage)
	}

	businesses := make([]models.NearbyBusiness, 0, len(result.Results))
	for _, place := range result.Results {
		b := models.NearbyBusiness{
			ID:           place.PlaceID,
			Name:         place.Name,
			Address:      place.Vicinity,
			Latitude:     place.Geometry.Location.Lat,
			Longitude:    place.Geometry.Location.Lng,
			BusinessType: BusinessTypeFromPlaceTypes(place.Types),
			Rating:       place.Rating,
			PriceLevel:   place.PriceLevel,
		}
		if b.Address == "" {
			b.Address = place.FormattedAddress
		}
		if place.OpeningHours != nil {
			b.IsOpen = place.OpeningHours.OpenNow
		}
		if len(place.Photos) > 0 && place.Photos[0].PhotoReference != "" {
			ref := place.Photos[0].PhotoReference
			b.PhotoReference = &ref
		}
		b.Distance = DistanceMeters(lat, lon, b.Latitude, b.Longitude)
		businesses = append(businesses, b)
	}
	SortByDistance(businesses)

	c.logger.Debug("places_search_completed",
		zap.Int("results", len(businesses)),
		zap.Int("radius_m", radiusMeters),
	)
	return businesses, nil
}

// placeTypePriority maps Google place types onto business categories, most
// specific first.
var placeTypePriority = []struct {
	placeType string
	category  models.BusinessType
}{
	{"meal_takeaway", models.BusinessTypeFastFood},
	{"meal_delivery", models.BusinessTypeFastFood},
	{"bakery", models.BusinessTypeBakery},
	{"cafe", models.BusinessTypeCafe},
	{"bar", models.BusinessTypeBar},
	{"night_club", models.BusinessTypeBar},
	{"restaurant", models.BusinessTypeRestaurant},
	{"food", models.BusinessTypeRestaurant},
	{"supermarket", models.BusinessTypeGrocery},
	{"grocery_or_supermarket", models.BusinessTypeGrocery},
	{"convenience_store", models.BusinessTypeGrocery},
	{"lodging", models.BusinessTypeHotel},
	{"store", models.BusinessTypeRetail},
	{"shopping_mall", models.BusinessTypeRetail},
}

// BusinessTypeFromPlaceTypes picks the category for a place's type list
func BusinessTypeFromPlaceTypes(types []string) models.BusinessType {
	for _, p := range placeTypePriority {
		for _, t := range types {
			if t == p.placeType {
				return p.category
			}
		}
	}
	return models.BusinessTypeOther
}
