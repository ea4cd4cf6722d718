package location

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kevinmaint/maint-api/internal/models"
)

const placesFixture = `{
  "status": "OK",
  "results": [
    {
      "place_id": "far",
      "name": "Harbor Grill",
      "vicinity": "200 Main St",
      "types": ["restaurant", "food", "point_of_interest"],
      "geometry": {"location": {"lat": 35.2285, "lng": -80.8431}},
      "rating": 4.4
    },
    {
      "place_id": "near",
      "name": "Bean There",
      "vicinity": "101 Main St",
      "types": ["cafe", "food", "establishment"],
      "geometry": {"location": {"lat": 35.2273, "lng": -80.8431}},
      "opening_hours": {"open_now": true},
      "photos": [{"photo_reference": "ref-1"}]
    }
  ]
}`

func TestGooglePlacesClient_SearchNearby(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(placesFixture))
	}))
	defer srv.Close()

	c := NewGooglePlacesClient("test-key", srv.URL, nil)
	got, err := c.SearchNearby(context.Background(), 35.2271, -80.8431, 500)
	if err != nil {
		t.Fatalf("SearchNearby() error = %v", err)
	}

	if !strings.Contains(gotQuery, "radius=500") || !strings.Contains(gotQuery, "key=test-key") {
		t.Errorf("query = %q", gotQuery)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "near" {
		t.Errorf("first = %s, want near", got[0].ID)
	}
	if got[0].BusinessType != models.BusinessTypeCafe {
		t.Errorf("type = %s, want cafe", got[0].BusinessType)
	}
	if got[0].IsOpen == nil || !*got[0].IsOpen {
		t.Error("expected open_now to be mapped")
	}
	if got[0].PhotoReference == nil || *got[0].PhotoReference != "ref-1" {
		t.Error("expected photo reference to be mapped")
	}
	if got[1].Rating == nil || *got[1].Rating != 4.4 {
		t.Error("expected rating to be mapped")
	}
	if got[0].Distance >= got[1].Distance {
		t.Errorf("distances not ascending: %v, %v", got[0].Distance, got[1].Distance)
	}
}

func TestGooglePlacesClient_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no api key", func(t *testing.T) {
		c := NewGooglePlacesClient("", "", nil)
		_, err := c.SearchNearby(context.Background(), 0, 0, 500)
		if !errors.Is(err, ErrPlacesNotConfigured) {
			t.Errorf("error = %v, want ErrPlacesNotConfigured", err)
		}
	})

	t.Run("denied status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`))
		}))
		defer srv.Close()
		_, err := NewGooglePlacesClient("k", srv.URL, nil).SearchNearby(context.Background(), 0, 0, 500)
		if err == nil {
			t.Error("expected error for REQUEST_DENIED")
		}
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := NewGooglePlacesClient("k", srv.URL, nil).SearchNearby(context.Background(), 0, 0, 500)
		if err == nil {
			t.Error("expected error for 502")
		}
	})
}

func TestBusinessTypeFromPlaceTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		types []string
		want  models.BusinessType
	}{
		{[]string{"restaurant", "food"}, models.BusinessTypeRestaurant},
		{[]string{"food", "bakery"}, models.BusinessTypeBakery},
		{[]string{"meal_takeaway", "restaurant"}, models.BusinessTypeFastFood},
		{[]string{"lodging"}, models.BusinessTypeHotel},
		{[]string{"point_of_interest"}, models.BusinessTypeOther},
		{nil, models.BusinessTypeOther},
	}
	for _, tt := range tests {
		if got := BusinessTypeFromPlaceTypes(tt.types); got != tt.want {
			t.Errorf("BusinessTypeFromPlaceTypes(%v) = %s, want %s", tt.types, got, tt.want)
		}
	}
}
