package location

import (
	"math"
	"sort"

	"github.com/kevinmaint/maint-api/internal/models"
)

const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// ValidCoordinate reports whether lat/lon fall inside their legal ranges.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// SortByDistance orders businesses nearest first. Negative distances are
// clamped to zero.
func SortByDistance(businesses []models.NearbyBusiness) {
	for i := range businesses {
		if businesses[i].Distance < 0 || math.IsNaN(businesses[i].Distance) {
			businesses[i].Distance = 0
		}
	}
	sort.SliceStable(businesses, func(i, j int) bool {
		return businesses[i].Distance < businesses[j].Distance
	})
}
