package models

import "time"

// BusinessType is the coarse category of a nearby business
type BusinessType string

const (
	BusinessTypeRestaurant BusinessType = "restaurant"
	BusinessTypeCafe       BusinessType = "cafe"
	BusinessTypeBar        BusinessType = "bar"
	BusinessTypeBakery     BusinessType = "bakery"
	BusinessTypeFastFood   BusinessType = "fast_food"
	BusinessTypeFoodTruck  BusinessType = "food_truck"
	BusinessTypeGrocery    BusinessType = "grocery"
	BusinessTypeHotel      BusinessType = "hotel"
	BusinessTypeRetail     BusinessType = "retail"
	BusinessTypeOther      BusinessType = "other"
)

// NearbyBusiness is one candidate location returned by a nearby search
type NearbyBusiness struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Address        string       `json:"address"`
	Distance       float64      `json:"distance"`
	Latitude       float64      `json:"latitude"`
	Longitude      float64      `json:"longitude"`
	BusinessType   BusinessType `json:"business_type"`
	Rating         *float64     `json:"rating,omitempty"`
	PriceLevel     *int         `json:"price_level,omitempty"`
	IsOpen         *bool        `json:"is_open,omitempty"`
	PhotoReference *string      `json:"photo_reference,omitempty"`
}

// DetectionMethod records how the reporting location was determined
type DetectionMethod string

const (
	DetectionGPSOnly         DetectionMethod = "gps_only"
	DetectionWiFiCache       DetectionMethod = "wifi_cache"
	DetectionWiFiGPSHybrid   DetectionMethod = "wifi_gps_hybrid"
	DetectionManualSelection DetectionMethod = "manual_selection"
	DetectionAdminOverride   DetectionMethod = "admin_override"
)

// Weight is the a-priori confidence of the method, used when nothing better is known
func (m DetectionMethod) Weight() float64 {
	switch m {
	case DetectionGPSOnly:
		return 0.75
	case DetectionWiFiGPSHybrid:
		return 0.90
	case DetectionWiFiCache:
		return 0.95
	case DetectionManualSelection, DetectionAdminOverride:
		return 1.0
	default:
		return 0
	}
}

// Valid reports whether m is a known detection method
func (m DetectionMethod) Valid() bool {
	return m.Weight() > 0
}

// LocationContext is the result of one detection attempt
type LocationContext struct {
	Latitude          float64          `json:"latitude"`
	Longitude         float64          `json:"longitude"`
	Accuracy          float64          `json:"accuracy"`
	Timestamp         time.Time        `json:"timestamp"`
	WiFiFingerprint   *string          `json:"wifi_fingerprint,omitempty"`
	NearbyBusinesses  []NearbyBusiness `json:"nearby_businesses"`
	SuggestedBusiness *NearbyBusiness  `json:"suggested_business,omitempty"`
	DetectionMethod   DetectionMethod  `json:"detection_method"`
	Confidence        float64          `json:"confidence"`
}

// FingerprintEntry maps a hashed Wi-Fi network to the business it was resolved to
type FingerprintEntry struct {
	Fingerprint     string          `json:"fingerprint"`
	Business        NearbyBusiness  `json:"business"`
	Confidence      float64         `json:"confidence"`
	DetectionMethod DetectionMethod `json:"detection_method"`
	HitCount        int             `json:"hit_count"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
}
