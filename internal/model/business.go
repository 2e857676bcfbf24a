package model

// Category buckets a business for directory browsing.
type Category string

const (
	CategoryRestaurants   Category = "restaurants"
	CategoryRetail        Category = "retail"
	CategoryServices      Category = "services"
	CategoryHealthcare    Category = "healthcare"
	CategoryEntertainment Category = "entertainment"
	CategoryFitness       Category = "fitness"
	CategoryBeauty        Category = "beauty"
	CategoryAutomotive    Category = "automotive"
	CategoryProfessional  Category = "professional"
)

// GeoPoint is the GeoJSON-style point attached to a raw licence record.
// Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// RawLicence is one business licence record as returned by the City of
// Calgary open-data feed. All fields are untrusted and may be absent.
type RawLicence struct {
	BusinessID   string    `json:"businessid"`
	TradeName    string    `json:"tradename"`
	Address      string    `json:"address"`
	Community    *string   `json:"comdistnm"`
	LicenceTypes string    `json:"licencetypes"`
	FirstIssued  string    `json:"first_iss_dt"`
	Point        *GeoPoint `json:"point"`
}

// Business is the canonical directory record derived from a raw licence.
type Business struct {
	ExternalID     string   `json:"external_id"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Community      *string  `json:"community,omitempty"`
	LicenceType    string   `json:"licence_type"`
	FirstIssued    string   `json:"first_issued"` // YYYY-MM-DD
	Slug           string   `json:"slug"`
	Category       Category `json:"category"`
	ConsumerFacing bool     `json:"consumer_facing"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Active         bool     `json:"active"`
}
