package models

import (
	"encoding/json"
	"strings"
)

type HazardCategory string

const (
	HazardCategoryUnknown  HazardCategory = "UNKNOWN"
	HazardCategoryLow      HazardCategory = "LOW"
	HazardCategoryMedium   HazardCategory = "MEDIUM"
	HazardCategoryHigh     HazardCategory = "HIGH"
	HazardCategoryVeryHigh HazardCategory = "VERY_HIGH"
)

// ParseHazardCategory accepts the atlas's Spanish labels as well as the
// English names. Anything unrecognised is UNKNOWN.
func ParseHazardCategory(s string) HazardCategory {
	normalized := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	switch normalized {
	case "bajo", "baja", "low":
		return HazardCategoryLow
	case "medio", "media", "medium":
		return HazardCategoryMedium
	case "alto", "alta", "high":
		return HazardCategoryHigh
	case "muy alto", "muy alta", "very high", "very_high", "veryhigh":
		return HazardCategoryVeryHigh
	default:
		return HazardCategoryUnknown
	}
}

type HazardZoneRecord struct {
	ID          int64           `json:"id"`
	GeoKey      string          `json:"geo_key"`  // cvegeo
	Locality    string          `json:"locality"` // alcaldía
	Category    HazardCategory  `json:"category"`
	Point       string          `json:"point,omitempty"`
	Polygon     json.RawMessage `json:"polygon,omitempty"` // opaque to scoring
	AreaM2      *float64        `json:"area_m2,omitempty"`
	PerimeterM  *float64        `json:"perimeter_m,omitempty"`
	Description string          `json:"description,omitempty"`
	Source      string          `json:"source"`
}

// HazardSummary is the part of a hazard record returned to callers.
type HazardSummary struct {
	Locality    string         `json:"locality"`
	Category    HazardCategory `json:"category"`
	AreaM2      *float64       `json:"area_m2,omitempty"`
	Description string         `json:"description,omitempty"`
	Source      string         `json:"source"`
}

func (h *HazardZoneRecord) Summary() HazardSummary {
	return HazardSummary{
		Locality:    h.Locality,
		Category:    h.Category,
		AreaM2:      h.AreaM2,
		Description: h.Description,
		Source:      h.Source,
	}
}

type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}
