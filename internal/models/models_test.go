package models

import (
	"errors"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestParseHazardCategory(t *testing.T) {
	tests := []struct {
		in   string
		want HazardCategory
	}{
		{"Bajo", HazardCategoryLow},
		{"medio", HazardCategoryMedium},
		{"ALTO", HazardCategoryHigh},
		{"Muy  Alto", HazardCategoryVeryHigh},
		{"very_high", HazardCategoryVeryHigh},
		{"", HazardCategoryUnknown},
		{"extremo", HazardCategoryUnknown},
	}

	for _, tt := range tests {
		if got := ParseHazardCategory(tt.in); got != tt.want {
			t.Errorf("ParseHazardCategory(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseHorizon(t *testing.T) {
	for _, in := range []string{"24", "24h", " 48 "} {
		if _, err := ParseHorizon(in); err != nil {
			t.Errorf("ParseHorizon(%q) unexpected error: %v", in, err)
		}
	}

	for _, in := range []string{"12", "72", "abc", ""} {
		_, err := ParseHorizon(in)
		if !errors.Is(err, ErrUnsupportedHorizon) {
			t.Errorf("ParseHorizon(%q) expected ErrUnsupportedHorizon, got %v", in, err)
		}
	}
}

func TestHorizon_Slots(t *testing.T) {
	if Horizon24h.Slots() != 8 {
		t.Errorf("expected 8 slots for 24h, got %d", Horizon24h.Slots())
	}
	if Horizon48h.Slots() != 16 {
		t.Errorf("expected 16 slots for 48h, got %d", Horizon48h.Slots())
	}
}

func TestForecastWindow_TotalRainfallTreatsMissingAsZero(t *testing.T) {
	w := ForecastWindow{
		Observations: []WeatherObservation{
			{RainfallMM: ptr(2.0)},
			{RainfallMM: nil},
			{RainfallMM: ptr(3.5)},
		},
	}

	if got := w.TotalRainfall(); got != 5.5 {
		t.Errorf("expected total 5.5, got %v", got)
	}
}
