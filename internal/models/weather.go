package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Provenance string

const (
	ProvenanceLive     Provenance = "live"
	ProvenanceArchived Provenance = "archived"
)

// Horizon is a forecast look-ahead in hours.
type Horizon int

const (
	Horizon24h Horizon = 24
	Horizon48h Horizon = 48
)

// SlotHours is the resolution of one forecast observation.
const SlotHours = 3

var ErrUnsupportedHorizon = fmt.Errorf("unsupported horizon: must be %d or %d", Horizon24h, Horizon48h)

func (h Horizon) Valid() bool {
	return h == Horizon24h || h == Horizon48h
}

// Slots is the number of three-hour observations covering the horizon.
func (h Horizon) Slots() int {
	return int(h) / SlotHours
}

func ParseHorizon(s string) (Horizon, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "h"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedHorizon, s)
	}
	h := Horizon(n)
	if !h.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedHorizon, n)
	}
	return h, nil
}

// WeatherObservation is one three-hour forecast slot. A nil RainfallMM means the
// source reported no rain figure and counts as zero.
type WeatherObservation struct {
	Timestamp       time.Time  `json:"timestamp"`
	Locality        string     `json:"locality"`
	RainfallMM      *float64   `json:"rainfall_mm"`
	RainProbability float64    `json:"rain_probability"`
	TemperatureC    float64    `json:"temperature_c"`
	HumidityPct     float64    `json:"humidity_pct"`
	PressureHPa     float64    `json:"pressure_hpa"`
	Provenance      Provenance `json:"provenance"`
}

func (o WeatherObservation) Rainfall() float64 {
	if o.RainfallMM == nil {
		return 0
	}
	return *o.RainfallMM
}

type ForecastWindow struct {
	Horizon      Horizon              `json:"horizon"`
	Source       Provenance           `json:"source"`
	Observations []WeatherObservation `json:"observations"`
}

func (w ForecastWindow) TotalRainfall() float64 {
	var total float64
	for _, o := range w.Observations {
		total += o.Rainfall()
	}
	return total
}
