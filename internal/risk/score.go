// Package risk turns a hazard baseline and a rainfall window into a flood-risk
// category. Everything here is pure.
package risk

import (
	"fmt"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

var ErrUnsupportedHorizon = models.ErrUnsupportedHorizon

// 24h thresholds in mm. Longer horizons scale linearly.
const (
	moderateThreshold24h = 5.0
	highThreshold24h     = 15.0
)

var floodProbability = map[models.RiskCategory]float64{
	models.RiskCategoryLow:      0.20,
	models.RiskCategoryModerate: 0.45,
	models.RiskCategoryHigh:     0.65,
	models.RiskCategoryVeryHigh: 0.85,
}

const defaultFloodProbability = 0.30

func BaseScore(c models.HazardCategory) int {
	switch c {
	case models.HazardCategoryLow:
		return 1
	case models.HazardCategoryMedium:
		return 2
	case models.HazardCategoryHigh:
		return 3
	case models.HazardCategoryVeryHigh:
		return 4
	default:
		return 0
	}
}

func Thresholds(h models.Horizon) (moderate, high float64, err error) {
	switch h {
	case models.Horizon24h:
		return moderateThreshold24h, highThreshold24h, nil
	case models.Horizon48h:
		return 2 * moderateThreshold24h, 2 * highThreshold24h, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnsupportedHorizon, h)
	}
}

func RainScore(totalRain float64, h models.Horizon) (int, error) {
	moderate, high, err := Thresholds(h)
	if err != nil {
		return 0, err
	}
	switch {
	case totalRain >= high:
		return 2, nil
	case totalRain >= moderate:
		return 1, nil
	default:
		return 0, nil
	}
}

// Category maps a combined score in [0, 6] to a risk category.
func Category(finalScore int) models.RiskCategory {
	switch {
	case finalScore <= 2:
		return models.RiskCategoryLow
	case finalScore <= 4:
		return models.RiskCategoryModerate
	case finalScore <= 5:
		return models.RiskCategoryHigh
	default:
		return models.RiskCategoryVeryHigh
	}
}

func Score(base models.HazardCategory, w models.ForecastWindow, h models.Horizon) (models.RiskCategory, error) {
	rainScore, err := RainScore(w.TotalRainfall(), h)
	if err != nil {
		return "", err
	}
	return Category(BaseScore(base) + rainScore), nil
}

// Assess scores w against its own horizon's thresholds. A window holding fewer
// observations than its horizon has slots is scored on what it has.
func Assess(base models.HazardCategory, w models.ForecastWindow) (models.RiskAssessment, error) {
	category, err := Score(base, w, w.Horizon)
	if err != nil {
		return models.RiskAssessment{}, err
	}
	return models.RiskAssessment{
		Horizon:          w.Horizon,
		Category:         category,
		TotalRainfallMM:  w.TotalRainfall(),
		ObservationCount: len(w.Observations),
		Source:           w.Source,
		FloodProbability: FloodProbability(category),
	}, nil
}

func FloodProbability(c models.RiskCategory) float64 {
	if p, ok := floodProbability[c]; ok {
		return p
	}
	return defaultFloodProbability
}
