package models

import "time"

type RiskCategory string

const (
	RiskCategoryLow      RiskCategory = "LOW"
	RiskCategoryModerate RiskCategory = "MODERATE"
	RiskCategoryHigh     RiskCategory = "HIGH"
	RiskCategoryVeryHigh RiskCategory = "VERY_HIGH"
)

type AnalysisMode string

const (
	AnalysisModeLLM     AnalysisMode = "llm"
	AnalysisModeDefault AnalysisMode = "default"
)

type RiskAssessment struct {
	Horizon          Horizon      `json:"horizon"`
	Category         RiskCategory `json:"category"`
	TotalRainfallMM  float64      `json:"total_rainfall_mm"`
	ObservationCount int          `json:"observation_count"`
	Source           Provenance   `json:"source"`
	FloodProbability float64      `json:"flood_probability"`
}

type ContextualExplanation struct {
	RiskFactors     []string `json:"risk_factors"`
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

type PredictionMetadata struct {
	ForecastSource Provenance   `json:"forecast_source"`
	HazardSource   string       `json:"hazard_source"`
	AnalysisMode   AnalysisMode `json:"analysis_mode"`
	PredictedAt    time.Time    `json:"predicted_at"`
}

type PredictionResult struct {
	ID          string                `json:"id"`
	Locality    string                `json:"locality"`
	Hazard      HazardSummary         `json:"hazard"`
	Assessments []RiskAssessment      `json:"assessments"`
	Explanation ContextualExplanation `json:"explanation"`
	Metadata    PredictionMetadata    `json:"metadata"`
}

// Assessment returns the assessment for h, if one was requested.
func (p *PredictionResult) Assessment(h Horizon) (RiskAssessment, bool) {
	for _, a := range p.Assessments {
		if a.Horizon == h {
			return a, true
		}
	}
	return RiskAssessment{}, false
}

type ErrorResult struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchItem carries exactly one of Result or Error.
type BatchItem struct {
	Locality string            `json:"locality"`
	Result   *PredictionResult `json:"result,omitempty"`
	Error    *ErrorResult      `json:"error,omitempty"`
}

// LocalityContext is the raw data a prediction would be built from.
type LocalityContext struct {
	Locality string           `json:"locality"`
	Hazard   HazardZoneRecord `json:"hazard"`
	Source   Provenance       `json:"forecast_source"`
	Windows  []ForecastWindow `json:"windows"`
}
