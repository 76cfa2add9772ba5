// Package explain produces a short contextual narrative for a prediction. The
// narrative is best effort: when the text-generation backend is missing or
// misbehaves, callers get a fixed default of the same shape.
package explain

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
)

var ErrUnavailable = errors.New("explanation capability unavailable")

type RainfallSummary struct {
	Horizon          models.Horizon      `json:"horizon_hours"`
	TotalMM          float64             `json:"total_rainfall_mm"`
	PeakProbability  float64             `json:"peak_rain_probability_pct"`
	ObservationCount int                 `json:"observation_count"`
	Category         models.RiskCategory `json:"risk_category"`
	Source           models.Provenance   `json:"forecast_source"`
}

type Request struct {
	Locality string               `json:"locality"`
	Hazard   models.HazardSummary `json:"hazard"`
	Rainfall []RainfallSummary    `json:"rainfall"`
}

// Capability is implemented by every explanation backend, including the absent one.
type Capability interface {
	Available() bool
	Explain(ctx context.Context, req Request) (models.ContextualExplanation, error)
}

// Unavailable is the capability used when no backend is configured.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Explain(context.Context, Request) (models.ContextualExplanation, error) {
	return models.ContextualExplanation{}, ErrUnavailable
}

const defaultSummary = "Automated contextual analysis is unavailable; this assessment is based only on the rainfall forecast and the zone's historical flood hazard."

// Default is the explanation returned whenever the capability cannot produce one.
func Default() models.ContextualExplanation {
	return models.ContextualExplanation{
		RiskFactors: []string{"rainfall_intensity", "drainage_capacity", "zone_topography"},
		Summary:     defaultSummary,
		Recommendations: []string{
			"Monitor official weather forecasts and civil protection alerts",
			"Avoid low-lying areas and riverbeds during heavy rain",
		},
	}
}

// Explainer calls a Capability at most once per request and never fails.
type Explainer struct {
	capability Capability
	available  bool
	timeout    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

func NewExplainer(c Capability, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Explainer {
	if c == nil {
		c = Unavailable{}
	}
	return &Explainer{
		capability: c,
		available:  c.Available(),
		timeout:    timeout,
		metrics:    metrics,
		logger:     logger,
	}
}

func (e *Explainer) Available() bool {
	return e.available
}

func (e *Explainer) Explain(ctx context.Context, req Request) (models.ContextualExplanation, models.AnalysisMode) {
	if !e.available {
		e.metrics.Explanations.WithLabelValues(string(models.AnalysisModeDefault)).Inc()
		return Default(), models.AnalysisModeDefault
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.capability.Explain(ctx, req)
	if err != nil {
		e.logger.Warn("explanation failed, using default", "locality", req.Locality, "error", err)
		e.metrics.Explanations.WithLabelValues(string(models.AnalysisModeDefault)).Inc()
		return Default(), models.AnalysisModeDefault
	}

	e.metrics.Explanations.WithLabelValues(string(models.AnalysisModeLLM)).Inc()
	return out, models.AnalysisModeLLM
}

// NewRequest summarises the windows that were scored.
func NewRequest(locality string, hazard models.HazardSummary, windows []models.ForecastWindow, assessments []models.RiskAssessment) Request {
	req := Request{Locality: locality, Hazard: hazard}
	for _, w := range windows {
		s := RainfallSummary{
			Horizon:          w.Horizon,
			TotalMM:          w.TotalRainfall(),
			ObservationCount: len(w.Observations),
			Source:           w.Source,
		}
		for _, o := range w.Observations {
			s.PeakProbability = max(s.PeakProbability, o.RainProbability)
		}
		if i := slices.IndexFunc(assessments, func(a models.RiskAssessment) bool { return a.Horizon == w.Horizon }); i >= 0 {
			s.Category = assessments[i].Category
		}
		req.Rainfall = append(req.Rainfall, s)
	}
	return req
}
