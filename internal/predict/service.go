// Package predict assembles flood-risk predictions from hazard records,
// acquired forecasts, scores and explanations.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-risk/internal/apperrors"
	"github.com/mr1hm/go-flood-risk/internal/explain"
	"github.com/mr1hm/go-flood-risk/internal/forecast"
	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
	"github.com/mr1hm/go-flood-risk/internal/risk"
)

type HazardStore interface {
	FindHazards(ctx context.Context, locality string, exact bool) ([]models.HazardZoneRecord, error)
	ListLocalities(ctx context.Context) ([]string, error)
}

type Acquirer interface {
	Acquire(ctx context.Context, locality string, horizons ...models.Horizon) (forecast.Result, error)
}

type Explainer interface {
	Explain(ctx context.Context, req explain.Request) (models.ContextualExplanation, models.AnalysisMode)
}

// Sink receives every successful prediction. Sink errors never fail a prediction.
type Sink interface {
	Publish(ctx context.Context, p *models.PredictionResult) error
}

type Options struct {
	HazardTimeout    time.Duration
	BatchConcurrency int
	BatchPause       time.Duration
}

type Service struct {
	hazards   HazardStore
	acquirer  Acquirer
	explainer Explainer
	sinks     []Sink
	opts      Options
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewService(hazards HazardStore, acquirer Acquirer, explainer Explainer, opts Options, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger, sinks ...Sink) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = 1
	}
	return &Service{
		hazards:   hazards,
		acquirer:  acquirer,
		explainer: explainer,
		sinks:     sinks,
		opts:      opts,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
	}
}

// Horizons returns the horizons scored for a request: every supported horizon
// up to and including h.
func Horizons(h models.Horizon) ([]models.Horizon, error) {
	switch h {
	case models.Horizon24h:
		return []models.Horizon{models.Horizon24h}, nil
	case models.Horizon48h:
		return []models.Horizon{models.Horizon24h, models.Horizon48h}, nil
	default:
		return nil, apperrors.Wrap(apperrors.CodeUnsupportedHorizon,
			fmt.Sprintf("unsupported horizon %d: must be 24 or 48", h), models.ErrUnsupportedHorizon)
	}
}

func (s *Service) Predict(ctx context.Context, locality string, horizon models.Horizon) (*models.PredictionResult, error) {
	res, err := s.predict(ctx, locality, horizon)
	if err != nil {
		s.metrics.Predictions.WithLabelValues(apperrors.Code(err)).Inc()
		s.logger.Info("prediction failed", "locality", locality, "horizon", int(horizon), "code", apperrors.Code(err), "error", err)
		return nil, err
	}
	s.metrics.Predictions.WithLabelValues("success").Inc()
	s.publish(ctx, res)
	return res, nil
}

func (s *Service) predict(ctx context.Context, locality string, horizon models.Horizon) (*models.PredictionResult, error) {
	horizons, err := Horizons(horizon)
	if err != nil {
		return nil, err
	}
	locality = strings.TrimSpace(locality)
	if locality == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "locality is required", nil)
	}

	hazard, err := s.lookupHazard(ctx, locality)
	if err != nil {
		return nil, err
	}

	fc, err := s.acquire(ctx, hazard.Locality, horizons)
	if err != nil {
		return nil, err
	}

	assessments := make([]models.RiskAssessment, 0, len(fc.Windows))
	for _, w := range fc.Windows {
		a, err := risk.Assess(hazard.Category, w)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeUnsupportedHorizon, "cannot score horizon", err)
		}
		assessments = append(assessments, a)
	}

	explanation, mode := s.explainer.Explain(ctx, explain.NewRequest(hazard.Locality, hazard.Summary(), fc.Windows, assessments))

	return &models.PredictionResult{
		ID:          uuid.NewString(),
		Locality:    hazard.Locality,
		Hazard:      hazard.Summary(),
		Assessments: assessments,
		Explanation: explanation,
		Metadata: models.PredictionMetadata{
			ForecastSource: fc.Source,
			HazardSource:   hazard.Source,
			AnalysisMode:   mode,
			PredictedAt:    s.clock.Now().UTC(),
		},
	}, nil
}

// Context returns the hazard record and both forecast windows without scoring.
func (s *Service) Context(ctx context.Context, locality string) (*models.LocalityContext, error) {
	locality = strings.TrimSpace(locality)
	if locality == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "locality is required", nil)
	}

	hazard, err := s.lookupHazard(ctx, locality)
	if err != nil {
		return nil, err
	}
	fc, err := s.acquire(ctx, hazard.Locality, []models.Horizon{models.Horizon24h, models.Horizon48h})
	if err != nil {
		return nil, err
	}
	return &models.LocalityContext{
		Locality: hazard.Locality,
		Hazard:   hazard,
		Source:   fc.Source,
		Windows:  fc.Windows,
	}, nil
}

func (s *Service) Localities(ctx context.Context) ([]string, error) {
	return s.hazards.ListLocalities(ctx)
}

// lookupHazard tries an exact match, then a substring match. The first record
// of the first non-empty answer wins.
func (s *Service) lookupHazard(ctx context.Context, locality string) (models.HazardZoneRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.HazardTimeout)
	defer cancel()

	for _, exact := range []bool{true, false} {
		records, err := s.hazards.FindHazards(ctx, locality, exact)
		if err != nil {
			return models.HazardZoneRecord{}, apperrors.Wrap(apperrors.CodeHazardLookupFailed,
				fmt.Sprintf("hazard lookup failed for locality %q", locality), err)
		}
		if len(records) > 0 {
			return records[0], nil
		}
	}
	return models.HazardZoneRecord{}, apperrors.Wrap(apperrors.CodeNoHazardData,
		fmt.Sprintf("no hazard data for locality %q", locality), nil)
}

func (s *Service) acquire(ctx context.Context, locality string, horizons []models.Horizon) (forecast.Result, error) {
	fc, err := s.acquirer.Acquire(ctx, locality, horizons...)
	switch {
	case err == nil:
		return fc, nil
	case errors.Is(err, models.ErrUnsupportedHorizon):
		return forecast.Result{}, apperrors.Wrap(apperrors.CodeUnsupportedHorizon, "unsupported horizon", err)
	default:
		return forecast.Result{}, apperrors.Wrap(apperrors.CodeNoForecastData,
			fmt.Sprintf("no forecast data for locality %q", locality), err)
	}
}

func (s *Service) publish(ctx context.Context, p *models.PredictionResult) {
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, p); err != nil {
			s.logger.Warn("publishing prediction failed", "locality", p.Locality, "id", p.ID, "error", err)
		}
	}
}
