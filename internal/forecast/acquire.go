// Package forecast acquires horizon-windowed rainfall forecasts, preferring the
// live source and falling back to the archive as a whole.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
)

var ErrAcquisitionFailed = errors.New("no forecast source yielded observations")

type CoordinateResolver interface {
	Resolve(ctx context.Context, locality string) (models.Coordinates, bool, error)
}

type PrimarySource interface {
	Fetch(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error)
}

// SecondarySource never fails; it returns fewer observations, possibly none.
type SecondarySource interface {
	FetchRecent(ctx context.Context, locality string, count int) []models.WeatherObservation
}

type state int

const (
	stateStart state = iota
	stateResolved
	stateFallback
	statePrimarySucceeded
	stateSecondarySucceeded
	stateComplete
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateResolved:
		return "resolved"
	case stateFallback:
		return "fallback"
	case statePrimarySucceeded:
		return "primary_succeeded"
	case stateSecondarySucceeded:
		return "secondary_succeeded"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result holds one window per requested horizon, ascending, all cut from the
// same acquired sequence and tagged with the single source that produced it.
type Result struct {
	Source  models.Provenance
	Windows []models.ForecastWindow
}

func (r Result) Window(h models.Horizon) (models.ForecastWindow, bool) {
	for _, w := range r.Windows {
		if w.Horizon == h {
			return w, true
		}
	}
	return models.ForecastWindow{}, false
}

type Orchestrator struct {
	resolver    CoordinateResolver
	primary     PrimarySource
	secondary   SecondarySource
	callTimeout time.Duration
	metrics     *observability.Metrics
	logger      *slog.Logger
}

func NewOrchestrator(resolver CoordinateResolver, primary PrimarySource, secondary SecondarySource, callTimeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		resolver:    resolver,
		primary:     primary,
		secondary:   secondary,
		callTimeout: callTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// acquisition is the per-request state; nothing in it outlives Acquire.
type acquisition struct {
	locality string
	slots    int
	coords   models.Coordinates
	observed []models.WeatherObservation
	source   models.Provenance
}

// Acquire runs the fallback state machine once. Fallback is all-or-nothing:
// the returned windows come entirely from the live source or entirely from the
// archive.
func (o *Orchestrator) Acquire(ctx context.Context, locality string, horizons ...models.Horizon) (Result, error) {
	horizons, err := normalizeHorizons(horizons)
	if err != nil {
		return Result{}, err
	}

	a := &acquisition{
		locality: locality,
		slots:    horizons[len(horizons)-1].Slots(),
	}

	st := stateStart
	for {
		next := o.step(ctx, st, a)
		o.logger.Debug("acquisition transition", "locality", locality, "from", st, "to", next)
		st = next

		switch st {
		case stateComplete:
			o.metrics.Acquisitions.WithLabelValues(string(a.source)).Inc()
			return a.result(horizons), nil
		case stateFailed:
			o.metrics.Acquisitions.WithLabelValues("failed").Inc()
			return Result{}, fmt.Errorf("%w for %q", ErrAcquisitionFailed, locality)
		}
	}
}

func (o *Orchestrator) step(ctx context.Context, st state, a *acquisition) state {
	switch st {
	case stateStart:
		coords, ok := o.resolve(ctx, a.locality)
		if !ok {
			return stateFallback
		}
		a.coords = coords
		return stateResolved

	case stateResolved:
		observed, ok := o.fetchPrimary(ctx, a)
		if !ok {
			return stateFallback
		}
		a.observed = observed
		return statePrimarySucceeded

	case stateFallback:
		observed := o.fetchSecondary(ctx, a)
		if len(observed) == 0 {
			return stateFailed
		}
		a.observed = observed
		return stateSecondarySucceeded

	case statePrimarySucceeded:
		a.source = models.ProvenanceLive
		return stateComplete

	case stateSecondarySucceeded:
		a.source = models.ProvenanceArchived
		return stateComplete

	default:
		return stateFailed
	}
}

func (o *Orchestrator) resolve(ctx context.Context, locality string) (models.Coordinates, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	coords, found, err := o.resolver.Resolve(ctx, locality)
	if err != nil {
		o.logger.Warn("coordinate resolution failed, falling back to archive", "locality", locality, "error", err)
		return models.Coordinates{}, false
	}
	if !found {
		o.logger.Info("no coordinates for locality, falling back to archive", "locality", locality)
		return models.Coordinates{}, false
	}
	return coords, true
}

func (o *Orchestrator) fetchPrimary(ctx context.Context, a *acquisition) ([]models.WeatherObservation, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	observed, err := o.primary.Fetch(ctx, a.coords.Latitude, a.coords.Longitude)
	if err != nil {
		o.logger.Warn("live forecast failed, falling back to archive", "locality", a.locality, "error", err)
		return nil, false
	}
	if len(observed) == 0 {
		o.logger.Warn("live forecast empty, falling back to archive", "locality", a.locality)
		return nil, false
	}
	return observed, true
}

func (o *Orchestrator) fetchSecondary(ctx context.Context, a *acquisition) []models.WeatherObservation {
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	return o.secondary.FetchRecent(ctx, a.locality, a.slots)
}

func (a *acquisition) result(horizons []models.Horizon) Result {
	n := min(len(a.observed), a.slots)
	seq := make([]models.WeatherObservation, n)
	for i := range n {
		obs := a.observed[i]
		obs.Locality = a.locality
		obs.Provenance = a.source
		seq[i] = obs
	}

	windows := make([]models.ForecastWindow, 0, len(horizons))
	for _, h := range horizons {
		windows = append(windows, models.ForecastWindow{
			Horizon:      h,
			Source:       a.source,
			Observations: seq[:min(len(seq), h.Slots()):min(len(seq), h.Slots())],
		})
	}
	return Result{Source: a.source, Windows: windows}
}

func normalizeHorizons(horizons []models.Horizon) ([]models.Horizon, error) {
	if len(horizons) == 0 {
		return nil, fmt.Errorf("%w: no horizon requested", models.ErrUnsupportedHorizon)
	}
	out := slices.Clone(horizons)
	for _, h := range out {
		if !h.Valid() {
			return nil, fmt.Errorf("%w: %d", models.ErrUnsupportedHorizon, h)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
