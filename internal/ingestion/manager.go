package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mr1hm/go-flood-risk/internal/models"
	"github.com/mr1hm/go-flood-risk/internal/observability"
	"github.com/mr1hm/go-flood-risk/internal/worker"
)

// LocalitySource lists the localities to keep archived.
type LocalitySource interface {
	ListLocalities(ctx context.Context) ([]string, error)
}

type CoordinateResolver interface {
	Resolve(ctx context.Context, locality string) (models.Coordinates, bool, error)
}

type ForecastFetcher interface {
	Fetch(ctx context.Context, lat, lon float64) ([]models.WeatherObservation, error)
}

type ObservationArchive interface {
	AddObservations(ctx context.Context, locality string, obs []models.WeatherObservation, fetchedAt time.Time) (int64, error)
}

type Options struct {
	Interval   time.Duration
	Workers    int
	BufferSize int
}

var errUnresolved = errors.New("locality could not be resolved")

// Manager periodically copies the live forecast of every locality into the
// archive so the fallback source stays fresh.
type Manager struct {
	opts     Options
	places   LocalitySource
	resolver CoordinateResolver
	fetcher  ForecastFetcher
	archive  ObservationArchive
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger

	pool *worker.WorkerPool[string]
	wg   sync.WaitGroup
}

func NewManager(opts Options, places LocalitySource, resolver CoordinateResolver, fetcher ForecastFetcher, archive ObservationArchive, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		opts:     opts,
		places:   places,
		resolver: resolver,
		fetcher:  fetcher,
		archive:  archive,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.pool = worker.NewWorkerPool[string]("archive-refresh", m.opts.Workers, m.opts.BufferSize, m.refresh, m.logger)
	m.pool.Start(ctx)

	m.wg.Add(1)
	go m.runPoller(ctx)
}

func (m *Manager) runPoller(ctx context.Context) {
	defer m.wg.Done()
	m.logger.Info("starting archive refresher", "interval", m.opts.Interval, "workers", m.opts.Workers)

	ticker := m.clock.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("archive refresher shutting down")
			return
		case <-ticker.Chan():
			m.poll(ctx)
		}
	}
}

func (m *Manager) poll(ctx context.Context) {
	localities, err := m.places.ListLocalities(ctx)
	if err != nil {
		m.logger.Error("listing localities failed", "error", err)
		return
	}

	for _, l := range localities {
		if !m.pool.Submit(ctx, l) {
			return
		}
	}

	m.logger.Debug("archive refresh queued", "count", len(localities))
}

// refresh archives the current live forecast for one locality.
func (m *Manager) refresh(ctx context.Context, locality string) error {
	coords, found, err := m.resolver.Resolve(ctx, locality)
	if err != nil {
		m.record("error")
		m.logger.Warn("archive refresh: resolve failed", "locality", locality, "error", err)
		return err
	}
	if !found {
		m.record("skipped")
		m.logger.Debug("archive refresh: no coordinates", "locality", locality)
		return errUnresolved
	}

	obs, err := m.fetcher.Fetch(ctx, coords.Latitude, coords.Longitude)
	if err != nil {
		m.record("error")
		m.logger.Warn("archive refresh: fetch failed", "locality", locality, "error", err)
		return err
	}

	n, err := m.archive.AddObservations(ctx, locality, obs, m.clock.Now())
	if err != nil {
		m.record("error")
		m.logger.Error("archive refresh: store failed", "locality", locality, "error", err)
		return err
	}

	m.record("stored")
	m.logger.Info("archived forecast", "locality", locality, "observations", n)
	return nil
}

func (m *Manager) record(outcome string) {
	if m.metrics != nil {
		m.metrics.ArchiveRefreshes.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.Stop()
	m.logger.Info("archive refresher stopped")
}
