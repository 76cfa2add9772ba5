package forecast

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

type ObservationStore interface {
	RecentObservations(ctx context.Context, locality string, count int) ([]models.WeatherObservation, error)
}

// ArchiveSource adapts the forecast store to SecondarySource. Store errors are
// logged and reported as an empty archive.
type ArchiveSource struct {
	store  ObservationStore
	logger *slog.Logger
}

func NewArchiveSource(store ObservationStore, logger *slog.Logger) *ArchiveSource {
	return &ArchiveSource{store: store, logger: logger}
}

func (s *ArchiveSource) FetchRecent(ctx context.Context, locality string, count int) []models.WeatherObservation {
	obs, err := s.store.RecentObservations(ctx, locality, count)
	if err != nil {
		s.logger.Error("archived forecast lookup failed", "locality", locality, "error", err)
		return nil
	}
	if len(obs) > count {
		obs = obs[:count]
	}
	return obs
}
