package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

type HazardRepository interface {
	AddHazard(ctx context.Context, h *models.HazardZoneRecord) error
	// ReplaceHazards swaps the whole hazard table for records in one transaction.
	ReplaceHazards(ctx context.Context, records []models.HazardZoneRecord) (int64, error)
	// FindHazards matches locality case-insensitively, either exactly or as a
	// substring. Results are ordered by insertion.
	FindHazards(ctx context.Context, locality string, exact bool) ([]models.HazardZoneRecord, error)
	ListLocalities(ctx context.Context) ([]string, error)
}

type ForecastRepository interface {
	// AddObservations upserts obs by (locality, timestamp), stamping each row
	// with fetchedAt so the latest forecast run can be told apart.
	AddObservations(ctx context.Context, locality string, obs []models.WeatherObservation, fetchedAt time.Time) (int64, error)
	// RecentObservations returns up to count observations of the most recent
	// forecast run for locality, oldest first.
	RecentObservations(ctx context.Context, locality string, count int) ([]models.WeatherObservation, error)
}

type Store interface {
	HazardRepository
	ForecastRepository
	Ping(ctx context.Context) error
	Close() error
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLiteDB(path)
	case DriverPostgres:
		return NewPostgresDB(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}
