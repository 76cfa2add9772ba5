package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

func (s *SQLiteDB) AddObservations(ctx context.Context, locality string, obs []models.WeatherObservation, fetchedAt time.Time) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecasts (locality, observed_at, rainfall_mm, rain_probability, temperature_c, humidity_pct, pressure_hpa, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (locality, observed_at) DO UPDATE SET
			rainfall_mm = excluded.rainfall_mm,
			rain_probability = excluded.rain_probability,
			temperature_c = excluded.temperature_c,
			humidity_pct = excluded.humidity_pct,
			pressure_hpa = excluded.pressure_hpa,
			fetched_at = excluded.fetched_at`)
	if err != nil {
		return 0, fmt.Errorf("error preparing upsert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for _, o := range obs {
		_, err := stmt.ExecContext(ctx,
			locality, o.Timestamp.Unix(), nullableFloat(o.RainfallMM),
			o.RainProbability, o.TemperatureC, o.HumidityPct, o.PressureHPa,
			fetchedAt.Unix(),
		)
		if err != nil {
			return 0, fmt.Errorf("error upserting observation: %w", err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing observations: %w", err)
	}
	return n, nil
}

func (s *SQLiteDB) RecentObservations(ctx context.Context, locality string, count int) ([]models.WeatherObservation, error) {
	if count <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT locality, observed_at, rainfall_mm, rain_probability, temperature_c, humidity_pct, pressure_hpa
		FROM forecasts
		WHERE lower(locality) = lower(?)
		  AND fetched_at = (SELECT MAX(fetched_at) FROM forecasts WHERE lower(locality) = lower(?))
		ORDER BY observed_at ASC
		LIMIT ?`, locality, locality, count)
	if err != nil {
		return nil, fmt.Errorf("error querying forecasts: %w", err)
	}
	defer rows.Close()

	var out []models.WeatherObservation
	for rows.Next() {
		var (
			o          models.WeatherObservation
			observedAt int64
			rainfall   sql.NullFloat64
		)
		if err := rows.Scan(&o.Locality, &observedAt, &rainfall, &o.RainProbability, &o.TemperatureC, &o.HumidityPct, &o.PressureHPa); err != nil {
			return nil, fmt.Errorf("error scanning observation: %w", err)
		}
		o.Timestamp = time.Unix(observedAt, 0).UTC()
		o.RainfallMM = floatPtr(rainfall)
		o.Provenance = models.ProvenanceArchived
		out = append(out, o)
	}
	return out, rows.Err()
}
