package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

// PostgresDB is the shared-deployment alternative to SQLiteDB.
type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("error opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	p := &PostgresDB{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}
	return p, nil
}

func (p *PostgresDB) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS hazard_zones (
			id BIGSERIAL PRIMARY KEY,
			geo_key TEXT,
			locality TEXT NOT NULL,
			category TEXT NOT NULL,
			point TEXT,
			polygon TEXT,
			area_m2 DOUBLE PRECISION,
			perimeter_m DOUBLE PRECISION,
			description TEXT,
			source TEXT NOT NULL
		);

		ALTER TABLE hazard_zones ADD COLUMN IF NOT EXISTS locality_key TEXT NOT NULL DEFAULT '';

		CREATE TABLE IF NOT EXISTS forecasts (
			locality TEXT NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			rainfall_mm DOUBLE PRECISION,
			rain_probability DOUBLE PRECISION NOT NULL,
			temperature_c DOUBLE PRECISION NOT NULL,
			humidity_pct DOUBLE PRECISION NOT NULL,
			pressure_hpa DOUBLE PRECISION NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (locality, observed_at)
		);

		CREATE INDEX IF NOT EXISTS idx_hazard_zones_locality_key ON hazard_zones(locality_key);
		CREATE INDEX IF NOT EXISTS idx_forecasts_fetched_at ON forecasts(locality, fetched_at);
	`
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return err
	}
	return p.backfillLocalityKeys(ctx)
}

// backfillLocalityKeys fills locality_key for rows written before the column existed.
func (p *PostgresDB) backfillLocalityKeys(ctx context.Context) error {
	rows, err := p.pool.Query(ctx, `SELECT id, locality FROM hazard_zones WHERE locality_key = ''`)
	if err != nil {
		return fmt.Errorf("error reading unkeyed hazard zones: %w", err)
	}
	unkeyed, err := pgx.CollectRows(rows, pgx.RowToStructByPos[unkeyedHazard])
	if err != nil {
		return fmt.Errorf("error scanning unkeyed hazard zones: %w", err)
	}
	if len(unkeyed) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range unkeyed {
		batch.Queue(`UPDATE hazard_zones SET locality_key = $1 WHERE id = $2`, localityKey(u.Locality), u.ID)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("error backfilling locality keys: %w", err)
	}
	return nil
}

type unkeyedHazard struct {
	ID       int64
	Locality string
}

const insertHazardPG = `
	INSERT INTO hazard_zones (geo_key, locality, category, point, polygon, area_m2, perimeter_m, description, source, locality_key)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

func (p *PostgresDB) AddHazard(ctx context.Context, h *models.HazardZoneRecord) error {
	if err := p.pool.QueryRow(ctx, insertHazardPG, hazardArgs(h)...).Scan(&h.ID); err != nil {
		return fmt.Errorf("error inserting hazard zone: %w", err)
	}
	return nil
}

func (p *PostgresDB) ReplaceHazards(ctx context.Context, records []models.HazardZoneRecord) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM hazard_zones`); err != nil {
			return fmt.Errorf("error clearing hazard zones: %w", err)
		}
		for i := range records {
			if _, err := tx.Exec(ctx, insertHazardPG, hazardArgs(&records[i])...); err != nil {
				return fmt.Errorf("error inserting hazard zone %q: %w", records[i].GeoKey, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *PostgresDB) FindHazards(ctx context.Context, locality string, exact bool) ([]models.HazardZoneRecord, error) {
	rows, err := p.pool.Query(ctx, findHazardsQuery(exact, "$1"), hazardLookupArg(locality, exact))
	if err != nil {
		return nil, fmt.Errorf("error querying hazard zones: %w", err)
	}
	defer rows.Close()

	var out []models.HazardZoneRecord
	for rows.Next() {
		h, err := scanHazard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *PostgresDB) ListLocalities(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT DISTINCT locality FROM hazard_zones ORDER BY locality`)
	if err != nil {
		return nil, fmt.Errorf("error listing localities: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *PostgresDB) AddObservations(ctx context.Context, locality string, obs []models.WeatherObservation, fetchedAt time.Time) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, o := range obs {
		batch.Queue(`
			INSERT INTO forecasts (locality, observed_at, rainfall_mm, rain_probability, temperature_c, humidity_pct, pressure_hpa, fetched_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (locality, observed_at) DO UPDATE SET
				rainfall_mm = EXCLUDED.rainfall_mm,
				rain_probability = EXCLUDED.rain_probability,
				temperature_c = EXCLUDED.temperature_c,
				humidity_pct = EXCLUDED.humidity_pct,
				pressure_hpa = EXCLUDED.pressure_hpa,
				fetched_at = EXCLUDED.fetched_at`,
			locality, o.Timestamp.UTC(), o.RainfallMM, o.RainProbability,
			o.TemperatureC, o.HumidityPct, o.PressureHPa, fetchedAt.UTC().Truncate(time.Second),
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	var n int64
	for range obs {
		if _, err := results.Exec(); err != nil {
			return n, fmt.Errorf("error upserting observation: %w", err)
		}
		n++
	}
	return n, nil
}

func (p *PostgresDB) RecentObservations(ctx context.Context, locality string, count int) ([]models.WeatherObservation, error) {
	if count <= 0 {
		return nil, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT locality, observed_at, rainfall_mm, rain_probability, temperature_c, humidity_pct, pressure_hpa
		FROM forecasts
		WHERE lower(locality) = lower($1)
		  AND fetched_at = (SELECT MAX(fetched_at) FROM forecasts WHERE lower(locality) = lower($1))
		ORDER BY observed_at ASC
		LIMIT $2`, locality, count)
	if err != nil {
		return nil, fmt.Errorf("error querying forecasts: %w", err)
	}
	defer rows.Close()

	var out []models.WeatherObservation
	for rows.Next() {
		var o models.WeatherObservation
		if err := rows.Scan(&o.Locality, &o.Timestamp, &o.RainfallMM, &o.RainProbability, &o.TemperatureC, &o.HumidityPct, &o.PressureHPa); err != nil {
			return nil, fmt.Errorf("error scanning observation: %w", err)
		}
		o.Timestamp = o.Timestamp.UTC()
		o.Provenance = models.ProvenanceArchived
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}
