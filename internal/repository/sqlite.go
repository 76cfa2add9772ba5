package repository

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// Each connection to ":memory:" is its own database; sqlite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS hazard_zones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			geo_key TEXT,
			locality TEXT NOT NULL,
			category TEXT NOT NULL,
			point TEXT,
			polygon TEXT,
			area_m2 REAL,
			perimeter_m REAL,
			description TEXT,
			source TEXT NOT NULL,
			locality_key TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS forecasts (
			locality TEXT NOT NULL,
			observed_at INTEGER NOT NULL,
			rainfall_mm REAL,
			rain_probability REAL NOT NULL,
			temperature_c REAL NOT NULL,
			humidity_pct REAL NOT NULL,
			pressure_hpa REAL NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (locality, observed_at)
		);

		CREATE INDEX IF NOT EXISTS idx_forecasts_fetched_at ON forecasts(locality, fetched_at);
  	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var hasKey int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('hazard_zones') WHERE name = 'locality_key'`).Scan(&hasKey); err != nil {
		return err
	}
	if hasKey == 0 {
		if _, err := s.db.Exec(`ALTER TABLE hazard_zones ADD COLUMN locality_key TEXT NOT NULL DEFAULT ''`); err != nil {
			return err
		}
	}
	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_hazard_zones_locality_key ON hazard_zones(locality_key)`); err != nil {
		return err
	}
	return s.backfillLocalityKeys()
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
