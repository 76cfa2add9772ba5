package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

const hazardColumns = `id, geo_key, locality, category, point, polygon, area_m2, perimeter_m, description, source`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteDB) AddHazard(ctx context.Context, h *models.HazardZoneRecord) error {
	res, err := s.db.ExecContext(ctx, insertHazardSQL, hazardArgs(h)...)
	if err != nil {
		return fmt.Errorf("error inserting hazard zone: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading hazard zone id: %w", err)
	}
	h.ID = id
	return nil
}

const insertHazardSQL = `
	INSERT INTO hazard_zones (geo_key, locality, category, point, polygon, area_m2, perimeter_m, description, source, locality_key)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteDB) ReplaceHazards(ctx context.Context, records []models.HazardZoneRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hazard_zones`); err != nil {
		return 0, fmt.Errorf("error clearing hazard zones: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertHazardSQL)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert: %w", err)
	}
	defer stmt.Close()

	var n int64
	for i := range records {
		if _, err := stmt.ExecContext(ctx, hazardArgs(&records[i])...); err != nil {
			return 0, fmt.Errorf("error inserting hazard zone %q: %w", records[i].GeoKey, err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing hazard zones: %w", err)
	}
	return n, nil
}

func (s *SQLiteDB) FindHazards(ctx context.Context, locality string, exact bool) ([]models.HazardZoneRecord, error) {
	rows, err := s.db.QueryContext(ctx, findHazardsQuery(exact, "?"), hazardLookupArg(locality, exact))
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

func (s *SQLiteDB) ListLocalities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT locality FROM hazard_zones ORDER BY locality`)
	if err != nil {
		return nil, fmt.Errorf("error listing localities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("error scanning locality: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func hazardArgs(h *models.HazardZoneRecord) []any {
	var polygon any
	if len(h.Polygon) > 0 {
		polygon = string(h.Polygon)
	}
	return []any{
		h.GeoKey, h.Locality, string(h.Category), h.Point, polygon,
		nullableFloat(h.AreaM2), nullableFloat(h.PerimeterM), h.Description, h.Source,
		localityKey(h.Locality),
	}
}

// backfillLocalityKeys fills locality_key for rows written before the column existed.
func (s *SQLiteDB) backfillLocalityKeys() error {
	rows, err := s.db.Query(`SELECT id, locality FROM hazard_zones WHERE locality_key = ''`)
	if err != nil {
		return fmt.Errorf("error reading unkeyed hazard zones: %w", err)
	}
	keys := map[int64]string{}
	for rows.Next() {
		var (
			id       int64
			locality string
		)
		if err := rows.Scan(&id, &locality); err != nil {
			rows.Close()
			return fmt.Errorf("error scanning unkeyed hazard zone: %w", err)
		}
		keys[id] = localityKey(locality)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return fmt.Errorf("error reading unkeyed hazard zones: %w", err)
	}

	for id, key := range keys {
		if _, err := s.db.Exec(`UPDATE hazard_zones SET locality_key = ? WHERE id = ?`, key, id); err != nil {
			return fmt.Errorf("error backfilling hazard zone %d: %w", id, err)
		}
	}
	return nil
}

func scanHazard(row rowScanner) (models.HazardZoneRecord, error) {
	var (
		h                   models.HazardZoneRecord
		geoKey, point, desc sql.NullString
		polygon             sql.NullString
		category            string
		area, perimeter     sql.NullFloat64
	)
	if err := row.Scan(&h.ID, &geoKey, &h.Locality, &category, &point, &polygon, &area, &perimeter, &desc, &h.Source); err != nil {
		return h, fmt.Errorf("error scanning hazard zone: %w", err)
	}
	h.GeoKey = geoKey.String
	h.Category = models.HazardCategory(category)
	h.Point = point.String
	if polygon.Valid && polygon.String != "" {
		h.Polygon = json.RawMessage(polygon.String)
	}
	h.AreaM2 = floatPtr(area)
	h.PerimeterM = floatPtr(perimeter)
	h.Description = desc.String
	return h, nil
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
