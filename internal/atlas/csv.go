// Package atlas loads the flood-hazard atlas export into the hazard store.
package atlas

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

const defaultSource = "atlas"

// Column names in the atlas export.
const (
	colGeoKey      = "cvegeo"
	colLocality    = "alcaldi"
	colIntensity   = "intnsdd"
	colPoint       = "g_pnt_2"
	colPolygon     = "geo_shp"
	colArea        = "area_m2"
	colPerimeter   = "perim_m"
	colDescription = "descrpc"
	colSource      = "fuente"
)

var requiredColumns = []string{colLocality, colIntensity}

var ErrMissingColumn = errors.New("atlas: missing required column")

type ParseResult struct {
	Records []models.HazardZoneRecord
	Skipped int
}

// Parse reads an atlas CSV. Columns are located by header name, so extra or
// reordered columns are fine. Rows without a locality are skipped.
func Parse(r io.Reader) (ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return ParseResult{}, fmt.Errorf("read atlas header: %w", err)
	}
	idx := indexHeader(header)
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return ParseResult{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var res ParseResult
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return ParseResult{}, fmt.Errorf("read atlas line %d: %w", line, err)
		}

		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		locality := get(colLocality)
		if locality == "" {
			res.Skipped++
			continue
		}

		source := get(colSource)
		if source == "" {
			source = defaultSource
		}

		res.Records = append(res.Records, models.HazardZoneRecord{
			GeoKey:      get(colGeoKey),
			Locality:    locality,
			Category:    models.ParseHazardCategory(get(colIntensity)),
			Point:       get(colPoint),
			Polygon:     parsePolygon(get(colPolygon)),
			AreaM2:      parseFloat(get(colArea)),
			PerimeterM:  parseFloat(get(colPerimeter)),
			Description: get(colDescription),
			Source:      source,
		})
	}

	return res, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

// parsePolygon keeps the shape only when it is valid JSON.
func parsePolygon(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
