package atlas

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

type HazardReplacer interface {
	ReplaceHazards(ctx context.Context, records []models.HazardZoneRecord) (int64, error)
}

type Importer struct {
	store  HazardReplacer
	logger *slog.Logger
}

func NewImporter(store HazardReplacer, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger}
}

// ImportFile parses path and swaps the hazard table for its contents.
// An atlas with no usable rows is rejected so a bad export cannot wipe the table.
func (i *Importer) ImportFile(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open atlas: %w", err)
	}
	defer f.Close()

	res, err := Parse(f)
	if err != nil {
		return 0, err
	}
	if len(res.Records) == 0 {
		return 0, fmt.Errorf("atlas %s has no usable rows", path)
	}

	n, err := i.store.ReplaceHazards(ctx, res.Records)
	if err != nil {
		return 0, fmt.Errorf("replace hazards: %w", err)
	}

	i.logger.Info("atlas imported", "path", path, "records", n, "skipped", res.Skipped)
	return n, nil
}
