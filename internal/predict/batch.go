package predict

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mr1hm/go-flood-risk/internal/apperrors"
	"github.com/mr1hm/go-flood-risk/internal/models"
)

// PredictBatch predicts every locality with bounded concurrency and a fixed
// pause between dispatches. Results are in input order and each item fails
// independently.
func (s *Service) PredictBatch(ctx context.Context, localities []string, horizon models.Horizon) []models.BatchItem {
	items := make([]models.BatchItem, len(localities))
	s.metrics.BatchSize.Observe(float64(len(localities)))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.BatchConcurrency)

dispatch:
	for i, locality := range localities {
		if i > 0 && s.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				for j := i; j < len(localities); j++ {
					items[j] = errorItem(localities[j], apperrors.Wrap(apperrors.CodeInternal, "batch cancelled", ctx.Err()))
				}
				break dispatch
			case <-s.clock.After(s.opts.BatchPause):
			}
		}

		g.Go(func() error {
			res, err := s.Predict(ctx, locality, horizon)
			if err != nil {
				items[i] = errorItem(locality, err)
				return nil
			}
			items[i] = models.BatchItem{Locality: locality, Result: res}
			return nil
		})
	}

	_ = g.Wait()
	return items
}

func errorItem(locality string, err error) models.BatchItem {
	return models.BatchItem{
		Locality: locality,
		Error:    ToErrorResult(err),
	}
}

func ToErrorResult(err error) *models.ErrorResult {
	return &models.ErrorResult{
		Error:   true,
		Code:    apperrors.Code(err),
		Message: apperrors.Message(err),
	}
}

// Succeeded counts the items that carry a result.
func Succeeded(items []models.BatchItem) int {
	n := 0
	for _, it := range items {
		if it.Result != nil {
			n++
		}
	}
	return n
}
