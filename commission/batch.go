package commission

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Recalculator is the single-deal entry point; *Calculator satisfies it.
type Recalculator interface {
	Recalculate(ctx context.Context, dealID DealID) (int, error)
}

// BatchResult is the outcome for one deal of a batch.
type BatchResult struct {
	DealID DealID `json:"deal_id"`
	Count  int    `json:"count"`
	Err    error  `json:"-"`
}

// BatchRecalculator fans Recalculate out over many deals with bounded
// concurrency. One deal failing does not stop the others.
type BatchRecalculator struct {
	Calc        Recalculator
	Concurrency int
	Logger      *slog.Logger
}

// RecalculateMany returns one result per input id, in input order. The
// returned error is only ever ctx's.
func (b *BatchRecalculator) RecalculateMany(ctx context.Context, ids []DealID) ([]BatchResult, error) {
	results := make([]BatchResult, len(ids))

	var g errgroup.Group
	if b.Concurrency > 0 {
		g.SetLimit(b.Concurrency)
	}

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i].DealID = id
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			count, err := b.Calc.Recalculate(ctx, id)
			results[i].Count = count
			results[i].Err = err
			if err != nil {
				b.logger().Error("recalculation failed",
					slog.String("deal_id", string(id)),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// Failed counts results carrying an error.
func Failed(results []BatchResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

func (b *BatchRecalculator) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}
