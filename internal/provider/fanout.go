package provider

import (
	"context"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// FanOut geocodes every query concurrently and returns one BatchResult per
// query in input order. A failing query fills only its own slot. A positive
// limit caps the number of in-flight calls.
func FanOut(ctx context.Context, g domain.Geocoder, qs []domain.GeocodeQuery, limit int) []domain.BatchResult {
	out := make([]domain.BatchResult, len(qs))

	var eg errgroup.Group
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for i, q := range qs {
		eg.Go(func() error {
			rs, err := g.Geocode(ctx, q)
			if err != nil {
				out[i] = domain.BatchResult{Error: err}
				return nil
			}
			out[i] = domain.BatchResult{Value: rs}
			return nil
		})
	}
	_ = eg.Wait()

	return out
}
