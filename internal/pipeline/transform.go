package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

// GeocodeTransformer implements Transformer on top of a geocoding service.
// All geocode requests in a batch go through one BatchGeocode call; reverse
// requests are resolved one at a time.
type GeocodeTransformer struct {
	svc    domain.Service
	logger *slog.Logger
}

// NewTransformer creates a GeocodeTransformer backed by svc.
func NewTransformer(svc domain.Service, logger *slog.Logger) *GeocodeTransformer {
	return &GeocodeTransformer{svc: svc, logger: logger}
}

func (t *GeocodeTransformer) TransformBatch(ctx context.Context, batch []domain.RawEvent) ([]Transformed, error) {
	out := make([]Transformed, len(batch))
	reqs := make([]domain.GeocodeRequest, len(batch))

	var (
		geocodeIdx []int
		queries    []domain.GeocodeQuery
	)
	for i, raw := range batch {
		req, err := domain.ParseRequest(raw)
		if err != nil {
			out[i].Err = err
			continue
		}
		reqs[i] = req
		if req.Type == domain.RequestGeocode {
			geocodeIdx = append(geocodeIdx, i)
			queries = append(queries, req.Query)
		}
	}

	if len(queries) > 0 {
		results, err := t.svc.BatchGeocode(ctx, queries)
		if err != nil {
			return nil, fmt.Errorf("batch geocode: %w", err)
		}
		for j, i := range geocodeIdx {
			var resOut *domain.Output
			if results[j].Error == nil {
				resOut = &domain.Output{Results: results[j].Value}
			}
			out[i] = t.respond(reqs[i], resOut, results[j].Error)
		}
	}

	for i, req := range reqs {
		if out[i].Err != nil || req.Type != domain.RequestReverse {
			continue
		}
		resOut, err := t.svc.Reverse(ctx, req.Reverse)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		out[i] = t.respond(req, resOut, err)
	}
	return out, nil
}

func (t *GeocodeTransformer) respond(req domain.GeocodeRequest, out *domain.Output, err error) Transformed {
	if err != nil {
		t.logger.Debug("request failed", "id", req.ID, "type", req.Type, "error", err)
	}
	event, serr := domain.SerializeResponse(domain.NewGeocodeResponse(req, t.svc.Name(), out, err))
	return Transformed{Event: event, Err: serr}
}
