// Package geocoder wires one provider adapter and an optional formatter into
// the public geocoding API, and builds that pairing from a provider name.
package geocoder

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/observability"
	"github.com/couchcryptid/geocoder-service/internal/provider"
)

// Settings tune the orchestrator's post-processing.
type Settings struct {
	// MinConfidence applies to geocode queries that carry no threshold of their own.
	MinConfidence *float64
	// BatchConcurrency bounds the default batch fan-out; 0 means unbounded.
	BatchConcurrency int
	Logger           *slog.Logger
	Metrics          *observability.Metrics
}

// Geocoder owns exactly one adapter and at most one formatter, both fixed at
// construction. It satisfies domain.Service.
type Geocoder struct {
	adapter   domain.Geocoder
	formatter domain.Formatter
	settings  Settings
	logger    *slog.Logger
}

var _ domain.Service = (*Geocoder)(nil)

// NewGeocoder wraps adapter. formatter may be nil.
func NewGeocoder(adapter domain.Geocoder, formatter domain.Formatter, s Settings) *Geocoder {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Geocoder{
		adapter:   adapter,
		formatter: formatter,
		settings:  s,
		logger:    logger.With("provider", adapter.Name()),
	}
}

// Name returns the adapter's registry name.
func (g *Geocoder) Name() string { return g.adapter.Name() }

// Capabilities returns the adapter's forward-geocoding capabilities.
func (g *Geocoder) Capabilities() domain.Capabilities { return g.adapter.Capabilities() }

// Adapter exposes the wrapped provider adapter.
func (g *Geocoder) Adapter() domain.Geocoder { return g.adapter }

// Geocode resolves q, drops results under the confidence threshold, stamps
// the provider name and runs the formatter if one is configured.
func (g *Geocoder) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.Output, error) {
	start := time.Now()
	rs, err := g.adapter.Geocode(ctx, q)
	if err != nil {
		g.observe("geocode", start, nil, err)
		return nil, err
	}

	threshold := q.MinConfidence
	if threshold == nil {
		threshold = g.settings.MinConfidence
	}
	rs = g.postProcess(rs, threshold)

	out, err := g.render(rs)
	g.observe("geocode", start, rs, err)
	return out, err
}

// Reverse resolves coordinates. It fails with a CapabilityError when the
// adapter has no reverse route.
func (g *Geocoder) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.Output, error) {
	start := time.Now()
	if err := q.Validate(); err != nil {
		g.observe("reverse", start, nil, err)
		return nil, err
	}
	r, ok := g.adapter.(domain.Reverser)
	if !ok {
		err := &domain.CapabilityError{Provider: g.adapter.Name(), Operation: "reverse"}
		g.observe("reverse", start, nil, err)
		return nil, err
	}

	rs, err := r.Reverse(ctx, q)
	if err != nil {
		g.observe("reverse", start, nil, err)
		return nil, err
	}
	rs = g.postProcess(rs, nil)

	out, err := g.render(rs)
	g.observe("reverse", start, rs, err)
	return out, err
}

// BatchGeocode returns one entry per query, in query order. Per-query
// failures land in their own slot; the error return is reserved for a
// context that was already done before dispatch.
func (g *Geocoder) BatchGeocode(ctx context.Context, qs []domain.GeocodeQuery) ([]domain.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	if g.settings.Metrics != nil {
		g.settings.Metrics.BatchQueries.Observe(float64(len(qs)))
	}

	var out []domain.BatchResult
	if b, ok := g.adapter.(domain.BatchGeocoder); ok {
		out = b.BatchGeocode(ctx, qs)
	} else {
		out = provider.FanOut(ctx, g.adapter, qs, g.settings.BatchConcurrency)
	}

	failed := 0
	for i := range out {
		if out[i].Error != nil {
			failed++
			continue
		}
		out[i].Value = g.postProcess(out[i].Value, nil)
	}
	if failed > 0 {
		g.logger.Warn("batch geocode partially failed", "queries", len(qs), "failed", failed)
	}
	g.count("batch", start, outcomeFor(failed == len(out) && len(out) > 0, false))
	return out, nil
}

// GeocodeCallback calls Geocode, hands the outcome to cb, and returns it.
func (g *Geocoder) GeocodeCallback(ctx context.Context, q domain.GeocodeQuery, cb func(*domain.Output, error)) (*domain.Output, error) {
	out, err := g.Geocode(ctx, q)
	if cb != nil {
		cb(out, err)
	}
	return out, err
}

// ReverseCallback calls Reverse, hands the outcome to cb, and returns it.
func (g *Geocoder) ReverseCallback(ctx context.Context, q domain.ReverseQuery, cb func(*domain.Output, error)) (*domain.Output, error) {
	out, err := g.Reverse(ctx, q)
	if cb != nil {
		cb(out, err)
	}
	return out, err
}

// BatchGeocodeCallback calls BatchGeocode, hands the outcome to cb, and returns it.
func (g *Geocoder) BatchGeocodeCallback(ctx context.Context, qs []domain.GeocodeQuery, cb func([]domain.BatchResult, error)) ([]domain.BatchResult, error) {
	out, err := g.BatchGeocode(ctx, qs)
	if cb != nil {
		cb(out, err)
	}
	return out, err
}

// Close releases adapter resources such as a local database file.
func (g *Geocoder) Close() error {
	if c, ok := g.adapter.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// postProcess returns a new ResultSet carrying the same Raw and RateLimit,
// filtered by threshold and stamped with the provider name.
func (g *Geocoder) postProcess(rs *domain.ResultSet, threshold *float64) *domain.ResultSet {
	if rs == nil {
		rs = domain.NewResultSet(nil, nil)
	}
	results := make([]domain.Result, 0, len(rs.Results))
	for _, r := range rs.Results {
		if threshold != nil && (r.Extra.Confidence == nil || *r.Extra.Confidence < *threshold) {
			continue
		}
		r.Provider = g.adapter.Name()
		results = append(results, r)
	}
	return &domain.ResultSet{Results: results, Raw: rs.Raw, RateLimit: rs.RateLimit}
}

func (g *Geocoder) render(rs *domain.ResultSet) (*domain.Output, error) {
	out := &domain.Output{Results: rs}
	if g.formatter == nil {
		return out, nil
	}
	formatted, err := g.formatter.Format(rs)
	if err != nil {
		return nil, &domain.FormatterError{Formatter: g.formatter.Name(), Err: err}
	}
	out.Formatted = formatted
	return out, nil
}

func (g *Geocoder) observe(method string, start time.Time, rs *domain.ResultSet, err error) {
	if err != nil {
		g.logger.Warn(method+" failed", "error", err)
	}
	g.count(method, start, outcomeFor(err != nil, rs.Len() == 0))
}

func (g *Geocoder) count(method string, start time.Time, outcome string) {
	m := g.settings.Metrics
	if m == nil {
		return
	}
	name := g.adapter.Name()
	m.GeocodeRequests.WithLabelValues(name, method, outcome).Inc()
	m.GeocodeDuration.WithLabelValues(name, method).Observe(time.Since(start).Seconds())
}

func outcomeFor(failed, empty bool) string {
	switch {
	case failed:
		return "error"
	case empty:
		return "empty"
	default:
		return "success"
	}
}
