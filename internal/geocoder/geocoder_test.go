package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/formatter"
	"github.com/couchcryptid/geocoder-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

// mockAdapter is a hand-rolled adapter returning canned results.
type mockAdapter struct {
	name    string
	results []domain.Result
	raw     string
	err     error
	calls   atomic.Int32
}

func (m *mockAdapter) Name() string                      { return m.name }
func (m *mockAdapter) Capabilities() domain.Capabilities { return domain.Capabilities{Address: true} }

func (m *mockAdapter) Geocode(_ context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if q.Address == "fail" {
		return nil, &domain.UpstreamError{Provider: m.name, Status: "500"}
	}
	rs := domain.NewResultSet(append([]domain.Result(nil), m.results...), []byte(m.raw))
	rs.RateLimit = &domain.RateLimit{Limit: 10, Remaining: 9}
	return rs, nil
}

// reversingAdapter adds a reverse route.
type reversingAdapter struct{ mockAdapter }

func (r *reversingAdapter) Reverse(ctx context.Context, _ domain.ReverseQuery) (*domain.ResultSet, error) {
	return r.Geocode(ctx, domain.GeocodeQuery{Address: "reverse"})
}

// batchAdapter adds a native batch route.
type batchAdapter struct {
	mockAdapter
	batches atomic.Int32
}

func (b *batchAdapter) BatchGeocode(_ context.Context, qs []domain.GeocodeQuery) []domain.BatchResult {
	b.batches.Add(1)
	out := make([]domain.BatchResult, len(qs))
	for i, q := range qs {
		out[i] = domain.BatchResult{Value: domain.NewResultSet([]domain.Result{{City: q.Address}}, nil)}
	}
	return out
}

type failingFormatter struct{}

func (failingFormatter) Name() string                          { return "broken" }
func (failingFormatter) Format(*domain.ResultSet) (any, error) { return nil, errors.New("cannot render") }

func scored() []domain.Result {
	return []domain.Result{
		{City: "high", Extra: domain.Extra{Confidence: ptr(0.9)}},
		{City: "low", Extra: domain.Extra{Confidence: ptr(0.2)}},
		{City: "unscored"},
	}
}

func cities(rs *domain.ResultSet) []string {
	out := make([]string, 0, rs.Len())
	for _, r := range rs.Results {
		out = append(out, r.City)
	}
	return out
}

func TestGeocode_StampsProviderAndKeepsRaw(t *testing.T) {
	a := &mockAdapter{name: "fake", results: scored(), raw: `{"upstream":true}`}
	g := NewGeocoder(a, nil, Settings{})

	out, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)
	require.Nil(t, out.Formatted)

	assert.Equal(t, []string{"high", "low", "unscored"}, cities(out.Results))
	for _, r := range out.Results.Results {
		assert.Equal(t, "fake", r.Provider)
	}
	assert.JSONEq(t, `{"upstream":true}`, string(out.Results.Raw))
	assert.Equal(t, 9, out.Results.RateLimit.Remaining)

	body, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "upstream")
	assert.Contains(t, string(body), `"provider":"fake"`)
}

func TestGeocode_MinConfidenceExcludesUnscored(t *testing.T) {
	a := &mockAdapter{name: "fake", results: scored(), raw: `{}`}
	g := NewGeocoder(a, nil, Settings{})

	out, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon", MinConfidence: ptr(0.5)})
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, cities(out.Results))
	assert.JSONEq(t, `{}`, string(out.Results.Raw))
}

func TestGeocode_DefaultThresholdAndQueryOverride(t *testing.T) {
	a := &mockAdapter{name: "fake", results: scored()}
	g := NewGeocoder(a, nil, Settings{MinConfidence: ptr(0.5)})

	out, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, cities(out.Results))

	out, err = g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon", MinConfidence: ptr(0.1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, cities(out.Results))
}

func TestGeocode_DoesNotMutateAdapterResults(t *testing.T) {
	a := &mockAdapter{name: "fake", results: scored()}
	g := NewGeocoder(a, nil, Settings{})

	_, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)
	assert.Empty(t, a.results[0].Provider)
}

func TestGeocode_ErrorPropagates(t *testing.T) {
	want := &domain.TransportError{Message: "deadline", Code: domain.CodeTimeout}
	metrics := observability.NewMetricsForTesting()
	g := NewGeocoder(&mockAdapter{name: "fake", err: want}, nil, Settings{Metrics: metrics})

	out, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	assert.Nil(t, out)
	assert.Same(t, want, err)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("fake", "geocode", "error")), 0)
}

func TestGeocode_Outcomes(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	ctx := context.Background()

	_, err := NewGeocoder(&mockAdapter{name: "fake", results: scored()}, nil, Settings{Metrics: metrics}).
		Geocode(ctx, domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)
	_, err = NewGeocoder(&mockAdapter{name: "fake"}, nil, Settings{Metrics: metrics}).
		Geocode(ctx, domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("fake", "geocode", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.GeocodeRequests.WithLabelValues("fake", "geocode", "empty")), 0)
}

func TestGeocode_Formatter(t *testing.T) {
	f, err := formatter.NewString("%c")
	require.NoError(t, err)
	g := NewGeocoder(&mockAdapter{name: "fake", results: scored()}, f, Settings{})

	out, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low", "unscored"}, out.Formatted)

	body, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `["high","low","unscored"]`, string(body))
}

func TestGeocode_FormatterError(t *testing.T) {
	g := NewGeocoder(&mockAdapter{name: "fake", results: scored()}, failingFormatter{}, Settings{})

	out, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	assert.Nil(t, out)
	var fErr *domain.FormatterError
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, "broken", fErr.Formatter)
}

func TestReverse_Unsupported(t *testing.T) {
	a := &mockAdapter{name: "fake"}
	g := NewGeocoder(a, nil, Settings{})

	_, err := g.Reverse(context.Background(), domain.ReverseQuery{Lat: 45, Lon: 4})
	var capErr *domain.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, "reverse", capErr.Operation)
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	assert.Zero(t, a.calls.Load())
}

func TestReverse_InvalidCoordinates(t *testing.T) {
	a := &reversingAdapter{mockAdapter{name: "fake"}}
	g := NewGeocoder(a, nil, Settings{})

	_, err := g.Reverse(context.Background(), domain.ReverseQuery{Lat: 91, Lon: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
	assert.Zero(t, a.calls.Load())
}

func TestReverse_IgnoresConfidenceThreshold(t *testing.T) {
	a := &reversingAdapter{mockAdapter{name: "fake", results: scored()}}
	g := NewGeocoder(a, nil, Settings{MinConfidence: ptr(0.5)})

	out, err := g.Reverse(context.Background(), domain.ReverseQuery{Lat: 45.7, Lon: 4.8})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low", "unscored"}, cities(out.Results))
	assert.Equal(t, "fake", out.Results.Results[0].Provider)
}

func TestBatchGeocode_FanOutIsolatesFailures(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	a := &mockAdapter{name: "fake", results: []domain.Result{{City: "Lyon"}}}
	g := NewGeocoder(a, nil, Settings{Metrics: metrics, BatchConcurrency: 2})

	out, err := g.BatchGeocode(context.Background(), []domain.GeocodeQuery{{Address: "ok"}, {Address: "fail"}, {Address: "ok"}})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.NoError(t, out[0].Error)
	assert.Equal(t, "fake", out[0].Value.Results[0].Provider)
	var upErr *domain.UpstreamError
	assert.ErrorAs(t, out[1].Error, &upErr)
	assert.Nil(t, out[1].Value)
	assert.NoError(t, out[2].Error)

	body, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, false, decoded[0]["error"])
	assert.Equal(t, "fake: upstream status 500", decoded[1]["error"])
	assert.Nil(t, decoded[1]["value"])

	assert.Equal(t, 1, testutil.CollectAndCount(metrics.BatchQueries))
}

func TestBatchGeocode_UsesNativeBatch(t *testing.T) {
	a := &batchAdapter{mockAdapter: mockAdapter{name: "native"}}
	g := NewGeocoder(a, nil, Settings{})

	out, err := g.BatchGeocode(context.Background(), []domain.GeocodeQuery{{Address: "a"}, {Address: "b"}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), a.batches.Load())
	assert.Zero(t, a.calls.Load())
	assert.Equal(t, "a", out[0].Value.Results[0].City)
	assert.Equal(t, "native", out[1].Value.Results[0].Provider)
}

func TestBatchGeocode_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &mockAdapter{name: "fake"}
	_, err := NewGeocoder(a, nil, Settings{}).BatchGeocode(ctx, []domain.GeocodeQuery{{Address: "a"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, a.calls.Load())
}

func TestCallbacks_MirrorReturnValues(t *testing.T) {
	g := NewGeocoder(&reversingAdapter{mockAdapter{name: "fake", results: scored()}}, nil, Settings{})
	ctx := context.Background()

	var cbOut *domain.Output
	var cbErr error
	out, err := g.GeocodeCallback(ctx, domain.GeocodeQuery{Address: "fail"}, func(o *domain.Output, e error) { cbOut, cbErr = o, e })
	assert.Same(t, err, cbErr)
	assert.Nil(t, out)
	assert.Nil(t, cbOut)

	out, err = g.ReverseCallback(ctx, domain.ReverseQuery{Lat: 1, Lon: 1}, func(o *domain.Output, e error) { cbOut, cbErr = o, e })
	require.NoError(t, err)
	assert.NoError(t, cbErr)
	assert.Same(t, out, cbOut)

	var cbBatch []domain.BatchResult
	batch, err := g.BatchGeocodeCallback(ctx, []domain.GeocodeQuery{{Address: "a"}}, func(b []domain.BatchResult, e error) { cbBatch, cbErr = b, e })
	require.NoError(t, err)
	assert.NoError(t, cbErr)
	assert.Equal(t, batch, cbBatch)

	_, err = g.GeocodeCallback(ctx, domain.GeocodeQuery{Address: "a"}, nil)
	assert.NoError(t, err)
}
