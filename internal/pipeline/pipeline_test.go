package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/observability"
	"github.com/couchcryptid/geocoder-service/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// mockExtractor hands out one batch per call, optionally failing first.
type mockExtractor struct {
	batches  [][]domain.RawEvent
	failures int
	index    atomic.Int64
	calls    atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawEvent, error) {
	if int(m.calls.Add(1)) <= m.failures {
		return nil, errors.New("broker unavailable")
	}
	i := int(m.index.Add(1) - 1)
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

// echoTransformer copies values through and fails messages whose value is "poison".
type echoTransformer struct {
	err error
}

func (m *echoTransformer) TransformBatch(_ context.Context, batch []domain.RawEvent) ([]pipeline.Transformed, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]pipeline.Transformed, len(batch))
	for i, raw := range batch {
		if string(raw.Value) == "poison" {
			out[i].Err = errors.New("parse request: invalid character")
			continue
		}
		out[i].Event = domain.OutputEvent{Key: raw.Key, Value: raw.Value}
	}
	return out, nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []domain.OutputEvent
	failures int
	calls    int
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= m.failures {
		return errors.New("sink unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) snapshot() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func rawEvent(key, value string, committed *atomic.Int64) domain.RawEvent {
	raw := domain.RawEvent{Key: []byte(key), Value: []byte(value), Topic: "geocode-requests"}
	if committed != nil {
		raw.Commit = func(context.Context) error {
			committed.Add(1)
			return nil
		}
	}
	return raw
}

func runFor(t *testing.T, p *pipeline.Pipeline, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{
		rawEvent("req-1", `{"query":"Lyon"}`, &committed),
		rawEvent("req-2", `{"query":"Paris"}`, &committed),
	}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &echoTransformer{}, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 500*time.Millisecond)

	loaded := ldr.snapshot()
	require.Len(t, loaded, 2)
	assert.Equal(t, []byte("req-1"), loaded[0].Key)
	assert.Equal(t, []byte("req-2"), loaded[1].Key)
	assert.Equal(t, int64(2), committed.Load())
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(context.Background()))

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesConsumed), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.MessagesProduced), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no events, will block
	ldr := &mockLoader{}

	p := pipeline.New(ext, &echoTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshot())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_DecodeErrorSkippedAndCommitted(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{
		rawEvent("bad", "poison", &committed),
		rawEvent("good", `{"query":"Lyon"}`, &committed),
	}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New(ext, &echoTransformer{}, ldr, slog.Default(), metrics, 10)
	runFor(t, p, 500*time.Millisecond)

	loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("good"), loaded[0].Key)
	assert.Equal(t, int64(2), committed.Load())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DecodeErrors), 0)
}

func TestPipeline_Run_AllUndecodable(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawEvent("bad", "poison", &committed)}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &echoTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 500*time.Millisecond)

	assert.Empty(t, ldr.snapshot())
	assert.Zero(t, ldr.calls)
	assert.Equal(t, int64(1), committed.Load())
	assert.False(t, p.Ready())
}

func TestPipeline_Run_TransformFailureDoesNotCommit(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{{rawEvent("req-1", `{}`, &committed)}}}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &echoTransformer{err: errors.New("provider down")}, ldr, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, 500*time.Millisecond)

	assert.Empty(t, ldr.snapshot())
	assert.Zero(t, committed.Load())
	assert.False(t, p.Ready())
}

func TestPipeline_Run_LoadFailureDoesNotCommit(t *testing.T) {
	var committed atomic.Int64
	ext := &mockExtractor{batches: [][]domain.RawEvent{
		{rawEvent("req-1", `{"query":"Lyon"}`, &committed)},
		{rawEvent("req-2", `{"query":"Paris"}`, &committed)},
	}}
	ldr := &mockLoader{failures: 1}

	p := pipeline.New(ext, &echoTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	runFor(t, p, time.Second)

	loaded := ldr.snapshot()
	require.Len(t, loaded, 1)
	assert.Equal(t, []byte("req-2"), loaded[0].Key)
	assert.Equal(t, int64(1), committed.Load())
}

func TestPipeline_Run_RetriesExtractWithBackoff(t *testing.T) {
	ext := &mockExtractor{
		failures: 2,
		batches:  [][]domain.RawEvent{{rawEvent("req-1", `{"query":"Lyon"}`, nil)}},
	}
	ldr := &mockLoader{}

	p := pipeline.New(ext, &echoTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)
	start := time.Now()
	runFor(t, p, 1500*time.Millisecond)

	require.Len(t, ldr.snapshot(), 1)
	// 200ms then 400ms between the two failures and the successful fetch.
	assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond)
	assert.Equal(t, int64(4), ext.calls.Load())
}
