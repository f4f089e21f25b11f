package kafka

import (
	"testing"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("req-1"),
		Value:     []byte(`{"id":"req-1","query":"Lyon"}`),
		Topic:     "geocode-requests",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("crm")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.JSONEq(t, `{"id":"req-1","query":"Lyon"}`, string(raw.Value))
	assert.Equal(t, "geocode-requests", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "crm", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 4, 26, 15, 10, 0, 0, time.UTC)
	out, err := domain.SerializeResponse(domain.GeocodeResponse{
		ID:          "req-1",
		Type:        domain.RequestGeocode,
		Provider:    "openstreetmap",
		Results:     domain.NewResultSet([]domain.Result{{City: "Lyon"}}, nil),
		ProcessedAt: now,
	})
	require.NoError(t, err)

	msg := serializeToMessage(out)

	assert.Equal(t, []byte("req-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"city":"Lyon"`)
	require.Len(t, msg.Headers, 4)
	assert.Equal(t, "processed_at", msg.Headers[0].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[0].Value)
	assert.Equal(t, "provider", msg.Headers[1].Key)
	assert.Equal(t, []byte("openstreetmap"), msg.Headers[1].Value)
	assert.Equal(t, "status", msg.Headers[2].Key)
	assert.Equal(t, []byte("ok"), msg.Headers[2].Value)
	assert.Equal(t, "type", msg.Headers[3].Key)
	assert.Equal(t, []byte("geocode"), msg.Headers[3].Value)
}

func TestSerializeToMessage_NoHeaders(t *testing.T) {
	msg := serializeToMessage(domain.OutputEvent{Key: []byte("k"), Value: []byte(`{}`)})
	assert.Empty(t, msg.Headers)
	assert.Equal(t, []byte(`{}`), msg.Value)
}
