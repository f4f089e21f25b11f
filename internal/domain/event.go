package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Request types carried on the request topic.
const (
	RequestGeocode = "geocode"
	RequestReverse = "reverse"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// GeocodeRequest is one lookup submitted through the request topic.
// Type defaults to "geocode".
type GeocodeRequest struct {
	ID      string       `json:"id"`
	Type    string       `json:"type"`
	Query   GeocodeQuery `json:"query"`
	Reverse ReverseQuery `json:"reverse"`
}

// ParseRequest decodes a raw message into a GeocodeRequest. A geocode
// request needs a query target and a reverse request needs both coordinates.
func ParseRequest(raw RawEvent) (GeocodeRequest, error) {
	var w struct {
		ID      string        `json:"id"`
		Type    string        `json:"type"`
		Query   GeocodeQuery  `json:"query"`
		Reverse *ReverseQuery `json:"reverse"`
	}
	if err := json.Unmarshal(raw.Value, &w); err != nil {
		return GeocodeRequest{}, fmt.Errorf("parse request: %w", err)
	}
	req := GeocodeRequest{ID: w.ID, Type: w.Type, Query: w.Query}
	if w.Reverse != nil {
		req.Reverse = *w.Reverse
	}
	if req.Type == "" {
		req.Type = RequestGeocode
	}
	if req.ID == "" {
		req.ID = string(raw.Key)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	switch req.Type {
	case RequestGeocode:
		if err := req.Query.Validate(); err != nil {
			return GeocodeRequest{}, fmt.Errorf("parse request: %w", err)
		}
	case RequestReverse:
		if w.Reverse == nil {
			return GeocodeRequest{}, fmt.Errorf("parse request: %w: reverse lat and lon are required", ErrInvalidQuery)
		}
	default:
		return GeocodeRequest{}, fmt.Errorf("parse request: unknown type %q", req.Type)
	}
	return req, nil
}

// GeocodeResponse is the message produced for every request.
type GeocodeResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Provider    string     `json:"provider"`
	Error       *string    `json:"error"`
	Results     *ResultSet `json:"results"`
	Formatted   any        `json:"formatted,omitempty"`
	ProcessedAt time.Time  `json:"processed_at"`
}

// NewGeocodeResponse builds the response for a request outcome.
func NewGeocodeResponse(req GeocodeRequest, provider string, out *Output, err error) GeocodeResponse {
	resp := GeocodeResponse{
		ID:          req.ID,
		Type:        req.Type,
		Provider:    provider,
		ProcessedAt: clock.Now().UTC(),
	}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
		return resp
	}
	if out != nil {
		resp.Results = out.Results
		resp.Formatted = out.Formatted
	}
	return resp
}

// SerializeResponse marshals a response into a sink message keyed by request ID.
func SerializeResponse(resp GeocodeResponse) (OutputEvent, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize geocode response: %w", err)
	}
	status := "ok"
	if resp.Error != nil {
		status = "error"
	}
	return OutputEvent{
		Key:   []byte(resp.ID),
		Value: data,
		Headers: map[string]string{
			"type":         resp.Type,
			"provider":     resp.Provider,
			"status":       status,
			"processed_at": resp.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
