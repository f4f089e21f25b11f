package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"strings"
)

// QueryKind is the semantic target of a GeocodeQuery.
type QueryKind int

const (
	QueryAddress QueryKind = iota
	QueryIPv4
	QueryIPv6
)

func (k QueryKind) String() string {
	switch k {
	case QueryIPv4:
		return "IPv4"
	case QueryIPv6:
		return "IPv6"
	default:
		return "address"
	}
}

// GeocodeQuery is a forward geocoding request. Address carries either the
// free-form address text or an IP literal; the remaining fields are hints
// layered on top of an address.
type GeocodeQuery struct {
	Address       string            `json:"address"`
	Country       string            `json:"country,omitempty"`
	ZipCode       string            `json:"zipcode,omitempty"`
	City          string            `json:"city,omitempty"`
	State         string            `json:"state,omitempty"`
	Language      string            `json:"language,omitempty"`
	Limit         int               `json:"limit,omitempty"`
	MinConfidence *float64          `json:"minConfidence,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// UnmarshalJSON accepts either a bare string or the structured object form.
func (q *GeocodeQuery) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*q = GeocodeQuery{Address: s}
		return nil
	}
	type plain GeocodeQuery
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode geocode query: %w", err)
	}
	*q = GeocodeQuery(p)
	return nil
}

// Validate requires a target: address text, an IP literal, or at least a
// city or zipcode for a structured query.
func (q GeocodeQuery) Validate() error {
	if strings.TrimSpace(q.Address) == "" && q.City == "" && q.ZipCode == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidQuery)
	}
	return nil
}

// Kind classifies the query target.
func (q GeocodeQuery) Kind() QueryKind {
	return Classify(q.Address)
}

// Classify detects whether s is an IPv4 literal, an IPv6 literal, or address text.
func Classify(s string) QueryKind {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil || addr.Zone() != "" {
		return QueryAddress
	}
	if addr.Is4() {
		return QueryIPv4
	}
	return QueryIPv6
}

// ReverseQuery is a coordinate lookup plus provider pass-through hints.
type ReverseQuery struct {
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
	Language string            `json:"language,omitempty"`
	Zoom     int               `json:"zoom,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// UnmarshalJSON requires both lat and lon to be present.
func (q *ReverseQuery) UnmarshalJSON(data []byte) error {
	var w struct {
		Lat      *float64          `json:"lat"`
		Lon      *float64          `json:"lon"`
		Language string            `json:"language"`
		Zoom     int               `json:"zoom"`
		Extra    map[string]string `json:"extra"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode reverse query: %w", err)
	}
	switch {
	case w.Lat == nil:
		return fmt.Errorf("%w: lat is required", ErrInvalidQuery)
	case w.Lon == nil:
		return fmt.Errorf("%w: lon is required", ErrInvalidQuery)
	}
	*q = ReverseQuery{Lat: *w.Lat, Lon: *w.Lon, Language: w.Language, Zoom: w.Zoom, Extra: w.Extra}
	return nil
}

// Validate rejects coordinates no provider can resolve.
func (q ReverseQuery) Validate() error {
	if math.IsNaN(q.Lat) || math.IsInf(q.Lat, 0) || q.Lat < -90 || q.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidQuery, q.Lat)
	}
	if math.IsNaN(q.Lon) || math.IsInf(q.Lon, 0) || q.Lon < -180 || q.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidQuery, q.Lon)
	}
	return nil
}
