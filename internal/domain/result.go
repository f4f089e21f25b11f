package domain

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Result is one normalized location record. String fields are always
// serialized; an empty value means the provider did not report it.
type Result struct {
	Latitude             float64           `json:"latitude"`
	Longitude            float64           `json:"longitude"`
	FormattedAddress     string            `json:"formattedAddress"`
	Country              string            `json:"country"`
	CountryCode          string            `json:"countryCode"` // ISO 3166-1 alpha-2, upper case
	State                string            `json:"state"`
	StateCode            string            `json:"stateCode"`
	City                 string            `json:"city"`
	ZipCode              string            `json:"zipcode"`
	StreetName           string            `json:"streetName"`
	StreetNumber         string            `json:"streetNumber"`
	Neighbourhood        string            `json:"neighbourhood"`
	District             string            `json:"district"`
	County               string            `json:"county"`
	AdministrativeLevels map[string]string `json:"administrativeLevels"` // "level1long", "level1short", ...
	Extra                Extra             `json:"extra"`
	Provider             string            `json:"provider"`
}

// MarshalJSON writes administrativeLevels as an object even when the
// provider reported no levels.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	p := plain(r)
	if p.AdministrativeLevels == nil {
		p.AdministrativeLevels = map[string]string{}
	}
	return json.Marshal(p)
}

// Extra carries provider-specific data. Confidence is normalized to 0–1.
type Extra struct {
	Confidence *float64       `json:"confidence"`
	PlaceID    string         `json:"placeId"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// SetAdminLevel records a long/short name pair for an administrative depth.
func (r *Result) SetAdminLevel(level int, long, short string) {
	if long == "" && short == "" {
		return
	}
	if r.AdministrativeLevels == nil {
		r.AdministrativeLevels = make(map[string]string)
	}
	n := strconv.Itoa(level)
	if long != "" {
		r.AdministrativeLevels["level"+n+"long"] = long
	}
	if short != "" {
		r.AdministrativeLevels["level"+n+"short"] = short
	}
}

// RateLimit mirrors the upstream X-RateLimit-* headers when present.
type RateLimit struct {
	Limit     int
	Remaining int
	Reset     int64
}

// RateLimitFromHeader parses standard rate-limit headers. Returns nil when
// the upstream sent none.
func RateLimitFromHeader(h http.Header) *RateLimit {
	limit := h.Get("X-RateLimit-Limit")
	remaining := h.Get("X-RateLimit-Remaining")
	if limit == "" && remaining == "" {
		return nil
	}
	rl := &RateLimit{}
	rl.Limit, _ = strconv.Atoi(limit)
	rl.Remaining, _ = strconv.Atoi(remaining)
	rl.Reset, _ = strconv.ParseInt(h.Get("X-RateLimit-Reset"), 10, 64)
	return rl
}

// ResultSet is an ordered sequence of Results plus the verbatim upstream
// payload. Raw and RateLimit are reachable by field access only; they never
// appear in the JSON form, which is the bare results array.
type ResultSet struct {
	Results   []Result
	Raw       json.RawMessage
	RateLimit *RateLimit
}

// NewResultSet wraps results with the upstream payload they were built from.
func NewResultSet(results []Result, raw []byte) *ResultSet {
	if results == nil {
		results = []Result{}
	}
	return &ResultSet{Results: results, Raw: json.RawMessage(raw)}
}

// Len returns the number of results.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Results)
}

func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	if rs == nil || rs.Results == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rs.Results)
}

func (rs *ResultSet) UnmarshalJSON(data []byte) error {
	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		return err
	}
	rs.Results = results
	return nil
}

// BatchResult is the outcome of one query in a batch. Exactly one of Error
// and Value is set.
type BatchResult struct {
	Error error
	Value *ResultSet
}

func (b BatchResult) MarshalJSON() ([]byte, error) {
	var out struct {
		Error any        `json:"error"`
		Value *ResultSet `json:"value"`
	}
	out.Error = false
	if b.Error != nil {
		out.Error = b.Error.Error()
	} else {
		out.Value = b.Value
	}
	return json.Marshal(out)
}

// Output is what the orchestrator hands back: the post-processed ResultSet,
// or the formatter's rendering of it when a formatter is configured.
type Output struct {
	Results   *ResultSet
	Formatted any
}

func (o *Output) MarshalJSON() ([]byte, error) {
	if o.Formatted != nil {
		return json.Marshal(o.Formatted)
	}
	return o.Results.MarshalJSON()
}
