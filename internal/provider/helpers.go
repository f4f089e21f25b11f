package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"golang.org/x/text/language"
)

// decodeJSON unmarshals an upstream body. A body that is not the expected
// JSON is a transport failure, not an upstream one.
func decodeJSON(name string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &domain.TransportError{
			Message: fmt.Sprintf("%s: malformed response: %v", name, err),
			Code:    domain.CodeBadResponse,
			Err:     err,
		}
	}
	return nil
}

func badResponse(name, msg string) error {
	return &domain.TransportError{Message: name + ": " + msg, Code: domain.CodeBadResponse}
}

func upstreamError(name, status, msg string, raw []byte) error {
	e := &domain.UpstreamError{Provider: name, Status: status, Message: msg}
	if json.Valid(raw) {
		e.Raw = json.RawMessage(raw)
	}
	return e
}

// httpStatusError builds an UpstreamError for a non-2xx reply, using the
// first non-empty message candidate.
func httpStatusError(name string, resp *domain.Response, messages ...string) error {
	msg := ""
	for _, m := range messages {
		if m != "" {
			msg = m
			break
		}
	}
	if msg == "" && !json.Valid(resp.Body) {
		msg = strings.TrimSpace(string(resp.Body))
	}
	return upstreamError(name, strconv.Itoa(resp.StatusCode), msg, resp.Body)
}

// newResultSet attaches the raw upstream body and any rate-limit headers.
func newResultSet(results []domain.Result, resp *domain.Response) *domain.ResultSet {
	rs := domain.NewResultSet(results, resp.Body)
	rs.RateLimit = domain.RateLimitFromHeader(resp.Header)
	return rs
}

// countryCode normalizes alpha-2 or alpha-3 codes to upper-case alpha-2.
// Unrecognized values are returned upper-cased.
func countryCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) == 3 {
		if r, err := language.ParseRegion(code); err == nil {
			return r.String()
		}
	}
	return strings.ToUpper(code)
}

func confidence(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return &v
}

// lookupConfidence maps a categorical quality to a score; unknown categories
// fall back to def, or nil when def is negative.
func lookupConfidence(table map[string]float64, key string, def float64) *float64 {
	if v, ok := table[key]; ok {
		return confidence(v)
	}
	if def < 0 {
		return nil
	}
	return confidence(def)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func nonEmpty(vals ...string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func pick(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

func setIf(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func setLimit(params url.Values, key string, limit int) {
	if limit > 0 {
		params.Set(key, strconv.Itoa(limit))
	}
}

// addExtra copies pass-through parameters without overriding ones the
// adapter already set.
func addExtra(params url.Values, extra map[string]string) {
	for k, v := range extra {
		if _, ok := params[k]; !ok {
			params.Set(k, v)
		}
	}
}
