package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const (
	maxBatchQueries = 100
	maxBodyBytes    = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type providersResponse struct {
	Active    string   `json:"active"`
	Providers []string `json:"providers"`
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q, err := geocodeQueryFromURL(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.svc.Geocode(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	q, err := reverseQueryFromURL(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out, err := s.svc.Reverse(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var qs []domain.GeocodeQuery
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&qs); err != nil {
		s.writeError(w, fmt.Errorf("%w: batch body: %v", domain.ErrInvalidQuery, err))
		return
	}
	if len(qs) == 0 {
		s.writeError(w, fmt.Errorf("%w: batch is empty", domain.ErrInvalidQuery))
		return
	}
	if len(qs) > maxBatchQueries {
		s.writeError(w, fmt.Errorf("%w: batch exceeds %d queries", domain.ErrInvalidQuery, maxBatchQueries))
		return
	}

	results, err := s.svc.BatchGeocode(r.Context(), qs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, providersResponse{Active: s.svc.Name(), Providers: s.providers})
}

func geocodeQueryFromURL(r *http.Request) (domain.GeocodeQuery, error) {
	v := r.URL.Query()
	q := domain.GeocodeQuery{
		Address:  v.Get("q"),
		Country:  v.Get("country"),
		City:     v.Get("city"),
		State:    v.Get("state"),
		ZipCode:  v.Get("zipcode"),
		Language: v.Get("language"),
	}
	if err := q.Validate(); err != nil {
		return q, err
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("%w: invalid limit %q", domain.ErrInvalidQuery, raw)
		}
		q.Limit = n
	}
	if raw := v.Get("minConfidence"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f < 0 || f > 1 {
			return q, fmt.Errorf("%w: invalid minConfidence %q", domain.ErrInvalidQuery, raw)
		}
		q.MinConfidence = &f
	}
	return q, nil
}

func reverseQueryFromURL(r *http.Request) (domain.ReverseQuery, error) {
	v := r.URL.Query()
	q := domain.ReverseQuery{Language: v.Get("language")}

	lat, err := strconv.ParseFloat(v.Get("lat"), 64)
	if err != nil {
		return q, fmt.Errorf("%w: invalid lat %q", domain.ErrInvalidQuery, v.Get("lat"))
	}
	lon, err := strconv.ParseFloat(v.Get("lon"), 64)
	if err != nil {
		return q, fmt.Errorf("%w: invalid lon %q", domain.ErrInvalidQuery, v.Get("lon"))
	}
	q.Lat, q.Lon = lat, lon

	if raw := v.Get("zoom"); raw != "" {
		z, err := strconv.Atoi(raw)
		if err != nil {
			return q, fmt.Errorf("%w: invalid zoom %q", domain.ErrInvalidQuery, raw)
		}
		q.Zoom = z
	}
	return q, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err, "status", status)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// statusFor maps a service error onto an HTTP status and, for transport
// failures, the transport error code.
func statusFor(err error) (int, string) {
	var (
		capErr       *domain.CapabilityError
		upstreamErr  *domain.UpstreamError
		transportErr *domain.TransportError
		formatErr    *domain.FormatterError
	)
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return http.StatusBadRequest, ""
	case errors.As(err, &capErr):
		return http.StatusUnprocessableEntity, ""
	case errors.As(err, &transportErr):
		if transportErr.Code == domain.CodeTimeout {
			return http.StatusGatewayTimeout, transportErr.Code
		}
		return http.StatusBadGateway, transportErr.Code
	case errors.As(err, &upstreamErr):
		return http.StatusBadGateway, ""
	case errors.As(err, &formatErr):
		return http.StatusInternalServerError, ""
	default:
		return http.StatusInternalServerError, ""
	}
}
