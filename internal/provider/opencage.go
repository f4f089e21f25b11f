package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const opencageEndpoint = "https://api.opencagedata.com/geocode/v1/json"

// OpenCageOptions configures the OpenCage client.
type OpenCageOptions struct {
	APIKey   string
	Language string
	Country  string
	Endpoint string
}

// OpenCage implements the OpenCage Geocoding API.
type OpenCage struct {
	base
	opts OpenCageOptions
}

// NewOpenCage creates an OpenCage geocoding client. APIKey is required.
func NewOpenCage(t domain.Transport, opts OpenCageOptions) (*OpenCage, error) {
	b, err := newBase("opencage", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = opencageEndpoint
	}
	return &OpenCage{base: b, opts: opts}, nil
}

func (o *OpenCage) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := o.check(q); err != nil {
		return nil, err
	}
	params := o.params(q.Language)
	params.Set("q", strings.Join(nonEmpty(q.Address, q.City, q.State, q.ZipCode), ", "))
	setIf(params, "countrycode", strings.ToLower(pick(q.Country, o.opts.Country)))
	setLimit(params, "limit", q.Limit)
	if q.MinConfidence != nil {
		// Upstream scale is 0-10.
		params.Set("min_confidence", strconv.Itoa(int(*q.MinConfidence*10)))
	}
	addExtra(params, q.Extra)
	return o.fetch(ctx, params)
}

func (o *OpenCage) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := o.params(q.Language)
	params.Set("q", formatCoord(q.Lat)+","+formatCoord(q.Lon))
	addExtra(params, q.Extra)
	return o.fetch(ctx, params)
}

func (o *OpenCage) params(lang string) url.Values {
	params := url.Values{"key": {o.opts.APIKey}, "no_annotations": {"1"}}
	setIf(params, "language", pick(lang, o.opts.Language))
	return params
}

func (o *OpenCage) fetch(ctx context.Context, params url.Values) (*domain.ResultSet, error) {
	resp, err := o.get(ctx, o.opts.Endpoint, params)
	if err != nil {
		return nil, err
	}

	var body opencageResponse
	if err := decodeJSON(o.name, resp.Body, &body); err != nil {
		if !resp.OK() {
			return nil, httpStatusError(o.name, resp)
		}
		return nil, err
	}
	if !resp.OK() || (body.Status.Code != 0 && body.Status.Code != 200) {
		status := strconv.Itoa(body.Status.Code)
		if body.Status.Code == 0 {
			status = strconv.Itoa(resp.StatusCode)
		}
		return nil, upstreamError(o.name, status, body.Status.Message, resp.Body)
	}

	results := make([]domain.Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, r.toResult())
	}
	return newResultSet(results, resp), nil
}

type opencageResponse struct {
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Results []opencageResult `json:"results"`
}

type opencageResult struct {
	Formatted  string `json:"formatted"`
	Confidence *int   `json:"confidence"`
	Geometry   struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"geometry"`
	Components struct {
		Type          string `json:"_type"`
		HouseNumber   string `json:"house_number"`
		Road          string `json:"road"`
		Neighbourhood string `json:"neighbourhood"`
		Suburb        string `json:"suburb"`
		CityDistrict  string `json:"city_district"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		County        string `json:"county"`
		State         string `json:"state"`
		StateCode     string `json:"state_code"`
		Postcode      string `json:"postcode"`
		Country       string `json:"country"`
		CountryCode   string `json:"country_code"`
	} `json:"components"`
}

func (r opencageResult) toResult() domain.Result {
	c := r.Components
	res := domain.Result{
		Latitude:         r.Geometry.Lat,
		Longitude:        r.Geometry.Lng,
		FormattedAddress: r.Formatted,
		Country:          c.Country,
		CountryCode:      countryCode(c.CountryCode),
		State:            c.State,
		StateCode:        c.StateCode,
		City:             firstNonEmpty(c.City, c.Town, c.Village),
		ZipCode:          c.Postcode,
		StreetName:       c.Road,
		StreetNumber:     c.HouseNumber,
		Neighbourhood:    firstNonEmpty(c.Neighbourhood, c.Suburb),
		District:         c.CityDistrict,
		County:           c.County,
		Extra: domain.Extra{
			Fields: map[string]any{"type": c.Type},
		},
	}
	if r.Confidence != nil {
		res.Extra.Confidence = confidence(float64(*r.Confidence) / 10)
	}
	res.SetAdminLevel(1, c.State, c.StateCode)
	res.SetAdminLevel(2, c.County, "")
	return res
}
