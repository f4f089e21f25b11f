package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const mapquestEndpoint = "https://www.mapquestapi.com/geocoding/v1"

// MapQuestOptions configures the MapQuest licensed client.
type MapQuestOptions struct {
	APIKey   string
	Endpoint string
}

// MapQuest implements the MapQuest Geocoding API, including its native
// batch route.
type MapQuest struct {
	base
	opts MapQuestOptions
}

var mapquestQuality = map[string]float64{
	"POINT":        1,
	"ADDRESS":      0.9,
	"INTERSECTION": 0.8,
	"STREET":       0.7,
	"NEIGHBORHOOD": 0.6,
	"ZIP":          0.5,
	"CITY":         0.4,
	"COUNTY":       0.3,
	"STATE":        0.2,
	"COUNTRY":      0.1,
}

// NewMapQuest creates a MapQuest geocoding client. APIKey is required.
func NewMapQuest(t domain.Transport, opts MapQuestOptions) (*MapQuest, error) {
	b, err := newBase("mapquest", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = mapquestEndpoint
	}
	return &MapQuest{base: b, opts: opts}, nil
}

func (m *MapQuest) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := m.check(q); err != nil {
		return nil, err
	}
	params := url.Values{"key": {m.opts.APIKey}, "location": {mapquestLocation(q)}}
	setLimit(params, "maxResults", q.Limit)
	addExtra(params, q.Extra)

	resp, body, err := m.fetch(ctx, m.opts.Endpoint+"/address", params)
	if err != nil {
		return nil, err
	}
	return newResultSet(body.locations(0), resp), nil
}

func (m *MapQuest) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := url.Values{"key": {m.opts.APIKey}, "location": {formatCoord(q.Lat) + "," + formatCoord(q.Lon)}}
	addExtra(params, q.Extra)

	resp, body, err := m.fetch(ctx, m.opts.Endpoint+"/reverse", params)
	if err != nil {
		return nil, err
	}
	return newResultSet(body.locations(0), resp), nil
}

// BatchGeocode resolves all queries with one request to the batch route.
// Queries the adapter rejects up front fill their own slot; a failed request
// fails every dispatched slot.
func (m *MapQuest) BatchGeocode(ctx context.Context, qs []domain.GeocodeQuery) []domain.BatchResult {
	out := make([]domain.BatchResult, len(qs))
	params := url.Values{"key": {m.opts.APIKey}}
	var dispatched []int
	for i, q := range qs {
		if err := m.check(q); err != nil {
			out[i] = domain.BatchResult{Error: err}
			continue
		}
		params.Add("location", mapquestLocation(q))
		dispatched = append(dispatched, i)
	}
	if len(dispatched) == 0 {
		return out
	}

	resp, body, err := m.fetch(ctx, m.opts.Endpoint+"/batch", params)
	if err == nil && len(body.Results) != len(dispatched) {
		err = badResponse(m.name, fmt.Sprintf("batch returned %d results for %d locations", len(body.Results), len(dispatched)))
	}
	for n, i := range dispatched {
		if err != nil {
			out[i] = domain.BatchResult{Error: err}
			continue
		}
		out[i] = domain.BatchResult{Value: newResultSet(body.locations(n), resp)}
	}
	return out
}

func (m *MapQuest) fetch(ctx context.Context, endpoint string, params url.Values) (*domain.Response, *mapquestResponse, error) {
	resp, err := m.get(ctx, endpoint, params)
	if err != nil {
		return nil, nil, err
	}

	var body mapquestResponse
	if err := decodeJSON(m.name, resp.Body, &body); err != nil {
		if !resp.OK() {
			return nil, nil, httpStatusError(m.name, resp)
		}
		return nil, nil, err
	}
	if !resp.OK() || body.Info.StatusCode != 0 {
		status := strconv.Itoa(body.Info.StatusCode)
		if body.Info.StatusCode == 0 {
			status = strconv.Itoa(resp.StatusCode)
		}
		return nil, nil, upstreamError(m.name, status, strings.Join(body.Info.Messages, "; "), resp.Body)
	}
	return resp, &body, nil
}

func mapquestLocation(q domain.GeocodeQuery) string {
	return strings.Join(nonEmpty(q.Address, q.City, q.State, q.ZipCode, q.Country), ", ")
}

type mapquestResponse struct {
	Info struct {
		StatusCode int      `json:"statuscode"`
		Messages   []string `json:"messages"`
	} `json:"info"`
	Results []struct {
		Locations []mapquestLocationResult `json:"locations"`
	} `json:"results"`
}

func (r *mapquestResponse) locations(i int) []domain.Result {
	if i >= len(r.Results) {
		return nil
	}
	out := make([]domain.Result, 0, len(r.Results[i].Locations))
	for _, l := range r.Results[i].Locations {
		out = append(out, l.toResult())
	}
	return out
}

type mapquestLocationResult struct {
	LatLng struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"latLng"`
	Street         string `json:"street"`
	AdminArea6     string `json:"adminArea6"`
	AdminArea5     string `json:"adminArea5"`
	AdminArea4     string `json:"adminArea4"`
	AdminArea3     string `json:"adminArea3"`
	AdminArea1     string `json:"adminArea1"`
	PostalCode     string `json:"postalCode"`
	GeocodeQuality string `json:"geocodeQuality"`
	GeocodeCode    string `json:"geocodeQualityCode"`
	LinkID         string `json:"linkId"`
}

func (l mapquestLocationResult) toResult() domain.Result {
	number, street := splitStreet(l.Street)
	res := domain.Result{
		Latitude:      l.LatLng.Lat,
		Longitude:     l.LatLng.Lng,
		CountryCode:   countryCode(l.AdminArea1),
		StateCode:     l.AdminArea3,
		City:          l.AdminArea5,
		ZipCode:       l.PostalCode,
		StreetName:    street,
		StreetNumber:  number,
		Neighbourhood: l.AdminArea6,
		County:        l.AdminArea4,
		Extra: domain.Extra{
			PlaceID:    l.LinkID,
			Confidence: lookupConfidence(mapquestQuality, l.GeocodeQuality, -1),
			Fields: map[string]any{
				"geocodeQuality":     l.GeocodeQuality,
				"geocodeQualityCode": l.GeocodeCode,
			},
		},
	}
	res.FormattedAddress = strings.Join(nonEmpty(l.Street, l.AdminArea5, strings.TrimSpace(l.AdminArea3+" "+l.PostalCode), l.AdminArea1), ", ")
	res.SetAdminLevel(1, "", l.AdminArea3)
	res.SetAdminLevel(2, l.AdminArea4, "")
	return res
}

// splitStreet separates a leading house number from "1600 Amphitheatre Pkwy".
func splitStreet(s string) (number, street string) {
	head, rest, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok || head == "" || head[0] < '0' || head[0] > '9' {
		return "", s
	}
	return head, rest
}
