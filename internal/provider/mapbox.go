package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const mapboxEndpoint = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// MapboxOptions configures the Mapbox adapter. APIKey is the access token.
type MapboxOptions struct {
	APIKey   string
	Language string
	Country  string
	Endpoint string
}

// Mapbox implements the Mapbox Geocoding API.
type Mapbox struct {
	base
	opts MapboxOptions
}

// NewMapbox creates a Mapbox geocoding client. APIKey is required.
func NewMapbox(t domain.Transport, opts MapboxOptions) (*Mapbox, error) {
	b, err := newBase("mapbox", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = mapboxEndpoint
	}
	return &Mapbox{base: b, opts: opts}, nil
}

// Geocode converts an address to candidate locations.
func (m *Mapbox) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := m.check(q); err != nil {
		return nil, err
	}
	text := q.Address
	for _, part := range []string{q.City, q.State, q.ZipCode} {
		if part != "" {
			text = strings.TrimPrefix(text+", "+part, ", ")
		}
	}

	params := m.params(q.Language)
	setIf(params, "country", strings.ToLower(pick(q.Country, m.opts.Country)))
	setLimit(params, "limit", q.Limit)
	addExtra(params, q.Extra)

	return m.fetch(ctx, fmt.Sprintf("%s/%s.json", m.opts.Endpoint, url.PathEscape(text)), params)
}

// Reverse converts coordinates to place details.
func (m *Mapbox) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	// Mapbox uses lon,lat order.
	coord := formatCoord(q.Lon) + "," + formatCoord(q.Lat)
	params := m.params(q.Language)
	addExtra(params, q.Extra)

	return m.fetch(ctx, fmt.Sprintf("%s/%s.json", m.opts.Endpoint, coord), params)
}

func (m *Mapbox) params(lang string) url.Values {
	params := url.Values{"access_token": {m.opts.APIKey}}
	setIf(params, "language", pick(lang, m.opts.Language))
	return params
}

func (m *Mapbox) fetch(ctx context.Context, endpoint string, params url.Values) (*domain.ResultSet, error) {
	resp, err := m.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var body mapboxResponse
	if !resp.OK() {
		_ = decodeJSON(m.name, resp.Body, &body)
		return nil, httpStatusError(m.name, resp, body.Message)
	}
	if err := decodeJSON(m.name, resp.Body, &body); err != nil {
		return nil, err
	}

	results := make([]domain.Result, 0, len(body.Features))
	for _, f := range body.Features {
		results = append(results, f.toResult())
	}
	return newResultSet(results, resp), nil
}

// Mapbox API response types.

type mapboxResponse struct {
	Message  string          `json:"message"`
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	ID        string    `json:"id"`
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	PlaceType []string  `json:"place_type"`
	Text      string    `json:"text"`
	Address   string    `json:"address"`
	Relevance float64   `json:"relevance"`
	Context   []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		ShortCode string `json:"short_code"`
	} `json:"context"`
}

func (f mapboxFeature) toResult() domain.Result {
	res := domain.Result{
		FormattedAddress: f.PlaceName,
		StreetNumber:     f.Address,
		Extra: domain.Extra{
			PlaceID:    f.ID,
			Confidence: confidence(f.Relevance),
			Fields:     map[string]any{"placeType": f.PlaceType},
		},
	}
	if len(f.Center) == 2 {
		res.Longitude = f.Center[0]
		res.Latitude = f.Center[1]
	}

	// The feature itself is one of the context layers.
	layer := func(id, text, short string) {
		switch strings.SplitN(id, ".", 2)[0] {
		case "address":
			res.StreetName = text
		case "postcode":
			res.ZipCode = text
		case "place":
			res.City = text
		case "locality":
			res.District = text
		case "neighborhood":
			res.Neighbourhood = text
		case "district":
			res.County = text
		case "region":
			res.State = text
			if i := strings.LastIndex(short, "-"); i >= 0 {
				short = short[i+1:]
			}
			res.StateCode = strings.ToUpper(short)
			res.SetAdminLevel(1, text, res.StateCode)
		case "country":
			res.Country = text
			res.CountryCode = countryCode(short)
		}
	}
	layer(f.ID, f.Text, "")
	for _, c := range f.Context {
		layer(c.ID, c.Text, c.ShortCode)
	}
	return res
}
