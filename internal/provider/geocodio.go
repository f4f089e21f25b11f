package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const geocodioEndpoint = "https://api.geocod.io/v1.7"

// GeocodioOptions configures the Geocodio client.
type GeocodioOptions struct {
	APIKey   string
	Endpoint string
}

// Geocodio implements the Geocodio API (US and Canada).
type Geocodio struct {
	base
	opts GeocodioOptions
}

// NewGeocodio creates a Geocodio client. APIKey is required.
func NewGeocodio(t domain.Transport, opts GeocodioOptions) (*Geocodio, error) {
	b, err := newBase("geocodio", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = geocodioEndpoint
	}
	return &Geocodio{base: b, opts: opts}, nil
}

func (g *Geocodio) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := g.check(q); err != nil {
		return nil, err
	}
	params := url.Values{"api_key": {g.opts.APIKey}}
	if q.City != "" || q.State != "" || q.ZipCode != "" {
		setIf(params, "street", q.Address)
		setIf(params, "city", q.City)
		setIf(params, "state", q.State)
		setIf(params, "postal_code", q.ZipCode)
		setIf(params, "country", q.Country)
	} else {
		params.Set("q", q.Address)
	}
	setLimit(params, "limit", q.Limit)
	addExtra(params, q.Extra)
	return g.fetch(ctx, g.opts.Endpoint+"/geocode", params)
}

func (g *Geocodio) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := url.Values{
		"api_key": {g.opts.APIKey},
		"q":       {formatCoord(q.Lat) + "," + formatCoord(q.Lon)},
	}
	addExtra(params, q.Extra)
	return g.fetch(ctx, g.opts.Endpoint+"/reverse", params)
}

func (g *Geocodio) fetch(ctx context.Context, endpoint string, params url.Values) (*domain.ResultSet, error) {
	resp, err := g.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var body geocodioResponse
	if err := decodeJSON(g.name, resp.Body, &body); err != nil {
		if !resp.OK() {
			return nil, httpStatusError(g.name, resp)
		}
		return nil, err
	}
	if !resp.OK() || body.Error != "" {
		return nil, httpStatusError(g.name, resp, body.Error)
	}

	results := make([]domain.Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, r.toResult())
	}
	return newResultSet(results, resp), nil
}

type geocodioResponse struct {
	Error   string           `json:"error"`
	Results []geocodioResult `json:"results"`
}

type geocodioResult struct {
	FormattedAddress string  `json:"formatted_address"`
	Accuracy         float64 `json:"accuracy"`
	AccuracyType     string  `json:"accuracy_type"`
	Source           string  `json:"source"`
	Location         struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	AddressComponents struct {
		Number          string `json:"number"`
		Predirectional  string `json:"predirectional"`
		Street          string `json:"street"`
		Suffix          string `json:"suffix"`
		FormattedStreet string `json:"formatted_street"`
		City            string `json:"city"`
		County          string `json:"county"`
		State           string `json:"state"`
		Zip             string `json:"zip"`
		Country         string `json:"country"`
	} `json:"address_components"`
}

func (r geocodioResult) toResult() domain.Result {
	a := r.AddressComponents
	street := a.FormattedStreet
	if street == "" {
		street = strings.Join(nonEmpty(a.Predirectional, a.Street, a.Suffix), " ")
	}
	res := domain.Result{
		Latitude:         r.Location.Lat,
		Longitude:        r.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		CountryCode:      countryCode(a.Country),
		StateCode:        a.State,
		City:             a.City,
		ZipCode:          a.Zip,
		StreetName:       street,
		StreetNumber:     a.Number,
		County:           a.County,
		Extra: domain.Extra{
			Confidence: confidence(r.Accuracy),
			Fields: map[string]any{
				"accuracyType": r.AccuracyType,
				"source":       r.Source,
			},
		},
	}
	res.SetAdminLevel(1, "", a.State)
	res.SetAdminLevel(2, a.County, "")
	return res
}
