package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/tidwall/gjson"
)

const tomtomEndpoint = "https://api.tomtom.com/search/2"

// TomTomOptions configures the TomTom search client.
type TomTomOptions struct {
	APIKey   string
	Language string
	Country  string
	Endpoint string
}

// TomTom implements the TomTom Search API geocode and reverseGeocode routes.
type TomTom struct {
	base
	opts TomTomOptions
}

// NewTomTom creates a TomTom search client. APIKey is required.
func NewTomTom(t domain.Transport, opts TomTomOptions) (*TomTom, error) {
	b, err := newBase("tomtom", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tomtomEndpoint
	}
	return &TomTom{base: b, opts: opts}, nil
}

func (t *TomTom) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := t.check(q); err != nil {
		return nil, err
	}
	text := strings.Join(nonEmpty(q.Address, q.City, q.State, q.ZipCode), ", ")

	params := url.Values{"key": {t.opts.APIKey}}
	setIf(params, "language", pick(q.Language, t.opts.Language))
	setIf(params, "countrySet", pick(q.Country, t.opts.Country))
	setLimit(params, "limit", q.Limit)
	addExtra(params, q.Extra)

	endpoint := fmt.Sprintf("%s/geocode/%s.json", t.opts.Endpoint, url.PathEscape(text))
	return t.fetch(ctx, endpoint, params, "results", "position.lat", "position.lon")
}

func (t *TomTom) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := url.Values{"key": {t.opts.APIKey}}
	setIf(params, "language", pick(q.Language, t.opts.Language))
	addExtra(params, q.Extra)

	endpoint := fmt.Sprintf("%s/reverseGeocode/%s,%s.json", t.opts.Endpoint, formatCoord(q.Lat), formatCoord(q.Lon))
	return t.fetch(ctx, endpoint, params, "addresses", "", "")
}

// fetch reads result items from listPath. Geocode items carry an object
// position; reverse items carry a "lat,lon" string.
func (t *TomTom) fetch(ctx context.Context, endpoint string, params url.Values, listPath, latPath, lonPath string) (*domain.ResultSet, error) {
	resp, err := t.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		if !resp.OK() {
			return nil, httpStatusError(t.name, resp)
		}
		return nil, badResponse(t.name, "malformed response")
	}
	body := gjson.ParseBytes(resp.Body)
	if !resp.OK() {
		return nil, httpStatusError(t.name, resp,
			body.Get("detailedError.message").String(),
			body.Get("errorText").String(),
			body.Get("error").String(),
		)
	}

	var results []domain.Result
	body.Get(listPath).ForEach(func(_, item gjson.Result) bool {
		res := tomtomResult(item)
		if latPath != "" {
			res.Latitude = item.Get(latPath).Float()
			res.Longitude = item.Get(lonPath).Float()
		} else if lat, lon, ok := strings.Cut(item.Get("position").String(), ","); ok {
			res.Latitude = parseFloat(lat)
			res.Longitude = parseFloat(lon)
		}
		results = append(results, res)
		return true
	})
	return newResultSet(results, resp), nil
}

func tomtomResult(item gjson.Result) domain.Result {
	a := item.Get("address")
	res := domain.Result{
		FormattedAddress: a.Get("freeformAddress").String(),
		Country:          a.Get("country").String(),
		CountryCode:      countryCode(a.Get("countryCode").String()),
		State:            firstNonEmpty(a.Get("countrySubdivisionName").String(), a.Get("countrySubdivision").String()),
		StateCode:        a.Get("countrySubdivisionCode").String(),
		City:             a.Get("municipality").String(),
		ZipCode:          a.Get("postalCode").String(),
		StreetName:       a.Get("streetName").String(),
		StreetNumber:     a.Get("streetNumber").String(),
		District:         a.Get("municipalitySubdivision").String(),
		County:           a.Get("countrySecondarySubdivision").String(),
		Extra: domain.Extra{
			PlaceID: item.Get("id").String(),
			Fields:  map[string]any{"type": item.Get("type").String()},
		},
	}
	if score := item.Get("matchConfidence.score"); score.Exists() {
		res.Extra.Confidence = confidence(score.Float())
	}
	if res.StateCode == "" {
		res.StateCode = a.Get("countrySubdivision").String()
	}
	res.SetAdminLevel(1, res.State, res.StateCode)
	res.SetAdminLevel(2, res.County, "")
	if n := a.Get("countryCodeISO3").String(); n != "" && res.CountryCode == "" {
		res.CountryCode = countryCode(n)
	}
	if s := item.Get("score"); s.Exists() {
		res.Extra.Fields["score"] = s.Float()
	}
	return res
}
