package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/tidwall/gjson"
)

const virtualearthEndpoint = "https://dev.virtualearth.net/REST/v1/Locations"

// VirtualEarthOptions configures the Bing Maps locations client.
type VirtualEarthOptions struct {
	APIKey   string
	Language string
	Endpoint string
}

// VirtualEarth implements the Bing Maps Locations API.
type VirtualEarth struct {
	base
	opts VirtualEarthOptions
}

var virtualearthConfidence = map[string]float64{
	"High":   1,
	"Medium": 0.7,
	"Low":    0.4,
}

// NewVirtualEarth creates a Bing Maps locations client. APIKey is required.
func NewVirtualEarth(t domain.Transport, opts VirtualEarthOptions) (*VirtualEarth, error) {
	b, err := newBase("virtualearth", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = virtualearthEndpoint
	}
	return &VirtualEarth{base: b, opts: opts}, nil
}

func (v *VirtualEarth) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := v.check(q); err != nil {
		return nil, err
	}
	params := v.params(q.Language)
	params.Set("q", strings.Join(nonEmpty(q.Address, q.City, q.State, q.ZipCode, q.Country), ", "))
	setLimit(params, "maxResults", q.Limit)
	addExtra(params, q.Extra)
	return v.fetch(ctx, v.opts.Endpoint, params)
}

func (v *VirtualEarth) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := v.params(q.Language)
	addExtra(params, q.Extra)
	return v.fetch(ctx, v.opts.Endpoint+"/"+formatCoord(q.Lat)+","+formatCoord(q.Lon), params)
}

func (v *VirtualEarth) params(lang string) url.Values {
	params := url.Values{"key": {v.opts.APIKey}, "incl": {"ciso2"}}
	setIf(params, "culture", pick(lang, v.opts.Language))
	return params
}

func (v *VirtualEarth) fetch(ctx context.Context, endpoint string, params url.Values) (*domain.ResultSet, error) {
	resp, err := v.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		if !resp.OK() {
			return nil, httpStatusError(v.name, resp)
		}
		return nil, badResponse(v.name, "malformed response")
	}
	body := gjson.ParseBytes(resp.Body)
	if status := body.Get("statusCode").Int(); !resp.OK() || (status != 0 && status != 200) {
		var details []string
		for _, d := range body.Get("errorDetails").Array() {
			details = append(details, d.String())
		}
		msg := firstNonEmpty(strings.Join(details, "; "), body.Get("statusDescription").String())
		code := strconv.Itoa(resp.StatusCode)
		if status > 0 {
			code = strconv.FormatInt(status, 10)
		}
		return nil, upstreamError(v.name, code, msg, resp.Body)
	}

	var results []domain.Result
	body.Get("resourceSets.0.resources").ForEach(func(_, r gjson.Result) bool {
		results = append(results, virtualearthResult(r))
		return true
	})
	return newResultSet(results, resp), nil
}

func virtualearthResult(r gjson.Result) domain.Result {
	a := r.Get("address")
	res := domain.Result{
		Latitude:         r.Get("point.coordinates.0").Float(),
		Longitude:        r.Get("point.coordinates.1").Float(),
		FormattedAddress: a.Get("formattedAddress").String(),
		Country:          a.Get("countryRegion").String(),
		CountryCode:      countryCode(a.Get("countryRegionIso2").String()),
		StateCode:        a.Get("adminDistrict").String(),
		City:             a.Get("locality").String(),
		ZipCode:          a.Get("postalCode").String(),
		Neighbourhood:    a.Get("neighborhood").String(),
		County:           a.Get("adminDistrict2").String(),
		Extra: domain.Extra{
			Confidence: lookupConfidence(virtualearthConfidence, r.Get("confidence").String(), -1),
			Fields: map[string]any{
				"entityType": r.Get("entityType").String(),
				"matchCodes": r.Get("matchCodes").Value(),
			},
		},
	}
	res.StreetNumber, res.StreetName = splitStreet(a.Get("addressLine").String())
	res.State = res.StateCode
	res.SetAdminLevel(1, res.State, res.StateCode)
	res.SetAdminLevel(2, res.County, "")
	return res
}
