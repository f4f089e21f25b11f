package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // required by the premier URL signing scheme
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const googleEndpoint = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleOptions configures the Google Maps adapter. With ClientID set the
// APIKey is the premier signing secret and every URL is signed.
type GoogleOptions struct {
	APIKey   string
	ClientID string
	Channel  string
	Language string
	Region   string
	Endpoint string
}

// Google implements the Google Maps Geocoding API.
type Google struct {
	base
	opts   GoogleOptions
	secret []byte
}

// NewGoogle creates a Google Maps geocoding client. A keyed client needs an
// https transport; a premier ClientID also needs the signing key in APIKey.
func NewGoogle(t domain.Transport, opts GoogleOptions) (*Google, error) {
	b, err := newBase("google", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if opts.ClientID != "" {
		if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
			return nil, err
		}
	}
	if opts.APIKey != "" {
		if err := requireHTTPS(b.name, t); err != nil {
			return nil, err
		}
	}
	g := &Google{base: b, opts: opts}
	if opts.Endpoint == "" {
		g.opts.Endpoint = googleEndpoint
	}
	if opts.ClientID != "" {
		g.secret, err = base64.URLEncoding.DecodeString(opts.APIKey)
		if err != nil {
			return nil, &domain.ConfigurationError{Provider: b.name, Option: "apiKey", Reason: "is not a url-safe base64 signing key"}
		}
	}
	return g, nil
}

// Geocode runs a forward lookup, adding component filters for the structured fields.
func (g *Google) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := g.check(q); err != nil {
		return nil, err
	}
	params := url.Values{}
	setIf(params, "address", q.Address)

	var components []string
	if q.Country != "" {
		components = append(components, "country:"+q.Country)
	}
	if q.ZipCode != "" {
		components = append(components, "postal_code:"+q.ZipCode)
	}
	if q.City != "" {
		components = append(components, "locality:"+q.City)
	}
	if q.State != "" {
		components = append(components, "administrative_area:"+q.State)
	}
	if len(components) > 0 {
		params.Set("components", strings.Join(components, "|"))
	}
	setIf(params, "language", pick(q.Language, g.opts.Language))
	setIf(params, "region", g.opts.Region)
	addExtra(params, q.Extra)

	return g.fetch(ctx, params)
}

func (g *Google) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := url.Values{"latlng": {formatCoord(q.Lat) + "," + formatCoord(q.Lon)}}
	setIf(params, "language", pick(q.Language, g.opts.Language))
	addExtra(params, q.Extra)
	return g.fetch(ctx, params)
}

func (g *Google) fetch(ctx context.Context, params url.Values) (*domain.ResultSet, error) {
	endpoint := g.opts.Endpoint
	switch {
	case g.opts.ClientID != "":
		params.Set("client", g.opts.ClientID)
		setIf(params, "channel", g.opts.Channel)
		endpoint = g.sign(endpoint, params)
		params = nil
	case g.opts.APIKey != "":
		params.Set("key", g.opts.APIKey)
	}

	resp, err := g.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var body googleResponse
	if err := decodeJSON(g.name, resp.Body, &body); err != nil {
		if !resp.OK() {
			return nil, httpStatusError(g.name, resp)
		}
		return nil, err
	}
	if !resp.OK() && body.Status == "" {
		return nil, httpStatusError(g.name, resp, body.ErrorMessage)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return newResultSet(nil, resp), nil
	default:
		return nil, upstreamError(g.name, body.Status, body.ErrorMessage, resp.Body)
	}

	results := make([]domain.Result, 0, len(body.Results))
	for _, r := range body.Results {
		results = append(results, r.toResult())
	}
	return newResultSet(results, resp), nil
}

// sign appends the premier signature, computed over the path and the exact
// query string, as the last parameter of the URL.
func (g *Google) sign(endpoint string, params url.Values) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	u.RawQuery = params.Encode()

	mac := hmac.New(sha1.New, g.secret)
	mac.Write([]byte(u.EscapedPath() + "?" + u.RawQuery))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return u.String() + "&signature=" + sig
}

var googleLocationConfidence = map[string]float64{
	"ROOFTOP":            1,
	"RANGE_INTERPOLATED": 0.9,
	"GEOMETRIC_CENTER":   0.7,
	"APPROXIMATE":        0.5,
}

type googleResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	Results      []googleResult `json:"results"`
}

type googleResult struct {
	FormattedAddress  string `json:"formatted_address"`
	PlaceID           string `json:"place_id"`
	AddressComponents []struct {
		LongName  string   `json:"long_name"`
		ShortName string   `json:"short_name"`
		Types     []string `json:"types"`
	} `json:"address_components"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	Types []string `json:"types"`
}

func (r googleResult) toResult() domain.Result {
	res := domain.Result{
		Latitude:         r.Geometry.Location.Lat,
		Longitude:        r.Geometry.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		Extra: domain.Extra{
			PlaceID:    r.PlaceID,
			Confidence: lookupConfidence(googleLocationConfidence, r.Geometry.LocationType, -1),
			Fields: map[string]any{
				"googlePlaceId": r.PlaceID,
				"locationType":  r.Geometry.LocationType,
				"types":         r.Types,
			},
		},
	}

	for _, c := range r.AddressComponents {
		for _, typ := range c.Types {
			switch typ {
			case "country":
				res.Country = c.LongName
				res.CountryCode = countryCode(c.ShortName)
			case "administrative_area_level_1":
				res.State = c.LongName
				res.StateCode = c.ShortName
				res.SetAdminLevel(1, c.LongName, c.ShortName)
			case "administrative_area_level_2":
				res.County = c.LongName
				res.SetAdminLevel(2, c.LongName, c.ShortName)
			case "administrative_area_level_3":
				res.SetAdminLevel(3, c.LongName, c.ShortName)
			case "administrative_area_level_4":
				res.SetAdminLevel(4, c.LongName, c.ShortName)
			case "administrative_area_level_5":
				res.SetAdminLevel(5, c.LongName, c.ShortName)
			case "locality":
				res.City = c.LongName
			case "postal_town":
				res.City = firstNonEmpty(res.City, c.LongName)
			case "postal_code":
				res.ZipCode = c.LongName
			case "route":
				res.StreetName = c.LongName
			case "street_number":
				res.StreetNumber = c.LongName
			case "neighborhood":
				res.Neighbourhood = c.LongName
			case "sublocality", "sublocality_level_1":
				res.District = c.LongName
			}
		}
	}
	return res
}
