package provider

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/tidwall/gjson"
)

const (
	agolTokenEndpoint = "https://www.arcgis.com/sharing/oauth2/token"
	agolEndpoint      = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer"

	// Tokens are treated as expired this long before the server says so.
	agolTokenSkew = 30 * time.Second

	agolInvalidToken = 498
)

// AgolOptions configures the ArcGIS Online adapter.
type AgolOptions struct {
	ClientID      string
	ClientSecret  string
	Endpoint      string
	TokenEndpoint string
	Clock         clockwork.Clock
	Metrics       *observability.Metrics
}

// Agol implements the ArcGIS World Geocoding Service using an app token
// obtained with client credentials. The token is cached until it expires.
// Two calls racing past an expired token both refresh it; the last store wins.
type Agol struct {
	base
	opts  AgolOptions
	token atomic.Pointer[agolToken]
}

type agolToken struct {
	value   string
	expires time.Time
}

// NewAgol creates an ArcGIS Online client from OAuth client credentials. The
// transport must support https.
func NewAgol(t domain.Transport, opts AgolOptions) (*Agol, error) {
	b, err := newBase("agol", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "clientId", opts.ClientID); err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "clientSecret", opts.ClientSecret); err != nil {
		return nil, err
	}
	if err := requireHTTPS(b.name, t); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = agolEndpoint
	}
	if opts.TokenEndpoint == "" {
		opts.TokenEndpoint = agolTokenEndpoint
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Agol{base: b, opts: opts}, nil
}

func (a *Agol) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := a.check(q); err != nil {
		return nil, err
	}
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"f":         {"json"},
		"token":     {token},
		"text":      {strings.Join(nonEmpty(q.Address, q.City, q.State, q.ZipCode), ", ")},
		"outFields": {"*"},
	}
	setIf(params, "sourceCountry", q.Country)
	setIf(params, "langCode", q.Language)
	setLimit(params, "maxLocations", q.Limit)
	addExtra(params, q.Extra)

	resp, body, err := a.fetch(ctx, a.opts.Endpoint+"/find", params)
	if err != nil {
		return nil, err
	}

	var results []domain.Result
	body.Get("locations").ForEach(func(_, loc gjson.Result) bool {
		results = append(results, agolFindResult(loc))
		return true
	})
	return newResultSet(results, resp), nil
}

func (a *Agol) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{
		"f":        {"json"},
		"token":    {token},
		"location": {formatCoord(q.Lon) + "," + formatCoord(q.Lat)},
	}
	setIf(params, "langCode", q.Language)
	addExtra(params, q.Extra)

	resp, body, err := a.fetch(ctx, a.opts.Endpoint+"/reverseGeocode", params)
	if err != nil {
		if agolNoMatch(err) {
			return newResultSet(nil, resp), nil
		}
		return nil, err
	}
	if !body.Get("address").Exists() {
		return newResultSet(nil, resp), nil
	}
	return newResultSet([]domain.Result{agolReverseResult(body)}, resp), nil
}

// fetch returns the response alongside any error so callers can build an
// empty ResultSet from it.
func (a *Agol) fetch(ctx context.Context, endpoint string, params url.Values) (*domain.Response, gjson.Result, error) {
	resp, err := a.get(ctx, endpoint, params)
	if err != nil {
		return nil, gjson.Result{}, err
	}
	if !gjson.ValidBytes(resp.Body) {
		if !resp.OK() {
			return resp, gjson.Result{}, httpStatusError(a.name, resp)
		}
		return resp, gjson.Result{}, badResponse(a.name, "malformed response")
	}
	body := gjson.ParseBytes(resp.Body)
	if e := body.Get("error"); e.Exists() || !resp.OK() {
		code := e.Get("code").Int()
		if code == agolInvalidToken {
			a.token.Store(nil)
		}
		var details []string
		for _, d := range e.Get("details").Array() {
			details = append(details, d.String())
		}
		status := strconv.Itoa(resp.StatusCode)
		if code != 0 {
			status = strconv.FormatInt(code, 10)
		}
		msg := strings.Join(nonEmpty(e.Get("message").String(), strings.Join(details, " ")), ": ")
		return resp, body, upstreamError(a.name, status, msg, resp.Body)
	}
	return resp, body, nil
}

// accessToken returns the cached token, refreshing it once expired.
func (a *Agol) accessToken(ctx context.Context) (string, error) {
	now := a.opts.Clock.Now()
	if t := a.token.Load(); t != nil && now.Before(t.expires) {
		return t.value, nil
	}

	params := url.Values{
		"client_id":     {a.opts.ClientID},
		"client_secret": {a.opts.ClientSecret},
		"grant_type":    {"client_credentials"},
		"f":             {"json"},
	}
	resp, body, err := a.fetch(ctx, a.opts.TokenEndpoint, params)
	if err != nil {
		return "", err
	}
	value := body.Get("access_token").String()
	if value == "" {
		return "", upstreamError(a.name, strconv.Itoa(resp.StatusCode), "token response without access_token", resp.Body)
	}
	ttl := time.Duration(body.Get("expires_in").Int()) * time.Second
	a.token.Store(&agolToken{value: value, expires: now.Add(ttl - agolTokenSkew)})

	if a.opts.Metrics != nil {
		a.opts.Metrics.TokenRefreshes.WithLabelValues(a.name).Inc()
	}
	return value, nil
}

func agolNoMatch(err error) bool {
	var ue *domain.UpstreamError
	return errors.As(err, &ue) && strings.Contains(ue.Message, "Unable to find address")
}

func agolFindResult(loc gjson.Result) domain.Result {
	attrs := loc.Get("feature.attributes")
	res := agolAttributes(attrs)
	res.Latitude = loc.Get("feature.geometry.y").Float()
	res.Longitude = loc.Get("feature.geometry.x").Float()
	res.FormattedAddress = firstNonEmpty(attrs.Get("LongLabel").String(), loc.Get("name").String())
	if score := attrs.Get("Score"); score.Exists() {
		res.Extra.Confidence = confidence(score.Float() / 100)
	}
	return res
}

func agolReverseResult(body gjson.Result) domain.Result {
	attrs := body.Get("address")
	res := agolAttributes(attrs)
	res.Latitude = body.Get("location.y").Float()
	res.Longitude = body.Get("location.x").Float()
	res.FormattedAddress = firstNonEmpty(attrs.Get("LongLabel").String(), attrs.Get("Match_addr").String())
	if res.StreetName == "" {
		res.StreetNumber, res.StreetName = splitStreet(attrs.Get("Address").String())
	}
	return res
}

func agolAttributes(attrs gjson.Result) domain.Result {
	res := domain.Result{
		CountryCode:   countryCode(firstNonEmpty(attrs.Get("Country").String(), attrs.Get("CountryCode").String())),
		State:         attrs.Get("Region").String(),
		StateCode:     attrs.Get("RegionAbbr").String(),
		City:          attrs.Get("City").String(),
		ZipCode:       attrs.Get("Postal").String(),
		StreetNumber:  attrs.Get("AddNum").String(),
		Neighbourhood: firstNonEmpty(attrs.Get("Nbrhd").String(), attrs.Get("Neighborhood").String()),
		District:      attrs.Get("District").String(),
		County:        attrs.Get("Subregion").String(),
		Extra: domain.Extra{
			Fields: map[string]any{"addrType": attrs.Get("Addr_type").String()},
		},
	}
	res.StreetName = strings.Join(nonEmpty(attrs.Get("StPreDir").String(), attrs.Get("StName").String(), attrs.Get("StType").String()), " ")
	res.SetAdminLevel(1, res.State, res.StateCode)
	res.SetAdminLevel(2, res.County, "")
	return res
}
