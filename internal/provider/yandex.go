package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/tidwall/gjson"
)

const yandexEndpoint = "https://geocode-maps.yandex.ru/1.x/"

// YandexOptions configures the Yandex geocoder client.
type YandexOptions struct {
	APIKey   string
	Language string
	Endpoint string
}

// Yandex implements the Yandex Geocoder HTTP API.
type Yandex struct {
	base
	opts YandexOptions
}

var yandexPrecision = map[string]float64{
	"exact":  1,
	"number": 0.9,
	"near":   0.8,
	"range":  0.7,
	"street": 0.6,
}

// NewYandex creates a Yandex geocoder client. APIKey is required.
func NewYandex(t domain.Transport, opts YandexOptions) (*Yandex, error) {
	b, err := newBase("yandex", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = yandexEndpoint
	}
	return &Yandex{base: b, opts: opts}, nil
}

func (y *Yandex) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := y.check(q); err != nil {
		return nil, err
	}
	params := y.params(q.Language)
	params.Set("geocode", strings.Join(nonEmpty(q.Address, q.City, q.State, q.ZipCode, q.Country), ", "))
	setLimit(params, "results", q.Limit)
	addExtra(params, q.Extra)
	return y.fetch(ctx, params)
}

func (y *Yandex) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := y.params(q.Language)
	// Yandex expects "lon,lat".
	params.Set("geocode", formatCoord(q.Lon)+","+formatCoord(q.Lat))
	addExtra(params, q.Extra)
	return y.fetch(ctx, params)
}

func (y *Yandex) params(lang string) url.Values {
	params := url.Values{"apikey": {y.opts.APIKey}, "format": {"json"}}
	setIf(params, "lang", pick(lang, y.opts.Language))
	return params
}

func (y *Yandex) fetch(ctx context.Context, params url.Values) (*domain.ResultSet, error) {
	resp, err := y.get(ctx, y.opts.Endpoint, params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		if !resp.OK() {
			return nil, httpStatusError(y.name, resp)
		}
		return nil, badResponse(y.name, "malformed response")
	}
	body := gjson.ParseBytes(resp.Body)
	if !resp.OK() || body.Get("error").Exists() {
		status := firstNonEmpty(body.Get("statusCode").String(), strconv.Itoa(resp.StatusCode))
		return nil, upstreamError(y.name, status, firstNonEmpty(body.Get("message").String(), body.Get("error").String()), resp.Body)
	}

	var results []domain.Result
	body.Get("response.GeoObjectCollection.featureMember").ForEach(func(_, m gjson.Result) bool {
		results = append(results, yandexResult(m.Get("GeoObject")))
		return true
	})
	return newResultSet(results, resp), nil
}

func yandexResult(obj gjson.Result) domain.Result {
	meta := obj.Get("metaDataProperty.GeocoderMetaData")
	addr := meta.Get("Address")

	res := domain.Result{
		FormattedAddress: firstNonEmpty(addr.Get("formatted").String(), meta.Get("text").String()),
		CountryCode:      countryCode(addr.Get("country_code").String()),
		ZipCode:          addr.Get("postal_code").String(),
		Extra: domain.Extra{
			Confidence: lookupConfidence(yandexPrecision, meta.Get("precision").String(), 0.4),
			Fields: map[string]any{
				"kind":      meta.Get("kind").String(),
				"precision": meta.Get("precision").String(),
			},
		},
	}
	if lon, lat, ok := strings.Cut(obj.Get("Point.pos").String(), " "); ok {
		res.Longitude = parseFloat(lon)
		res.Latitude = parseFloat(lat)
	}

	provinces := 0
	addr.Get("Components").ForEach(func(_, c gjson.Result) bool {
		name := c.Get("name").String()
		switch c.Get("kind").String() {
		case "country":
			res.Country = name
		case "province":
			provinces++
			res.SetAdminLevel(provinces, name, "")
			if res.State == "" || provinces > 1 {
				res.State = name
			}
		case "area":
			res.County = name
		case "locality":
			res.City = name
		case "district":
			res.District = firstNonEmpty(res.District, name)
		case "street":
			res.StreetName = name
		case "house":
			res.StreetNumber = name
		}
		return true
	})
	return res
}
