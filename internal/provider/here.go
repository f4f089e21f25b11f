package provider

import (
	"context"
	"net/url"
	"strconv"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/tidwall/gjson"
)

const (
	hereKeyEndpoint           = "https://geocoder.ls.hereapi.com/6.2"
	hereReverseKeyEndpoint    = "https://reverse.geocoder.ls.hereapi.com/6.2"
	hereLegacyEndpoint        = "https://geocoder.api.here.com/6.2"
	hereReverseLegacyEndpoint = "https://reverse.geocoder.api.here.com/6.2"
	hereDefaultRadius         = "250"
	hereDefaultMaxItems       = "20"
)

// HereOptions configures the HERE adapter. Either APIKey or the legacy
// AppID/AppCode pair is required.
type HereOptions struct {
	APIKey        string
	AppID         string
	AppCode       string
	Language      string
	PoliticalView string
	Country       string
	State         string
	// Endpoint and ReverseEndpoint override the base URLs.
	Endpoint        string
	ReverseEndpoint string
}

// Here implements the HERE Geocoder API 6.2.
type Here struct {
	base
	opts HereOptions
}

// NewHere creates a HERE geocoding client. It picks the apiKey endpoint when
// APIKey is set and the legacy one otherwise.
func NewHere(t domain.Transport, opts HereOptions) (*Here, error) {
	b, err := newBase("here", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if opts.APIKey == "" {
		if opts.AppID == "" || opts.AppCode == "" {
			return nil, &domain.ConfigurationError{Provider: b.name, Option: "apiKey", Reason: "or appId and appCode are required"}
		}
	}
	switch {
	case opts.Endpoint != "":
	case opts.APIKey != "":
		opts.Endpoint = hereKeyEndpoint
	default:
		opts.Endpoint = hereLegacyEndpoint
	}
	switch {
	case opts.ReverseEndpoint != "":
	case opts.APIKey != "":
		opts.ReverseEndpoint = hereReverseKeyEndpoint
	default:
		opts.ReverseEndpoint = hereReverseLegacyEndpoint
	}
	return &Here{base: b, opts: opts}, nil
}

func (h *Here) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := h.check(q); err != nil {
		return nil, err
	}
	params := h.params(q.Language)
	setIf(params, "searchtext", q.Address)
	setIf(params, "country", pick(q.Country, h.opts.Country))
	setIf(params, "state", pick(q.State, h.opts.State))
	setIf(params, "city", q.City)
	setIf(params, "postalcode", q.ZipCode)
	setLimit(params, "maxresults", q.Limit)
	addExtra(params, q.Extra)

	return h.fetch(ctx, h.opts.Endpoint+"/geocode.json", params)
}

func (h *Here) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := h.params(q.Language)
	params.Set("prox", formatCoord(q.Lat)+","+formatCoord(q.Lon)+","+hereDefaultRadius)
	params.Set("mode", "retrieveAddresses")
	params.Set("maxresults", hereDefaultMaxItems)
	addExtra(params, q.Extra)

	return h.fetch(ctx, h.opts.ReverseEndpoint+"/reversegeocode.json", params)
}

func (h *Here) params(lang string) url.Values {
	params := url.Values{"additionaldata": {"IncludeShapeLevel,default"}, "gen": {"9"}}
	if h.opts.APIKey != "" {
		params.Set("apiKey", h.opts.APIKey)
	} else {
		params.Set("app_id", h.opts.AppID)
		params.Set("app_code", h.opts.AppCode)
	}
	setIf(params, "language", pick(lang, h.opts.Language))
	setIf(params, "politicalview", h.opts.PoliticalView)
	return params
}

func (h *Here) fetch(ctx context.Context, endpoint string, params url.Values) (*domain.ResultSet, error) {
	resp, err := h.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		if !resp.OK() {
			return nil, httpStatusError(h.name, resp)
		}
		return nil, badResponse(h.name, "malformed response")
	}

	body := gjson.ParseBytes(resp.Body)
	if !resp.OK() || body.Get("type").String() == "ApplicationError" {
		status := firstNonEmpty(body.Get("subtype").String(), body.Get("error").String(), strconv.Itoa(resp.StatusCode))
		msg := firstNonEmpty(body.Get("Details").String(), body.Get("error_description").String())
		return nil, upstreamError(h.name, status, msg, resp.Body)
	}

	var results []domain.Result
	body.Get("Response.View.0.Result").ForEach(func(_, r gjson.Result) bool {
		results = append(results, hereResult(r))
		return true
	})
	return newResultSet(results, resp), nil
}

func hereResult(r gjson.Result) domain.Result {
	loc := r.Get("Location")
	addr := loc.Get("Address")
	additional := map[string]string{}
	addr.Get("AdditionalData").ForEach(func(_, kv gjson.Result) bool {
		additional[kv.Get("key").String()] = kv.Get("value").String()
		return true
	})

	res := domain.Result{
		Latitude:         loc.Get("DisplayPosition.Latitude").Float(),
		Longitude:        loc.Get("DisplayPosition.Longitude").Float(),
		FormattedAddress: addr.Get("Label").String(),
		Country:          additional["CountryName"],
		CountryCode:      countryCode(addr.Get("Country").String()),
		State:            additional["StateName"],
		StateCode:        addr.Get("State").String(),
		City:             addr.Get("City").String(),
		ZipCode:          addr.Get("PostalCode").String(),
		StreetName:       addr.Get("Street").String(),
		StreetNumber:     addr.Get("HouseNumber").String(),
		District:         addr.Get("District").String(),
		County:           firstNonEmpty(additional["CountyName"], addr.Get("County").String()),
		Extra: domain.Extra{
			PlaceID: loc.Get("LocationId").String(),
			Fields: map[string]any{
				"matchLevel": r.Get("MatchLevel").String(),
				"matchType":  r.Get("MatchType").String(),
			},
		},
	}
	if rel := r.Get("Relevance"); rel.Exists() {
		res.Extra.Confidence = confidence(rel.Float())
	}
	res.SetAdminLevel(1, res.State, res.StateCode)
	res.SetAdminLevel(2, res.County, addr.Get("County").String())
	return res
}
