package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const ipstackEndpoint = "http://api.ipstack.com"

// IPStackOptions configures the ipstack client.
type IPStackOptions struct {
	APIKey   string
	Endpoint string
}

// IPStack resolves IP addresses with the ipstack API. Address queries are
// rejected.
type IPStack struct {
	base
	opts IPStackOptions
}

// NewIPStack creates an ipstack IP lookup client. APIKey is required.
func NewIPStack(t domain.Transport, opts IPStackOptions) (*IPStack, error) {
	b, err := newBase("ipstack", domain.Capabilities{IPv4: true, IPv6: true}, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "apiKey", opts.APIKey); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = ipstackEndpoint
	}
	opts.Endpoint = strings.TrimRight(opts.Endpoint, "/")
	return &IPStack{base: b, opts: opts}, nil
}

func (s *IPStack) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	params := url.Values{"access_key": {s.opts.APIKey}}
	addExtra(params, q.Extra)

	resp, err := s.get(ctx, s.opts.Endpoint+"/"+url.PathEscape(strings.TrimSpace(q.Address)), params)
	if err != nil {
		return nil, err
	}

	var body ipstackResponse
	if err := decodeJSON(s.name, resp.Body, &body); err != nil {
		if !resp.OK() {
			return nil, httpStatusError(s.name, resp)
		}
		return nil, err
	}
	if !resp.OK() || body.Success != nil && !*body.Success {
		status := strconv.Itoa(resp.StatusCode)
		if body.Error.Code != 0 {
			status = strconv.Itoa(body.Error.Code)
		}
		return nil, upstreamError(s.name, status, firstNonEmpty(body.Error.Info, body.Error.Type), resp.Body)
	}
	if body.Latitude == nil || body.Longitude == nil {
		return newResultSet(nil, resp), nil
	}

	res := domain.Result{
		Latitude:    *body.Latitude,
		Longitude:   *body.Longitude,
		Country:     body.CountryName,
		CountryCode: countryCode(body.CountryCode),
		State:       body.RegionName,
		StateCode:   body.RegionCode,
		City:        body.City,
		ZipCode:     body.Zip,
		Extra: domain.Extra{
			Fields: map[string]any{"ip": body.IP, "type": body.Type},
		},
	}
	res.SetAdminLevel(1, body.RegionName, body.RegionCode)
	return newResultSet([]domain.Result{res}, resp), nil
}

type ipstackResponse struct {
	Success *bool `json:"success"`
	Error   struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
	IP          string   `json:"ip"`
	Type        string   `json:"type"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	CountryName string   `json:"country_name"`
	CountryCode string   `json:"country_code"`
	RegionName  string   `json:"region_name"`
	RegionCode  string   `json:"region_code"`
	City        string   `json:"city"`
	Zip         string   `json:"zip"`
}
