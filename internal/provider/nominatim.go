package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

// NominatimOptions configures the Nominatim-compatible adapters:
// openstreetmap, locationiq, pickpoint and openmapquest.
type NominatimOptions struct {
	APIKey   string
	Language string
	Country  string
	// Server overrides the base URL, e.g. a self-hosted Nominatim.
	Server string
}

// Nominatim implements the Nominatim search and reverse API shared by
// several hosted services. Only the base URL, the key parameter and the
// route names differ between them.
type Nominatim struct {
	base
	opts        NominatimOptions
	searchPath  string
	reversePath string
	keyParam    string
}

type nominatimFlavor struct {
	name         string
	server       string
	searchPath   string
	reversePath  string
	keyParam     string
	requireKey   bool
	requireHTTPS bool
}

func newNominatim(t domain.Transport, f nominatimFlavor, opts NominatimOptions) (*Nominatim, error) {
	b, err := newBase(f.name, addressOnly, t)
	if err != nil {
		return nil, err
	}
	if f.requireKey {
		if err := requireOption(f.name, "apiKey", opts.APIKey); err != nil {
			return nil, err
		}
	}
	if f.requireHTTPS {
		if err := requireHTTPS(f.name, t); err != nil {
			return nil, err
		}
	}
	if opts.Server == "" {
		opts.Server = f.server
	}
	opts.Server = strings.TrimRight(opts.Server, "/")
	return &Nominatim{
		base:        b,
		opts:        opts,
		searchPath:  f.searchPath,
		reversePath: f.reversePath,
		keyParam:    f.keyParam,
	}, nil
}

// NewOpenStreetMap targets the public Nominatim instance, or the osmServer override.
func NewOpenStreetMap(t domain.Transport, opts NominatimOptions) (*Nominatim, error) {
	return newNominatim(t, nominatimFlavor{
		name:        "openstreetmap",
		server:      "https://nominatim.openstreetmap.org",
		searchPath:  "/search",
		reversePath: "/reverse",
	}, opts)
}

// NewLocationIQ creates a Nominatim client for the LocationIQ hosted API.
// APIKey is required.
func NewLocationIQ(t domain.Transport, opts NominatimOptions) (*Nominatim, error) {
	return newNominatim(t, nominatimFlavor{
		name:        "locationiq",
		server:      "https://us1.locationiq.com/v1",
		searchPath:  "/search.php",
		reversePath: "/reverse.php",
		keyParam:    "key",
		requireKey:  true,
	}, opts)
}

// NewPickPoint creates a Nominatim client for the PickPoint hosted API. APIKey
// is required and the transport must support https.
func NewPickPoint(t domain.Transport, opts NominatimOptions) (*Nominatim, error) {
	return newNominatim(t, nominatimFlavor{
		name:         "pickpoint",
		server:       "https://api.pickpoint.io/v1",
		searchPath:   "/forward",
		reversePath:  "/reverse",
		keyParam:     "key",
		requireKey:   true,
		requireHTTPS: true,
	}, opts)
}

// NewOpenMapQuest creates a Nominatim client for the MapQuest open data API.
// APIKey is required.
func NewOpenMapQuest(t domain.Transport, opts NominatimOptions) (*Nominatim, error) {
	return newNominatim(t, nominatimFlavor{
		name:        "openmapquest",
		server:      "https://open.mapquestapi.com/nominatim/v1",
		searchPath:  "/search.php",
		reversePath: "/reverse.php",
		keyParam:    "key",
		requireKey:  true,
	}, opts)
}

func (n *Nominatim) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := n.check(q); err != nil {
		return nil, err
	}
	params := n.params(q.Language)
	if q.City != "" || q.ZipCode != "" || q.State != "" {
		setIf(params, "street", q.Address)
		setIf(params, "city", q.City)
		setIf(params, "state", q.State)
		setIf(params, "postalcode", q.ZipCode)
		setIf(params, "country", q.Country)
	} else {
		params.Set("q", q.Address)
		setIf(params, "countrycodes", strings.ToLower(pick(q.Country, n.opts.Country)))
	}
	setLimit(params, "limit", q.Limit)
	addExtra(params, q.Extra)

	resp, err := n.get(ctx, n.opts.Server+n.searchPath, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		if resp.StatusCode == http.StatusNotFound && n.unableToGeocode(resp.Body) {
			return newResultSet(nil, resp), nil
		}
		return nil, n.statusError(resp)
	}

	var places []nominatimPlace
	if err := decodeJSON(n.name, resp.Body, &places); err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(places))
	for _, p := range places {
		results = append(results, p.toResult())
	}
	return newResultSet(results, resp), nil
}

// Reverse resolves coordinates through the /reverse endpoint.
func (n *Nominatim) Reverse(ctx context.Context, q domain.ReverseQuery) (*domain.ResultSet, error) {
	params := n.params(q.Language)
	params.Set("lat", formatCoord(q.Lat))
	params.Set("lon", formatCoord(q.Lon))
	if q.Zoom > 0 {
		params.Set("zoom", strconv.Itoa(q.Zoom))
	}
	addExtra(params, q.Extra)

	resp, err := n.get(ctx, n.opts.Server+n.reversePath, params)
	if err != nil {
		return nil, err
	}
	if n.unableToGeocode(resp.Body) {
		return newResultSet(nil, resp), nil
	}
	if !resp.OK() {
		return nil, n.statusError(resp)
	}

	var p nominatimPlace
	if err := decodeJSON(n.name, resp.Body, &p); err != nil {
		return nil, err
	}
	return newResultSet([]domain.Result{p.toResult()}, resp), nil
}

func (n *Nominatim) params(lang string) url.Values {
	params := url.Values{
		"format":         {"json"},
		"addressdetails": {"1"},
	}
	setIf(params, "accept-language", pick(lang, n.opts.Language))
	if n.keyParam != "" {
		params.Set(n.keyParam, n.opts.APIKey)
	}
	return params
}

// unableToGeocode recognizes the {"error":"Unable to geocode"} reply that
// Nominatim servers use for "nothing here".
func (n *Nominatim) unableToGeocode(body []byte) bool {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return false
	}
	return strings.EqualFold(e.Error, "Unable to geocode")
}

func (n *Nominatim) statusError(resp *domain.Response) error {
	var e struct {
		Error any `json:"error"`
	}
	msg := ""
	if json.Unmarshal(resp.Body, &e) == nil {
		switch v := e.Error.(type) {
		case string:
			msg = v
		case map[string]any:
			msg, _ = v["message"].(string)
		}
	}
	return httpStatusError(n.name, resp, msg)
}

type nominatimPlace struct {
	PlaceID     json.Number `json:"place_id"`
	Lat         string      `json:"lat"`
	Lon         string      `json:"lon"`
	DisplayName string      `json:"display_name"`
	Importance  *float64    `json:"importance"`
	Class       string      `json:"class"`
	Type        string      `json:"type"`
	OSMID       json.Number `json:"osm_id"`
	OSMType     string      `json:"osm_type"`
	Address     struct {
		HouseNumber   string `json:"house_number"`
		Road          string `json:"road"`
		Neighbourhood string `json:"neighbourhood"`
		Suburb        string `json:"suburb"`
		CityDistrict  string `json:"city_district"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		Hamlet        string `json:"hamlet"`
		County        string `json:"county"`
		StateDistrict string `json:"state_district"`
		State         string `json:"state"`
		StateCode     string `json:"state_code"`
		Postcode      string `json:"postcode"`
		Country       string `json:"country"`
		CountryCode   string `json:"country_code"`
	} `json:"address"`
}

func (p nominatimPlace) toResult() domain.Result {
	a := p.Address
	res := domain.Result{
		Latitude:         parseFloat(p.Lat),
		Longitude:        parseFloat(p.Lon),
		FormattedAddress: p.DisplayName,
		Country:          a.Country,
		CountryCode:      countryCode(a.CountryCode),
		State:            a.State,
		StateCode:        a.StateCode,
		City:             firstNonEmpty(a.City, a.Town, a.Village, a.Hamlet),
		ZipCode:          a.Postcode,
		StreetName:       a.Road,
		StreetNumber:     a.HouseNumber,
		Neighbourhood:    firstNonEmpty(a.Neighbourhood, a.Suburb),
		District:         a.CityDistrict,
		County:           a.County,
		Extra: domain.Extra{
			PlaceID: p.PlaceID.String(),
			Fields: map[string]any{
				"osmId":   p.OSMID.String(),
				"osmType": p.OSMType,
				"class":   p.Class,
				"type":    p.Type,
			},
		},
	}
	if p.Importance != nil {
		res.Extra.Confidence = confidence(*p.Importance)
	}
	res.SetAdminLevel(1, a.State, a.StateCode)
	res.SetAdminLevel(2, a.StateDistrict, "")
	res.SetAdminLevel(3, a.County, "")
	return res
}
