package provider

import (
	"context"
	"net/url"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

const smartystreetsEndpoint = "https://us-street.api.smartystreets.com/street-address"

// SmartyStreetsOptions configures the US street address API.
type SmartyStreetsOptions struct {
	AuthID    string
	AuthToken string
	Endpoint  string
}

// SmartyStreets implements US street address verification. It has no
// reverse route.
type SmartyStreets struct {
	base
	opts SmartyStreetsOptions
}

var smartystreetsPrecision = map[string]float64{
	"Zip9": 1,
	"Zip8": 0.9,
	"Zip7": 0.8,
	"Zip6": 0.7,
	"Zip5": 0.6,
}

// NewSmartyStreets creates a SmartyStreets US street address client. AuthID and
// AuthToken are required.
func NewSmartyStreets(t domain.Transport, opts SmartyStreetsOptions) (*SmartyStreets, error) {
	b, err := newBase("smartystreets", addressOnly, t)
	if err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "authId", opts.AuthID); err != nil {
		return nil, err
	}
	if err := requireOption(b.name, "authToken", opts.AuthToken); err != nil {
		return nil, err
	}
	if opts.Endpoint == "" {
		opts.Endpoint = smartystreetsEndpoint
	}
	return &SmartyStreets{base: b, opts: opts}, nil
}

func (s *SmartyStreets) Geocode(ctx context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	params := url.Values{
		"auth-id":    {s.opts.AuthID},
		"auth-token": {s.opts.AuthToken},
		"street":     {q.Address},
	}
	setIf(params, "city", q.City)
	setIf(params, "state", q.State)
	setIf(params, "zipcode", q.ZipCode)
	setLimit(params, "candidates", q.Limit)
	addExtra(params, q.Extra)

	resp, err := s.get(ctx, s.opts.Endpoint, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, httpStatusError(s.name, resp)
	}

	var candidates []smartystreetsCandidate
	if err := decodeJSON(s.name, resp.Body, &candidates); err != nil {
		return nil, err
	}
	results := make([]domain.Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.toResult())
	}
	return newResultSet(results, resp), nil
}

type smartystreetsCandidate struct {
	DeliveryLine1 string `json:"delivery_line_1"`
	LastLine      string `json:"last_line"`
	DeliveryPoint string `json:"delivery_point_barcode"`
	Components    struct {
		PrimaryNumber      string `json:"primary_number"`
		StreetPredirection string `json:"street_predirection"`
		StreetName         string `json:"street_name"`
		StreetSuffix       string `json:"street_suffix"`
		CityName           string `json:"city_name"`
		StateAbbreviation  string `json:"state_abbreviation"`
		Zipcode            string `json:"zipcode"`
		Plus4Code          string `json:"plus4_code"`
	} `json:"components"`
	Metadata struct {
		Latitude   float64 `json:"latitude"`
		Longitude  float64 `json:"longitude"`
		CountyName string  `json:"county_name"`
		CountyFIPS string  `json:"county_fips"`
		Precision  string  `json:"precision"`
		RecordType string  `json:"record_type"`
	} `json:"metadata"`
}

func (c smartystreetsCandidate) toResult() domain.Result {
	comp := c.Components
	res := domain.Result{
		Latitude:         c.Metadata.Latitude,
		Longitude:        c.Metadata.Longitude,
		FormattedAddress: strings.Join(nonEmpty(c.DeliveryLine1, c.LastLine), " "),
		Country:          "United States",
		CountryCode:      "US",
		StateCode:        comp.StateAbbreviation,
		City:             comp.CityName,
		ZipCode:          comp.Zipcode,
		StreetName:       strings.Join(nonEmpty(comp.StreetPredirection, comp.StreetName, comp.StreetSuffix), " "),
		StreetNumber:     comp.PrimaryNumber,
		County:           c.Metadata.CountyName,
		Extra: domain.Extra{
			PlaceID:    c.DeliveryPoint,
			Confidence: lookupConfidence(smartystreetsPrecision, c.Metadata.Precision, 0.3),
			Fields: map[string]any{
				"plus4":      comp.Plus4Code,
				"countyFips": c.Metadata.CountyFIPS,
				"recordType": c.Metadata.RecordType,
				"precision":  c.Metadata.Precision,
			},
		},
	}
	res.SetAdminLevel(1, "", comp.StateAbbreviation)
	res.SetAdminLevel(2, c.Metadata.CountyName, "")
	return res
}
