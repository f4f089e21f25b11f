package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport is a hand-rolled counting fake of domain.Transport.
type mockTransport struct {
	mu        sync.Mutex
	calls     int
	endpoints []string
	params    []url.Values
	noHTTPS   bool
	respond   func(endpoint string, params url.Values) (*domain.Response, error)
}

func (m *mockTransport) Get(_ context.Context, endpoint string, params url.Values) (*domain.Response, error) {
	m.mu.Lock()
	m.calls++
	m.endpoints = append(m.endpoints, endpoint)
	m.params = append(m.params, params)
	m.mu.Unlock()
	if m.respond == nil {
		return jsonResponse(http.StatusOK, `{}`), nil
	}
	return m.respond(endpoint, params)
}

func (m *mockTransport) SupportsHTTPS() bool { return !m.noHTTPS }

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockTransport) lastParams() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params[len(m.params)-1]
}

func (m *mockTransport) lastEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoints[len(m.endpoints)-1]
}

func jsonResponse(status int, body string) *domain.Response {
	return &domain.Response{StatusCode: status, Header: http.Header{}, Body: []byte(body)}
}

// replyWith answers every request with body, except agol token requests.
func replyWith(status int, body string) func(string, url.Values) (*domain.Response, error) {
	return func(endpoint string, _ url.Values) (*domain.Response, error) {
		if strings.Contains(endpoint, "oauth2/token") {
			return jsonResponse(http.StatusOK, `{"access_token":"tok","expires_in":7200}`), nil
		}
		return jsonResponse(status, body), nil
	}
}

type adapterCase struct {
	name  string
	build func(t domain.Transport) (domain.Geocoder, error)
}

func adapters() []adapterCase {
	return []adapterCase{
		{"google", func(t domain.Transport) (domain.Geocoder, error) { return NewGoogle(t, GoogleOptions{APIKey: "k"}) }},
		{"here", func(t domain.Transport) (domain.Geocoder, error) { return NewHere(t, HereOptions{APIKey: "k"}) }},
		{"openstreetmap", func(t domain.Transport) (domain.Geocoder, error) {
			return NewOpenStreetMap(t, NominatimOptions{})
		}},
		{"locationiq", func(t domain.Transport) (domain.Geocoder, error) {
			return NewLocationIQ(t, NominatimOptions{APIKey: "k"})
		}},
		{"pickpoint", func(t domain.Transport) (domain.Geocoder, error) {
			return NewPickPoint(t, NominatimOptions{APIKey: "k"})
		}},
		{"openmapquest", func(t domain.Transport) (domain.Geocoder, error) {
			return NewOpenMapQuest(t, NominatimOptions{APIKey: "k"})
		}},
		{"mapbox", func(t domain.Transport) (domain.Geocoder, error) { return NewMapbox(t, MapboxOptions{APIKey: "k"}) }},
		{"tomtom", func(t domain.Transport) (domain.Geocoder, error) { return NewTomTom(t, TomTomOptions{APIKey: "k"}) }},
		{"yandex", func(t domain.Transport) (domain.Geocoder, error) { return NewYandex(t, YandexOptions{APIKey: "k"}) }},
		{"opencage", func(t domain.Transport) (domain.Geocoder, error) { return NewOpenCage(t, OpenCageOptions{APIKey: "k"}) }},
		{"mapquest", func(t domain.Transport) (domain.Geocoder, error) { return NewMapQuest(t, MapQuestOptions{APIKey: "k"}) }},
		{"agol", func(t domain.Transport) (domain.Geocoder, error) {
			return NewAgol(t, AgolOptions{ClientID: "id", ClientSecret: "secret"})
		}},
		{"geocodio", func(t domain.Transport) (domain.Geocoder, error) { return NewGeocodio(t, GeocodioOptions{APIKey: "k"}) }},
		{"virtualearth", func(t domain.Transport) (domain.Geocoder, error) {
			return NewVirtualEarth(t, VirtualEarthOptions{APIKey: "k"})
		}},
		{"smartystreets", func(t domain.Transport) (domain.Geocoder, error) {
			return NewSmartyStreets(t, SmartyStreetsOptions{AuthID: "id", AuthToken: "token"})
		}},
		{"ipstack", func(t domain.Transport) (domain.Geocoder, error) { return NewIPStack(t, IPStackOptions{APIKey: "k"}) }},
	}
}

func TestCapabilityGate_NoTransportCall(t *testing.T) {
	for _, tc := range adapters() {
		t.Run(tc.name, func(t *testing.T) {
			tr := &mockTransport{}
			g, err := tc.build(tr)
			require.NoError(t, err)
			assert.Equal(t, tc.name, g.Name())

			caps := g.Capabilities()
			for _, q := range []string{"127.0.0.1", "2001:db8::1", "1600 Amphitheatre Parkway"} {
				kind := domain.Classify(q)
				if caps.Supports(kind) {
					continue
				}
				_, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: q})

				var capErr *domain.CapabilityError
				require.ErrorAs(t, err, &capErr, q)
				assert.Equal(t, kind, capErr.Kind)
				assert.Equal(t, tc.name, capErr.Provider)
				assert.ErrorIs(t, err, domain.ErrNotSupported)
			}
			assert.Zero(t, tr.callCount(), "rejected queries must not reach the transport")
		})
	}
}

func TestMaxMind_RejectsAddressWithoutLookup(t *testing.T) {
	db := &fakeCityReader{}
	m := newMaxMind(db, "")

	_, err := m.Geocode(context.Background(), domain.GeocodeQuery{Address: "10 Downing Street"})

	var capErr *domain.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, domain.QueryAddress, capErr.Kind)
	assert.Zero(t, db.calls)
}

// sampleQuery returns a query each adapter accepts.
func sampleQuery(g domain.Geocoder) domain.GeocodeQuery {
	if g.Capabilities().Address {
		return domain.GeocodeQuery{Address: "29 rue chevreul, Lyon"}
	}
	return domain.GeocodeQuery{Address: "8.8.8.8"}
}

var emptyPayloads = map[string]string{
	"google":        `{"status":"ZERO_RESULTS","results":[]}`,
	"here":          `{"Response":{"View":[]}}`,
	"openstreetmap": `[]`,
	"locationiq":    `[]`,
	"pickpoint":     `[]`,
	"openmapquest":  `[]`,
	"mapbox":        `{"type":"FeatureCollection","features":[]}`,
	"tomtom":        `{"summary":{"numResults":0},"results":[]}`,
	"yandex":        `{"response":{"GeoObjectCollection":{"featureMember":[]}}}`,
	"opencage":      `{"status":{"code":200,"message":"OK"},"results":[]}`,
	"mapquest":      `{"info":{"statuscode":0,"messages":[]},"results":[{"locations":[]}]}`,
	"agol":          `{"spatialReference":{"wkid":4326},"locations":[]}`,
	"geocodio":      `{"input":{},"results":[]}`,
	"virtualearth":  `{"statusCode":200,"resourceSets":[{"estimatedTotal":0,"resources":[]}]}`,
	"smartystreets": `[]`,
	"ipstack":       `{"ip":"8.8.8.8","latitude":null,"longitude":null}`,
}

func TestGeocode_ZeroResultsIsSuccess(t *testing.T) {
	for _, tc := range adapters() {
		t.Run(tc.name, func(t *testing.T) {
			payload, ok := emptyPayloads[tc.name]
			require.True(t, ok, "missing empty payload fixture")

			g, err := tc.build(&mockTransport{respond: replyWith(http.StatusOK, payload)})
			require.NoError(t, err)

			rs, err := g.Geocode(context.Background(), sampleQuery(g))
			require.NoError(t, err)
			require.NotNil(t, rs)
			assert.Zero(t, rs.Len())
			assert.JSONEq(t, payload, string(rs.Raw))

			out, err := json.Marshal(rs)
			require.NoError(t, err)
			assert.Equal(t, "[]", string(out))
		})
	}
}

var upstreamFailures = map[string]struct {
	status     int
	body       string
	wantStatus string
}{
	"google":        {200, `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid.","results":[]}`, "REQUEST_DENIED"},
	"here":          {401, `{"error":"Unauthorized","error_description":"Invalid app_id app_code combination"}`, "Unauthorized"},
	"openstreetmap": {500, `{"error":{"code":500,"message":"Internal Server Error"}}`, "500"},
	"locationiq":    {401, `{"error":"Invalid key"}`, "401"},
	"pickpoint":     {401, `{"error":"Invalid key"}`, "401"},
	"openmapquest":  {403, `{"error":"Forbidden"}`, "403"},
	"mapbox":        {401, `{"message":"Not Authorized - Invalid Token"}`, "401"},
	"tomtom":        {403, `{"errorText":"Developer Inactive"}`, "403"},
	"yandex":        {403, `{"statusCode":403,"error":"Forbidden","message":"Invalid api key"}`, "403"},
	"opencage":      {401, `{"status":{"code":401,"message":"invalid API key"},"results":[]}`, "401"},
	"mapquest":      {200, `{"info":{"statuscode":403,"messages":["This key is not authorized for this service."]},"results":[]}`, "403"},
	"agol":          {200, `{"error":{"code":498,"message":"Invalid Token","details":[]}}`, "498"},
	"geocodio":      {403, `{"error":"Invalid API key"}`, "403"},
	"virtualearth":  {401, `{"statusCode":401,"statusDescription":"Unauthorized","errorDetails":["Access was denied."]}`, "401"},
	"smartystreets": {401, `{"errors":[{"message":"Unauthorized"}]}`, "401"},
	"ipstack":       {200, `{"success":false,"error":{"code":101,"type":"invalid_access_key","info":"You have not supplied a valid API Access Key."}}`, "101"},
}

func TestGeocode_UpstreamError(t *testing.T) {
	for _, tc := range adapters() {
		t.Run(tc.name, func(t *testing.T) {
			f, ok := upstreamFailures[tc.name]
			require.True(t, ok, "missing failure fixture")

			g, err := tc.build(&mockTransport{respond: replyWith(f.status, f.body)})
			require.NoError(t, err)

			rs, err := g.Geocode(context.Background(), sampleQuery(g))
			assert.Nil(t, rs)

			var upErr *domain.UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tc.name, upErr.Provider)
			assert.Equal(t, f.wantStatus, upErr.Status)
			assert.JSONEq(t, f.body, string(upErr.Raw))
		})
	}
}

func TestGeocode_MalformedBody(t *testing.T) {
	for _, tc := range adapters() {
		t.Run(tc.name, func(t *testing.T) {
			g, err := tc.build(&mockTransport{respond: func(endpoint string, _ url.Values) (*domain.Response, error) {
				if strings.Contains(endpoint, "oauth2/token") {
					return jsonResponse(http.StatusOK, `{"access_token":"tok","expires_in":7200}`), nil
				}
				return jsonResponse(http.StatusOK, `<html>gateway</html>`), nil
			}})
			require.NoError(t, err)

			_, err = g.Geocode(context.Background(), sampleQuery(g))

			var tErr *domain.TransportError
			require.ErrorAs(t, err, &tErr)
			assert.Equal(t, domain.CodeBadResponse, tErr.Code)
		})
	}
}

func TestGeocode_TransportErrorPropagates(t *testing.T) {
	timeout := &domain.TransportError{Message: "get: deadline exceeded", Code: domain.CodeTimeout}
	for _, tc := range adapters() {
		t.Run(tc.name, func(t *testing.T) {
			g, err := tc.build(&mockTransport{respond: func(string, url.Values) (*domain.Response, error) {
				return nil, timeout
			}})
			require.NoError(t, err)

			_, err = g.Geocode(context.Background(), sampleQuery(g))
			assert.Same(t, timeout, err)
		})
	}
}

func TestReverse_SupportedAdapters(t *testing.T) {
	for _, tc := range adapters() {
		t.Run(tc.name, func(t *testing.T) {
			g, err := tc.build(&mockTransport{})
			require.NoError(t, err)

			_, isReverser := g.(domain.Reverser)
			switch tc.name {
			case "smartystreets", "ipstack":
				assert.False(t, isReverser)
			default:
				assert.True(t, isReverser)
			}
		})
	}
}

func TestConstructors_ConfigurationErrors(t *testing.T) {
	tr := &mockTransport{}
	noHTTPS := &mockTransport{noHTTPS: true}

	tests := []struct {
		name   string
		build  func() error
		option string
	}{
		{"google premier without key", func() error { _, err := NewGoogle(tr, GoogleOptions{ClientID: "gme-x"}); return err }, "apiKey"},
		{"google key needs https", func() error { _, err := NewGoogle(noHTTPS, GoogleOptions{APIKey: "k"}); return err }, "transport"},
		{"google bad signing key", func() error {
			_, err := NewGoogle(tr, GoogleOptions{ClientID: "gme-x", APIKey: "not base64!"})
			return err
		}, "apiKey"},
		{"here without credentials", func() error { _, err := NewHere(tr, HereOptions{AppID: "only-id"}); return err }, "apiKey"},
		{"locationiq without key", func() error { _, err := NewLocationIQ(tr, NominatimOptions{}); return err }, "apiKey"},
		{"pickpoint needs https", func() error {
			_, err := NewPickPoint(noHTTPS, NominatimOptions{APIKey: "k"})
			return err
		}, "transport"},
		{"openmapquest without key", func() error { _, err := NewOpenMapQuest(tr, NominatimOptions{}); return err }, "apiKey"},
		{"mapbox without key", func() error { _, err := NewMapbox(tr, MapboxOptions{}); return err }, "apiKey"},
		{"tomtom without key", func() error { _, err := NewTomTom(tr, TomTomOptions{}); return err }, "apiKey"},
		{"yandex without key", func() error { _, err := NewYandex(tr, YandexOptions{}); return err }, "apiKey"},
		{"opencage without key", func() error { _, err := NewOpenCage(tr, OpenCageOptions{}); return err }, "apiKey"},
		{"mapquest without key", func() error { _, err := NewMapQuest(tr, MapQuestOptions{}); return err }, "apiKey"},
		{"agol without secret", func() error { _, err := NewAgol(tr, AgolOptions{ClientID: "id"}); return err }, "clientSecret"},
		{"agol needs https", func() error {
			_, err := NewAgol(noHTTPS, AgolOptions{ClientID: "id", ClientSecret: "s"})
			return err
		}, "transport"},
		{"geocodio without key", func() error { _, err := NewGeocodio(tr, GeocodioOptions{}); return err }, "apiKey"},
		{"virtualearth without key", func() error { _, err := NewVirtualEarth(tr, VirtualEarthOptions{}); return err }, "apiKey"},
		{"smartystreets without token", func() error {
			_, err := NewSmartyStreets(tr, SmartyStreetsOptions{AuthID: "id"})
			return err
		}, "authToken"},
		{"ipstack without key", func() error { _, err := NewIPStack(tr, IPStackOptions{}); return err }, "apiKey"},
		{"maxmind without path", func() error { _, err := NewMaxMind(MaxMindOptions{}); return err }, "maxmindDbPath"},
		{"maxmind missing file", func() error {
			_, err := NewMaxMind(MaxMindOptions{DBPath: t.TempDir() + "/missing.mmdb"})
			return err
		}, "maxmindDbPath"},
		{"nil transport", func() error { _, err := NewOpenStreetMap(nil, NominatimOptions{}); return err }, "transport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build()
			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.option, cfgErr.Option)
		})
	}
	assert.Zero(t, tr.callCount())
}

func TestGeocode_EmptyAddressRejected(t *testing.T) {
	tr := &mockTransport{}
	g, err := NewOpenStreetMap(tr, NominatimOptions{})
	require.NoError(t, err)

	_, err = g.Geocode(context.Background(), domain.GeocodeQuery{})
	assert.True(t, errors.Is(err, domain.ErrInvalidQuery))
	assert.Zero(t, tr.callCount())
}

func TestGeocode_RateLimitHeadersRelayed(t *testing.T) {
	tr := &mockTransport{respond: func(string, url.Values) (*domain.Response, error) {
		resp := jsonResponse(http.StatusOK, `[]`)
		resp.Header.Set("X-RateLimit-Limit", "60")
		resp.Header.Set("X-RateLimit-Remaining", "59")
		return resp, nil
	}}
	g, err := NewLocationIQ(tr, NominatimOptions{APIKey: "k"})
	require.NoError(t, err)

	rs, err := g.Geocode(context.Background(), domain.GeocodeQuery{Address: "Lyon"})
	require.NoError(t, err)
	require.NotNil(t, rs.RateLimit)
	assert.Equal(t, 60, rs.RateLimit.Limit)
	assert.Equal(t, 59, rs.RateLimit.Remaining)
}

func TestCountryCode(t *testing.T) {
	assert.Equal(t, "FR", countryCode("fr"))
	assert.Equal(t, "FR", countryCode("FRA"))
	assert.Equal(t, "US", countryCode("USA"))
	assert.Equal(t, "DE", countryCode(" deu "))
	assert.Empty(t, countryCode(""))
}

func TestSplitStreet(t *testing.T) {
	n, s := splitStreet("1600 Amphitheatre Pkwy")
	assert.Equal(t, "1600", n)
	assert.Equal(t, "Amphitheatre Pkwy", s)

	n, s = splitStreet("Rue de Rivoli")
	assert.Empty(t, n)
	assert.Equal(t, "Rue de Rivoli", s)
}
