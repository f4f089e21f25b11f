package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/oschwald/geoip2-golang"
)

// MaxMindOptions configures the local GeoIP2/GeoLite2 City adapter.
type MaxMindOptions struct {
	DBPath   string
	Language string
}

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// MaxMind resolves IP addresses against a local GeoIP2 City database. It
// makes no network calls.
type MaxMind struct {
	base
	db   cityReader
	lang string
}

// NewMaxMind opens the GeoIP2 city database at opts.DBPath.
func NewMaxMind(opts MaxMindOptions) (*MaxMind, error) {
	const name = "maxmind"
	if err := requireOption(name, "maxmindDbPath", opts.DBPath); err != nil {
		return nil, err
	}
	db, err := geoip2.Open(opts.DBPath)
	if err != nil {
		return nil, &domain.ConfigurationError{Provider: name, Option: "maxmindDbPath", Reason: fmt.Sprintf("cannot be opened: %v", err)}
	}
	return newMaxMind(db, opts.Language), nil
}

func newMaxMind(db cityReader, lang string) *MaxMind {
	if lang == "" {
		lang = "en"
	}
	return &MaxMind{
		base: base{name: "maxmind", caps: domain.Capabilities{IPv4: true, IPv6: true}},
		db:   db,
		lang: lang,
	}
}

// Close releases the database file.
func (m *MaxMind) Close() error { return m.db.Close() }

func (m *MaxMind) Geocode(_ context.Context, q domain.GeocodeQuery) (*domain.ResultSet, error) {
	if err := m.check(q); err != nil {
		return nil, err
	}
	ip := net.ParseIP(strings.TrimSpace(q.Address))
	rec, err := m.db.City(ip)
	if err != nil {
		return nil, &domain.TransportError{Message: "maxmind lookup: " + err.Error(), Code: domain.CodeBadResponse, Err: err}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, &domain.TransportError{Message: "maxmind record: " + err.Error(), Code: domain.CodeBadResponse, Err: err}
	}
	if rec.Country.IsoCode == "" && rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return domain.NewResultSet(nil, raw), nil
	}

	lang := pick(q.Language, m.lang)
	res := domain.Result{
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
		Country:     localized(rec.Country.Names, lang),
		CountryCode: countryCode(rec.Country.IsoCode),
		City:        localized(rec.City.Names, lang),
		ZipCode:     rec.Postal.Code,
		Extra: domain.Extra{
			Fields: map[string]any{
				"timeZone":       rec.Location.TimeZone,
				"accuracyRadius": rec.Location.AccuracyRadius,
				"continentCode":  rec.Continent.Code,
			},
		},
	}
	for i, sub := range rec.Subdivisions {
		name := localized(sub.Names, lang)
		if i == 0 {
			res.State = name
			res.StateCode = sub.IsoCode
		}
		res.SetAdminLevel(i+1, name, sub.IsoCode)
	}
	res.FormattedAddress = strings.Join(nonEmpty(res.City, res.State, res.Country), ", ")
	return domain.NewResultSet([]domain.Result{res}, raw), nil
}

func localized(names map[string]string, lang string) string {
	if n, ok := names[lang]; ok {
		return n
	}
	return names["en"]
}
