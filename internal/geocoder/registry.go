package geocoder

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/adapter/transport"
	"github.com/couchcryptid/geocoder-service/internal/config"
	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/formatter"
	"github.com/couchcryptid/geocoder-service/internal/observability"
	"github.com/couchcryptid/geocoder-service/internal/provider"
	"github.com/jonboulle/clockwork"
)

// Options is the generic option set accepted by New. Each provider picks the
// subset it understands.
type Options struct {
	APIKey       string
	AppID        string
	AppCode      string
	ClientID     string
	ClientSecret string
	Language     string
	Region       string
	Country      string
	State        string

	Formatter        string
	FormatterPattern string

	MinConfidence    *float64
	Timeout          time.Duration
	BatchConcurrency int

	// Extra carries provider-specific keys: osmServer, maxmindDbPath,
	// politicalView, channel, endpoint.
	Extra map[string]string

	// Transport replaces the default HTTP transport.
	Transport domain.Transport
	Clock     clockwork.Clock
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

type providerBuilder func(t domain.Transport, o Options) (domain.Geocoder, error)

var providers = map[string]providerBuilder{
	"google": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewGoogle(t, provider.GoogleOptions{
			APIKey:   o.APIKey,
			ClientID: o.ClientID,
			Channel:  o.Extra["channel"],
			Language: o.Language,
			Region:   o.Region,
			Endpoint: o.Extra["endpoint"],
		})
	},
	"here": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewHere(t, provider.HereOptions{
			APIKey:        o.APIKey,
			AppID:         o.AppID,
			AppCode:       o.AppCode,
			Language:      o.Language,
			PoliticalView: o.Extra["politicalView"],
			Country:       o.Country,
			State:         o.State,
			Endpoint:      o.Extra["endpoint"],
		})
	},
	"openstreetmap": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewOpenStreetMap(t, nominatimOptions(o))
	},
	"locationiq": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewLocationIQ(t, nominatimOptions(o))
	},
	"pickpoint": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewPickPoint(t, nominatimOptions(o))
	},
	"openmapquest": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewOpenMapQuest(t, nominatimOptions(o))
	},
	"mapbox": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewMapbox(t, provider.MapboxOptions{
			APIKey:   o.APIKey,
			Language: o.Language,
			Country:  o.Country,
			Endpoint: o.Extra["endpoint"],
		})
	},
	"tomtom": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewTomTom(t, provider.TomTomOptions{
			APIKey:   o.APIKey,
			Language: o.Language,
			Country:  o.Country,
			Endpoint: o.Extra["endpoint"],
		})
	},
	"yandex": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewYandex(t, provider.YandexOptions{APIKey: o.APIKey, Language: o.Language, Endpoint: o.Extra["endpoint"]})
	},
	"opencage": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewOpenCage(t, provider.OpenCageOptions{
			APIKey:   o.APIKey,
			Language: o.Language,
			Country:  o.Country,
			Endpoint: o.Extra["endpoint"],
		})
	},
	"mapquest": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewMapQuest(t, provider.MapQuestOptions{APIKey: o.APIKey, Endpoint: o.Extra["endpoint"]})
	},
	"agol": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewAgol(t, provider.AgolOptions{
			ClientID:      o.ClientID,
			ClientSecret:  o.ClientSecret,
			Endpoint:      o.Extra["endpoint"],
			TokenEndpoint: o.Extra["tokenEndpoint"],
			Clock:         o.Clock,
			Metrics:       o.Metrics,
		})
	},
	"geocodio": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewGeocodio(t, provider.GeocodioOptions{APIKey: o.APIKey, Endpoint: o.Extra["endpoint"]})
	},
	"virtualearth": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewVirtualEarth(t, provider.VirtualEarthOptions{
			APIKey:   o.APIKey,
			Language: o.Language,
			Endpoint: o.Extra["endpoint"],
		})
	},
	"smartystreets": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewSmartyStreets(t, provider.SmartyStreetsOptions{
			AuthID:    o.ClientID,
			AuthToken: o.ClientSecret,
			Endpoint:  o.Extra["endpoint"],
		})
	},
	"ipstack": func(t domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewIPStack(t, provider.IPStackOptions{APIKey: o.APIKey, Endpoint: o.Extra["endpoint"]})
	},
	"maxmind": func(_ domain.Transport, o Options) (domain.Geocoder, error) {
		return provider.NewMaxMind(provider.MaxMindOptions{DBPath: o.Extra["maxmindDbPath"], Language: o.Language})
	},
}

func nominatimOptions(o Options) provider.NominatimOptions {
	return provider.NominatimOptions{
		APIKey:   o.APIKey,
		Language: o.Language,
		Country:  o.Country,
		Server:   o.Extra["osmServer"],
	}
}

type formatterBuilder func(o Options) (domain.Formatter, error)

var formatters = map[string]formatterBuilder{
	"gpx": func(Options) (domain.Formatter, error) { return formatter.NewGPX(), nil },
	"string": func(o Options) (domain.Formatter, error) {
		f, err := formatter.NewString(o.FormatterPattern)
		if err != nil {
			return nil, &domain.ConfigurationError{Provider: "string", Option: "formatterPattern", Reason: "is required"}
		}
		return f, nil
	},
}

// Providers returns the registered provider names, sorted.
func Providers() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the orchestrator for the named provider. It is the single
// point that validates provider and formatter names.
func New(name string, opts Options) (*Geocoder, error) {
	build, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, name)
	}

	var f domain.Formatter
	if opts.Formatter != "" {
		buildFormatter, ok := formatters[opts.Formatter]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFormatter, opts.Formatter)
		}
		var err error
		if f, err = buildFormatter(opts); err != nil {
			return nil, err
		}
	}

	if opts.Extra == nil {
		opts.Extra = map[string]string{}
	}
	t := opts.Transport
	if t == nil {
		t = transport.NewHTTP(transport.Options{Timeout: opts.Timeout}, opts.Logger, opts.Metrics)
	}

	adapter, err := build(t, opts)
	if err != nil {
		return nil, err
	}
	return NewGeocoder(adapter, f, Settings{
		MinConfidence:    opts.MinConfidence,
		BatchConcurrency: opts.BatchConcurrency,
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
	}), nil
}

// OptionsFromConfig maps service configuration onto factory options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) Options {
	extra := make(map[string]string, len(cfg.ProviderExtra)+1)
	for k, v := range cfg.ProviderExtra {
		extra[k] = v
	}
	if cfg.MaxMindDBPath != "" {
		extra["maxmindDbPath"] = cfg.MaxMindDBPath
	}
	return Options{
		APIKey:           cfg.APIKey,
		AppID:            cfg.AppID,
		AppCode:          cfg.AppCode,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		Language:         cfg.Language,
		Region:           cfg.Region,
		Country:          cfg.Country,
		State:            cfg.State,
		Formatter:        cfg.Formatter,
		FormatterPattern: cfg.FormatterPattern,
		MinConfidence:    cfg.MinConfidence,
		Timeout:          cfg.Timeout,
		BatchConcurrency: cfg.BatchConcurrency,
		Extra:            extra,
		Logger:           logger,
		Metrics:          metrics,
	}
}
