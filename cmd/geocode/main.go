// Command geocode runs a single geocoding call through any registered
// provider and prints the result as JSON.
//
// Usage:
//
//	go run ./cmd/geocode -provider openstreetmap "29 rue chevreul, Lyon"
//	go run ./cmd/geocode -provider google -key $KEY -reverse 45.7514 4.8422
//	go run ./cmd/geocode -provider mapbox -key $TOKEN "Lyon" "Paris"
//	go run ./cmd/geocode -formatter string -pattern "%n %S, %c" "Lyon"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/geocoder"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

type cliOptions struct {
	provider  string
	key       string
	language  string
	formatter string
	pattern   string
	reverse   bool
	timeout   time.Duration
	extra     extraFlags
	args      []string
}

// extraFlags collects repeated -option key=value pairs.
type extraFlags map[string]string

func (e extraFlags) String() string {
	pairs := make([]string, 0, len(e))
	for k, v := range e {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (e extraFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("option %q is not key=value", s)
	}
	e[k] = v
	return nil
}

func main() {
	_ = godotenv.Load()

	o := cliOptions{extra: extraFlags{}}
	flag.StringVar(&o.provider, "provider", sharedcfg.EnvOrDefault("GEOCODER_PROVIDER", "openstreetmap"), "provider name ("+strings.Join(geocoder.Providers(), ", ")+")")
	flag.StringVar(&o.key, "key", os.Getenv("GEOCODER_API_KEY"), "provider API key")
	flag.StringVar(&o.language, "language", "", "preferred result language")
	flag.StringVar(&o.formatter, "formatter", "", "output formatter (gpx, string)")
	flag.StringVar(&o.pattern, "pattern", "", "pattern for the string formatter")
	flag.BoolVar(&o.reverse, "reverse", false, "treat the two arguments as lat lon")
	flag.DurationVar(&o.timeout, "timeout", 10*time.Second, "request timeout")
	flag.Var(o.extra, "option", "provider option as key=value (osmServer, politicalView, ...); repeatable")
	flag.Parse()
	o.args = flag.Args()

	if len(o.args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(context.Background(), o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "geocode: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o cliOptions, w io.Writer) error {
	g, err := geocoder.New(o.provider, geocoder.Options{
		APIKey:           o.key,
		Language:         o.language,
		Formatter:        o.formatter,
		FormatterPattern: o.pattern,
		Timeout:          o.timeout,
		Extra:            o.extra,
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		return err
	}
	defer g.Close() //nolint:errcheck // process is exiting

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var result any
	switch {
	case o.reverse:
		q, err := parseReverse(o.args, o.language)
		if err != nil {
			return err
		}
		if result, err = g.Reverse(ctx, q); err != nil {
			return err
		}
	case len(o.args) == 1:
		if result, err = g.Geocode(ctx, domain.GeocodeQuery{Address: o.args[0], Language: o.language}); err != nil {
			return err
		}
	default:
		qs := make([]domain.GeocodeQuery, len(o.args))
		for i, a := range o.args {
			qs[i] = domain.GeocodeQuery{Address: a, Language: o.language}
		}
		if result, err = g.BatchGeocode(ctx, qs); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func parseReverse(args []string, language string) (domain.ReverseQuery, error) {
	if len(args) != 2 {
		return domain.ReverseQuery{}, fmt.Errorf("-reverse needs exactly two arguments: lat lon")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return domain.ReverseQuery{}, fmt.Errorf("invalid latitude %q", args[0])
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return domain.ReverseQuery{}, fmt.Errorf("invalid longitude %q", args[1])
	}
	return domain.ReverseQuery{Lat: lat, Lon: lon, Language: language}, nil
}
