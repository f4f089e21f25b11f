package domain

import "context"

// Capabilities declares which query kinds an adapter accepts for forward geocoding.
type Capabilities struct {
	Address bool
	IPv4    bool
	IPv6    bool
}

// Supports reports whether a query of the given kind may be dispatched.
func (c Capabilities) Supports(kind QueryKind) bool {
	switch kind {
	case QueryIPv4:
		return c.IPv4
	case QueryIPv6:
		return c.IPv6
	default:
		return c.Address
	}
}

// Geocoder is the contract every provider adapter satisfies.
type Geocoder interface {
	// Name is the registry identifier of the provider, e.g. "google".
	Name() string

	// Capabilities lists the query kinds Geocode accepts.
	Capabilities() Capabilities

	// Geocode resolves an address or IP literal. Zero matches is an empty
	// ResultSet, not an error.
	Geocode(ctx context.Context, q GeocodeQuery) (*ResultSet, error)
}

// Reverser is implemented by adapters that can resolve coordinates to places.
type Reverser interface {
	Reverse(ctx context.Context, q ReverseQuery) (*ResultSet, error)
}

// BatchGeocoder is implemented by adapters with a native batch endpoint.
// Implementations return exactly one BatchResult per query, in query order.
type BatchGeocoder interface {
	BatchGeocode(ctx context.Context, qs []GeocodeQuery) []BatchResult
}

// Formatter turns a ResultSet into an alternate representation.
type Formatter interface {
	Name() string
	Format(rs *ResultSet) (any, error)
}

// Service is the public geocoding API consumed by the HTTP and Kafka adapters.
type Service interface {
	Name() string
	Geocode(ctx context.Context, q GeocodeQuery) (*Output, error)
	Reverse(ctx context.Context, q ReverseQuery) (*Output, error)
	BatchGeocode(ctx context.Context, qs []GeocodeQuery) ([]BatchResult, error)
}
