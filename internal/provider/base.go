// Package provider holds one adapter per upstream geocoding service. Every
// adapter embeds base, which carries the provider name, its capability flags
// and the transport, and gates queries before any network call is made.
package provider

import (
	"context"
	"net/url"

	"github.com/couchcryptid/geocoder-service/internal/domain"
)

type base struct {
	name      string
	caps      domain.Capabilities
	transport domain.Transport
}

var addressOnly = domain.Capabilities{Address: true}

func (b *base) Name() string { return b.name }

func (b *base) Capabilities() domain.Capabilities { return b.caps }

// check rejects queries whose kind the adapter does not declare, and address
// queries without a target.
func (b *base) check(q domain.GeocodeQuery) error {
	kind := q.Kind()
	if !b.caps.Supports(kind) {
		return &domain.CapabilityError{Provider: b.name, Operation: "geocode", Kind: kind}
	}
	if kind == domain.QueryAddress {
		return q.Validate()
	}
	return nil
}

func (b *base) get(ctx context.Context, endpoint string, params url.Values) (*domain.Response, error) {
	return b.transport.Get(ctx, endpoint, params)
}

func newBase(name string, caps domain.Capabilities, t domain.Transport) (base, error) {
	if t == nil {
		return base{}, &domain.ConfigurationError{Provider: name, Option: "transport", Reason: "is required"}
	}
	return base{name: name, caps: caps, transport: t}, nil
}

// requireHTTPS fails construction when the transport cannot reach https endpoints.
func requireHTTPS(name string, t domain.Transport) error {
	if t != nil && !t.SupportsHTTPS() {
		return &domain.ConfigurationError{Provider: name, Option: "transport", Reason: "must support https"}
	}
	return nil
}

func requireOption(name, option, value string) error {
	if value == "" {
		return &domain.ConfigurationError{Provider: name, Option: option, Reason: "is required"}
	}
	return nil
}
