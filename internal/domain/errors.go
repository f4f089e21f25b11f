package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider is returned by the factory for names outside the registry.
	ErrUnknownProvider = errors.New("no geocoder provider found for")

	// ErrUnknownFormatter is returned by the factory for formatter names outside the registry.
	ErrUnknownFormatter = errors.New("no formatter found for")

	// ErrInvalidQuery marks queries rejected before reaching any provider.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNotSupported marks an operation the provider does not offer at all.
	ErrNotSupported = errors.New("not supported")
)

// ConfigurationError reports missing or invalid adapter options at construction.
type ConfigurationError struct {
	Provider string
	Option   string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("%s: option %q %s", e.Provider, e.Option, e.Reason)
}

// CapabilityError reports a query kind or operation the adapter does not support.
type CapabilityError struct {
	Provider  string
	Operation string // "geocode" or "reverse"
	Kind      QueryKind
}

func (e *CapabilityError) Error() string {
	if e.Operation == "reverse" {
		return fmt.Sprintf("%s: reverse geocoding not supported", e.Provider)
	}
	return fmt.Sprintf("%s: %s geocoding not supported", e.Provider, e.Kind)
}

// Unwrap lets callers test capability failures with errors.Is(err, ErrNotSupported).
func (e *CapabilityError) Unwrap() error { return ErrNotSupported }

// TransportError is a network-level failure: refused connection, timeout,
// or a body that could not be decoded.
type TransportError struct {
	Message string
	Code    string // machine-readable, e.g. "ETIMEDOUT"
	Err     error
}

const (
	CodeTimeout     = "ETIMEDOUT"
	CodeBadResponse = "EBADRESPONSE"
	CodeNoHTTPS     = "ENOHTTPS"
	CodeRequest     = "EREQUEST"
)

func (e *TransportError) Error() string {
	if e.Code == "" {
		return "transport: " + e.Message
	}
	return fmt.Sprintf("transport %s: %s", e.Code, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError is a logical failure reported by a provider that answered.
type UpstreamError struct {
	Provider string
	Status   string
	Message  string
	Raw      json.RawMessage
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: upstream status %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: upstream status %s: %s", e.Provider, e.Status, e.Message)
}

// FormatterError wraps a failure raised while rendering a ResultSet.
type FormatterError struct {
	Formatter string
	Err       error
}

func (e *FormatterError) Error() string {
	return fmt.Sprintf("formatter %s: %v", e.Formatter, e.Err)
}

func (e *FormatterError) Unwrap() error { return e.Err }
