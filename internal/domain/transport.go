package domain

import (
	"context"
	"net/http"
	"net/url"
)

// Transport performs upstream HTTP GET requests on behalf of adapters.
// Network failures are returned as *TransportError.
type Transport interface {
	Get(ctx context.Context, endpoint string, params url.Values) (*Response, error)
	SupportsHTTPS() bool
}

// Response is an upstream reply that reached us, whatever its status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
