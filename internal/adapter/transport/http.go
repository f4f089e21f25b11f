package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/geocoder-service/internal/domain"
	"github.com/couchcryptid/geocoder-service/internal/observability"
)

const (
	defaultTimeout   = 5 * time.Second
	defaultUserAgent = "geocoder-service/1.0"
	maxBodyBytes     = 8 << 20
)

// Options configures the HTTP transport.
type Options struct {
	Timeout      time.Duration
	UserAgent    string
	DisableHTTPS bool
	Client       *http.Client
}

// HTTP implements domain.Transport over net/http.
type HTTP struct {
	client    *http.Client
	userAgent string
	https     bool
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewHTTP creates an HTTP transport. Timeout defaults to 5s.
func NewHTTP(opts Options, logger *slog.Logger, metrics *observability.Metrics) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTP{
		client:    client,
		userAgent: opts.UserAgent,
		https:     !opts.DisableHTTPS,
		logger:    logger,
		metrics:   metrics,
	}
}

// SupportsHTTPS reports whether https:// endpoints may be requested.
func (t *HTTP) SupportsHTTPS() bool { return t.https }

// Get issues a GET to endpoint with params appended to its query string.
// Any reply that arrives is returned whatever its status; only failures
// below HTTP are reported, as *domain.TransportError.
func (t *HTTP) Get(ctx context.Context, endpoint string, params url.Values) (*domain.Response, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, t.fail(&domain.TransportError{Message: "invalid url: " + endpoint, Code: domain.CodeRequest, Err: err})
	}
	if u.Scheme == "https" && !t.https {
		return nil, t.fail(&domain.TransportError{Message: "https not supported by this transport", Code: domain.CodeNoHTTPS})
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, t.fail(&domain.TransportError{Message: "create request", Code: domain.CodeRequest, Err: err})
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, t.fail(classify(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, t.fail(classify(err))
	}

	if t.metrics != nil {
		t.metrics.UpstreamDuration.WithLabelValues(u.Host).Observe(time.Since(start).Seconds())
		t.metrics.UpstreamStatus.WithLabelValues(u.Host, strconv.Itoa(resp.StatusCode)).Inc()
	}
	t.logger.Debug("upstream request",
		"host", u.Host,
		"path", u.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return &domain.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (t *HTTP) fail(err *domain.TransportError) error {
	if t.metrics != nil {
		t.metrics.TransportErrors.WithLabelValues(err.Code).Inc()
	}
	t.logger.Debug("upstream request failed", "code", err.Code, "error", err)
	return err
}

func classify(err error) *domain.TransportError {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return &domain.TransportError{Message: trimURL(err), Code: domain.CodeTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &domain.TransportError{Message: "request canceled", Code: domain.CodeRequest, Err: err}
	default:
		return &domain.TransportError{Message: trimURL(err), Code: domain.CodeRequest, Err: err}
	}
}

// trimURL drops the request URL from *url.Error messages so credentials in
// query strings never reach logs or callers.
func trimURL(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Sprintf("%s: %v", strings.ToLower(uerr.Op), uerr.Err)
	}
	return err.Error()
}
