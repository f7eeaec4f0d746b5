package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/urlvet/internal/config"
	urlvetlog "github.com/nao1215/urlvet/internal/log"
	"github.com/nao1215/urlvet/internal/model"
)

// DialFunc dials a network connection. tor.Client.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// NewTransport returns the transport used for every fetch. A nil dial uses
// a direct connection.
//
// Certificate verification is disabled: invalid, expired or self-signed
// certificates must still be recorded so the TLS analyzer can report them.
// TLS 1.0 is accepted for the same reason.
func NewTransport(dial DialFunc) *http.Transport {
	if dial == nil {
		dial = (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	}
	return &http.Transport{
		DialContext: dial,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,             //nolint:gosec // certificates are analysed, not trusted
			MinVersion:         tls.VersionTLS10, //nolint:gosec // legacy versions are reported as findings
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}
}

// HTTPFetcher fetches targets over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	sites     *config.File
	userAgent string
	maxBody   int64
	limiter   *rate.Limiter
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout sets the timeout of one fetch, body read included.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithTransport replaces the transport, e.g. with one dialing through SOCKS5.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) {
		f.client.Transport = rt
	}
}

// WithSites sets the config file whose per-site overrides are injected.
func WithSites(file *config.File) Option {
	return func(f *HTTPFetcher) {
		f.sites = file
	}
}

// WithUserAgent sets the default User-Agent.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize bounds the body read into memory. Zero keeps the default.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBody = n
		}
	}
}

// WithLimiter shares a rate limiter between fetchers.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *HTTPFetcher) {
		f.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *HTTPFetcher) {
		f.now = now
	}
}

// NewHTTPFetcher creates a fetcher with a direct transport and the default
// timeout, body limit and User-Agent.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Transport: NewTransport(nil),
			Timeout:   config.DefaultTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: config.DefaultUserAgent,
		maxBody:   config.DefaultMaxBodySize,
		logger:    urlvetlog.Discard(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues one GET for rawURL and returns what came back.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*model.OnlineRecord, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	f.prepare(req)

	start := f.now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("fetch failed", "url", rawURL, "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	// One extra byte tells a body of exactly maxBody from a longer one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadBody, err)
	}
	truncated := int64(len(body)) > f.maxBody
	if truncated {
		body = body[:f.maxBody]
	}

	rec := &model.OnlineRecord{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header.Clone(),
		SetCookies:    resp.Header.Values("Set-Cookie"),
		Cookies:       resp.Cookies(),
		Body:          body,
		BodyTruncated: truncated,
		Location:      resp.Header.Get("Location"),
		Duration:      f.now().Sub(start),
		FetchedAt:     start,
	}
	if resp.TLS != nil {
		rec.Certificate = certificateRecord(resp.TLS)
	}

	f.logger.Debug("fetched",
		"url", rawURL,
		"status", rec.StatusCode,
		"bytes", len(body),
		"truncated", truncated,
		"duration", rec.Duration,
	)
	return rec, nil
}

// prepare sets the User-Agent, the Accept headers and the per-site
// overrides for the request host.
func (f *HTTPFetcher) prepare(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	if f.sites == nil {
		return
	}
	site := f.sites.GetSiteConfig(req.URL.Hostname())
	if site.UserAgent != "" {
		req.Header.Set("User-Agent", site.UserAgent)
	}
	if site.Cookie != "" {
		req.Header.Set("Cookie", site.Cookie)
	}
	for key, value := range site.Headers {
		req.Header.Set(key, value)
	}
}
