package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/urlvet/internal/config"
)

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1", Secure: true, HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "_ga", Value: "x"})
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hello</html>"))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-UA", r.Header.Get("User-Agent"))
		w.Header().Set("X-Seen-Cookie", r.Header.Get("Cookie"))
		w.Header().Set("X-Seen-Custom", r.Header.Get("X-Custom"))
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 20)))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewTLSServer(mux)
	t.Cleanup(srv.Close)

	t.Run("redirects are not followed", func(t *testing.T) {
		t.Parallel()

		rec, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/redirect")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.StatusCode != http.StatusFound || rec.Location != "/login" {
			t.Errorf("got status %d location %q", rec.StatusCode, rec.Location)
		}
		if !rec.IsRedirect() {
			t.Error("expected a redirect record")
		}
	})

	t.Run("records status headers cookies and body", func(t *testing.T) {
		t.Parallel()

		rec, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.StatusCode != http.StatusOK || string(rec.Body) != "<html>hello</html>" {
			t.Errorf("unexpected record %d %q", rec.StatusCode, rec.Body)
		}
		if rec.ContentType() != "text/html" {
			t.Errorf("ContentType() = %q", rec.ContentType())
		}
		if len(rec.SetCookies) != 2 || len(rec.Cookies) != 2 {
			t.Fatalf("expected two cookies, got %v", rec.SetCookies)
		}
		if rec.Cookies[0].Name != "sid" || !rec.Cookies[0].Secure {
			t.Errorf("unexpected first cookie %+v", rec.Cookies[0])
		}
		if rec.FetchedAt.IsZero() || rec.Duration < 0 {
			t.Errorf("timing not recorded: %v %v", rec.FetchedAt, rec.Duration)
		}
	})

	t.Run("error statuses are records not errors", func(t *testing.T) {
		t.Parallel()

		rec, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/missing")
		if err != nil || rec.StatusCode != http.StatusNotFound {
			t.Errorf("got %v, %v", rec, err)
		}
	})

	t.Run("certificate record", func(t *testing.T) {
		t.Parallel()

		rec, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c := rec.Certificate
		if c == nil {
			t.Fatal("expected a certificate record")
		}
		if !strings.HasPrefix(c.TLSVersion, "TLS1.") {
			t.Errorf("TLSVersion = %q", c.TLSVersion)
		}
		if len(c.Fingerprint) != 64 {
			t.Errorf("Fingerprint = %q", c.Fingerprint)
		}
		if !slices.Contains(c.IPAddresses, "127.0.0.1") {
			t.Errorf("IPAddresses = %v", c.IPAddresses)
		}
	})

	t.Run("body is bounded", func(t *testing.T) {
		t.Parallel()

		rec, err := NewHTTPFetcher(WithMaxBodySize(10)).Fetch(context.Background(), srv.URL+"/large")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rec.BodyTruncated || len(rec.Body) != 10 {
			t.Errorf("truncated=%v len=%d", rec.BodyTruncated, len(rec.Body))
		}

		rec, err = NewHTTPFetcher(WithMaxBodySize(20)).Fetch(context.Background(), srv.URL+"/large")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.BodyTruncated || len(rec.Body) != 20 {
			t.Errorf("a body of exactly the limit is complete: truncated=%v len=%d", rec.BodyTruncated, len(rec.Body))
		}
	})

	t.Run("default user agent", func(t *testing.T) {
		t.Parallel()

		rec, err := NewHTTPFetcher().Fetch(context.Background(), srv.URL+"/echo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := rec.Header.Get("X-Seen-UA"); got != config.DefaultUserAgent {
			t.Errorf("User-Agent = %q", got)
		}
	})

	t.Run("site overrides are injected", func(t *testing.T) {
		t.Parallel()

		file := &config.File{
			Defaults: config.SiteConfig{Headers: map[string]string{"X-Custom": "default"}},
			Sites: map[string]config.SiteConfig{
				"127.0.0.1": {
					Cookie:    "session=abc",
					UserAgent: "urlvet-test",
					Headers:   map[string]string{"X-Custom": "site"},
				},
			},
		}
		rec, err := NewHTTPFetcher(WithSites(file)).Fetch(context.Background(), srv.URL+"/echo")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := map[string]string{
			"X-Seen-UA":     "urlvet-test",
			"X-Seen-Cookie": "session=abc",
			"X-Seen-Custom": "site",
		}
		for key, value := range want {
			if got := rec.Header.Get(key); got != value {
				t.Errorf("%s = %q, want %q", key, got, value)
			}
		}
	})
}

func TestHTTPFetcherErrors(t *testing.T) {
	t.Parallel()

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		t.Cleanup(srv.Close)

		_, err := NewHTTPFetcher(WithTimeout(50*time.Millisecond)).Fetch(context.Background(), srv.URL)
		if err == nil {
			t.Fatal("expected an error")
		}
		if !IsTimeout(err) {
			t.Errorf("expected a timeout error, got %v", err)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPFetcher().Fetch(context.Background(), "http://[::1")
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})

	t.Run("connection refused is not a timeout", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.NotFoundHandler())
		addr := srv.URL
		srv.Close()

		_, err := NewHTTPFetcher().Fetch(context.Background(), addr)
		if err == nil || IsTimeout(err) {
			t.Errorf("expected a non-timeout error, got %v", err)
		}
	})

	t.Run("limiter refuses", func(t *testing.T) {
		t.Parallel()

		var hit atomic.Bool
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hit.Store(true) }))
		t.Cleanup(srv.Close)

		// A zero burst never admits a request.
		_, err := NewHTTPFetcher(WithLimiter(rate.NewLimiter(1, 0))).Fetch(context.Background(), srv.URL)
		if err == nil || hit.Load() {
			t.Errorf("expected the limiter to refuse, got %v (hit=%v)", err, hit.Load())
		}
	})
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", errors.Join(errors.New("fetch"), context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range testCases {
		if got := IsTimeout(tc.err); got != tc.want {
			t.Errorf("%s: IsTimeout = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewTransport(t *testing.T) {
	t.Parallel()

	tr := NewTransport(nil)
	if tr.DialContext == nil {
		t.Error("expected a dial function")
	}
	if tr.TLSClientConfig == nil || !tr.TLSClientConfig.InsecureSkipVerify {
		t.Error("certificates must be recorded, not verified")
	}
}
