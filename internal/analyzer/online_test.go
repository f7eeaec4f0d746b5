package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/urlvet/internal/model"
)

func TestResponseAnalyzer(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code int
		want []model.RuleID
	}{
		{200, nil},
		{302, nil},
		{404, []model.RuleID{model.RuleClientError}},
		{503, []model.RuleID{model.RuleServerError}},
		{101, []model.RuleID{model.RuleUnexpectedStatus}},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprint(tc.code), func(t *testing.T) {
			t.Parallel()

			data := newTestData(t, "https://example.com/", &model.OnlineRecord{StatusCode: tc.code})
			findings, err := NewResponseAnalyzer().Analyze(context.Background(), data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []model.RuleID
			if len(findings) > 0 {
				got = rulesOf(findings)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("findings mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("missing record", func(t *testing.T) {
		t.Parallel()

		_, err := NewResponseAnalyzer().Analyze(context.Background(), newTestData(t, "https://example.com/", nil))
		if !errors.Is(err, ErrNoRecord) {
			t.Errorf("expected ErrNoRecord, got %v", err)
		}
	})
}

func TestHeaderAnalyzer(t *testing.T) {
	t.Parallel()

	analyze := func(t *testing.T, code int, h http.Header) []model.Finding {
		t.Helper()
		data := newTestData(t, "https://example.com/", &model.OnlineRecord{StatusCode: code, Header: h})
		findings, err := NewHeaderAnalyzer().Analyze(context.Background(), data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return findings
	}

	t.Run("secure headers raise nothing", func(t *testing.T) {
		t.Parallel()

		if findings := analyze(t, 200, secureHeader()); len(findings) != 0 {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})

	t.Run("missing headers", func(t *testing.T) {
		t.Parallel()

		want := []model.RuleID{model.RuleMissingHSTS, model.RuleMissingContentType, model.RuleMissingFrameOptions}
		if diff := cmp.Diff(want, rulesOf(analyze(t, 200, nil))); diff != "" {
			t.Errorf("findings mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("frame-ancestors replaces X-Frame-Options", func(t *testing.T) {
		t.Parallel()

		h := secureHeader()
		h.Del("X-Frame-Options")
		h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
		if findings := analyze(t, 200, h); hasRule(findings, model.RuleMissingFrameOptions) {
			t.Error("frame-ancestors should count as clickjacking protection")
		}
	})

	t.Run("hsts disabled by max-age 0", func(t *testing.T) {
		t.Parallel()

		h := secureHeader()
		h.Set("Strict-Transport-Security", "max-age=0")
		if findings := analyze(t, 200, h); !hasRule(findings, model.RuleMissingHSTS) {
			t.Errorf("expected %s, got %v", model.RuleMissingHSTS, rulesOf(findings))
		}
	})

	t.Run("version disclosure", func(t *testing.T) {
		t.Parallel()

		h := secureHeader()
		h.Set("Server", "nginx/1.18.0")
		f, ok := findRule(analyze(t, 200, h), model.RuleServerDisclosure)
		if !ok || f.Detail != "Server: nginx/1.18.0" {
			t.Errorf("unexpected disclosure finding %+v", f)
		}

		h.Set("Server", "cloudflare")
		if hasRule(analyze(t, 200, h), model.RuleServerDisclosure) {
			t.Error("a product name without version is not a disclosure")
		}
	})

	t.Run("credentialed wildcard cors", func(t *testing.T) {
		t.Parallel()

		h := secureHeader()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		if !hasRule(analyze(t, 200, h), model.RulePermissiveCORS) {
			t.Error("expected a permissive CORS finding")
		}
	})

	t.Run("redirects skip missing header checks", func(t *testing.T) {
		t.Parallel()

		if findings := analyze(t, 301, http.Header{"Location": {"/"}}); len(findings) != 0 {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})
}

func TestCookieAnalyzer(t *testing.T) {
	t.Parallel()

	t.Run("one finding per rule", func(t *testing.T) {
		t.Parallel()

		rec := &model.OnlineRecord{
			StatusCode: 200,
			SetCookies: []string{
				"sessionid=abc; Path=/",
				"_ga=GA1.2.3; Secure; Max-Age=63072000; SameSite=None",
				"pref=1; Secure; HttpOnly; Domain=other.example",
				"auth_token=x; Path=/; Secure",
			},
		}
		findings, err := NewCookieAnalyzer().Analyze(context.Background(), newTestData(t, "https://example.com/", rec))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []model.RuleID{
			model.RuleCookieInsecure,
			model.RuleCookieNoHTTPOnly,
			model.RuleCookieSameSiteNone,
			model.RuleCookieTracking,
			model.RuleCookieLongLived,
			model.RuleCookieForeignDomain,
		}
		if diff := cmp.Diff(want, rulesOf(findings)); diff != "" {
			t.Errorf("findings mismatch (-want +got):\n%s", diff)
		}
		if f, _ := findRule(findings, model.RuleCookieNoHTTPOnly); f.Detail != "sessionid, auth_token" {
			t.Errorf("no-httponly detail = %q", f.Detail)
		}
		if f, _ := findRule(findings, model.RuleCookieForeignDomain); f.Detail != "pref (other.example)" {
			t.Errorf("foreign domain detail = %q", f.Detail)
		}
	})

	t.Run("subdomain cookie is not foreign", func(t *testing.T) {
		t.Parallel()

		rec := &model.OnlineRecord{SetCookies: []string{"a=1; Secure; HttpOnly; Domain=.example.com"}}
		findings, err := NewCookieAnalyzer().Analyze(context.Background(), newTestData(t, "https://www.example.com/", rec))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(findings) != 0 {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})

	t.Run("excessive count", func(t *testing.T) {
		t.Parallel()

		rec := &model.OnlineRecord{}
		for i := range maxCookies + 1 {
			rec.SetCookies = append(rec.SetCookies, fmt.Sprintf("c%d=v; Secure; HttpOnly", i))
		}
		findings, err := NewCookieAnalyzer().Analyze(context.Background(), newTestData(t, "https://example.com/", rec))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, ok := findRule(findings, model.RuleCookieExcessiveCount)
		if !ok || f.Detail != "21" {
			t.Errorf("unexpected excessive count finding %+v", f)
		}
	})

	t.Run("prefers parsed cookies", func(t *testing.T) {
		t.Parallel()

		rec := &model.OnlineRecord{
			SetCookies: []string{"ignored=1"},
			Cookies:    []*http.Cookie{{Name: "ok", Value: "1", Secure: true, HttpOnly: true}},
		}
		findings, err := NewCookieAnalyzer().Analyze(context.Background(), newTestData(t, "https://example.com/", rec))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(findings) != 0 {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})
}

func TestTLSAnalyzer(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		host   string
		mutate func(c *model.Certificate)
		want   []model.RuleID
	}{
		{
			name:   "valid certificate",
			host:   "https://www.example.com/",
			mutate: func(*model.Certificate) {},
			want:   []model.RuleID{},
		},
		{
			name: "expired",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.NotAfter = fixedNow.AddDate(0, 0, -1)
			},
			want: []model.RuleID{model.RuleTLSExpired},
		},
		{
			name: "not yet valid",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.NotBefore = fixedNow.AddDate(0, 0, 1)
			},
			want: []model.RuleID{model.RuleTLSNotYetValid},
		},
		{
			name: "fresh",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.NotBefore = fixedNow.Add(-36 * time.Hour)
			},
			want: []model.RuleID{model.RuleTLSFresh},
		},
		{
			name: "self signed",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.SelfSigned = true
			},
			want: []model.RuleID{model.RuleTLSSelfSigned},
		},
		{
			name:   "name mismatch",
			host:   "https://login.example.com/",
			mutate: func(*model.Certificate) {},
			want:   []model.RuleID{model.RuleTLSNameMismatch},
		},
		{
			name: "weak rsa key",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.PublicKeyAlgorithm = "RSA"
				c.PublicKeyBits = 1024
			},
			want: []model.RuleID{model.RuleTLSWeakKey},
		},
		{
			name: "client auth only",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.ExtKeyUsageOIDs = []string{"1.3.6.1.5.5.7.3.2"}
			},
			want: []model.RuleID{model.RuleTLSNoServerAuth},
		},
		{
			name: "revoked",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.OCSPStatus = "revoked"
			},
			want: []model.RuleID{model.RuleTLSRevoked},
		},
		{
			name: "legacy protocol",
			host: "https://example.com/",
			mutate: func(c *model.Certificate) {
				c.TLSVersion = "TLS1.0"
			},
			want: []model.RuleID{model.RuleTLSLegacyVersion},
		},
		{
			name: "wildcard",
			host: "https://login.example.com/",
			mutate: func(c *model.Certificate) {
				c.DNSNames = []string{"example.com", "*.example.com"}
			},
			want: []model.RuleID{model.RuleTLSWildcard},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cert := validCert()
			tc.mutate(cert)
			data := newTestData(t, tc.host, &model.OnlineRecord{StatusCode: 200, Certificate: cert})
			findings, err := NewTLSAnalyzer().Analyze(context.Background(), data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, rulesOf(findings)); diff != "" {
				t.Errorf("findings mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("missing certificate", func(t *testing.T) {
		t.Parallel()

		data := newTestData(t, "https://example.com/", &model.OnlineRecord{StatusCode: 200})
		findings, err := NewTLSAnalyzer().Analyze(context.Background(), data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff([]model.RuleID{model.RuleTLSMissing}, rulesOf(findings)); diff != "" {
			t.Errorf("findings mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("ip host needs an ip san", func(t *testing.T) {
		t.Parallel()

		cert := validCert()
		cert.IPAddresses = []string{"192.0.2.10"}
		data := newTestData(t, "https://192.0.2.10/", &model.OnlineRecord{StatusCode: 200, Certificate: cert})
		findings, err := NewTLSAnalyzer().Analyze(context.Background(), data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if hasRule(findings, model.RuleTLSNameMismatch) {
			t.Error("IP SAN should cover the IP host")
		}
	})
}

func TestMatchHostname(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		pattern, host string
		want          bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "EXAMPLE.com.", true},
		{"*.example.com", "www.example.com", true},
		{"*.example.com", "a.b.example.com", false},
		{"*.example.com", "example.com", false},
		{"*.com", "example.com", false},
	}

	for _, tc := range testCases {
		if got := matchHostname(tc.pattern, tc.host); got != tc.want {
			t.Errorf("matchHostname(%q, %q) = %v, want %v", tc.pattern, tc.host, got, tc.want)
		}
	}
}
