package analyzer

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/scanner"
)

// analyzeCSP runs the body analyzer first, as the suite does, then the CSP analyzer.
func analyzeCSP(t *testing.T, rec *model.OnlineRecord) []model.Finding {
	t.Helper()

	data := newTestData(t, "https://example.com/", rec)
	if _, err := NewBodyAnalyzer().Analyze(context.Background(), data); err != nil {
		t.Fatalf("body analyzer: %v", err)
	}
	findings, err := NewCSPAnalyzer().Analyze(context.Background(), data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return findings
}

func TestCSPAnalyzer(t *testing.T) {
	t.Parallel()

	t.Run("missing policy on html", func(t *testing.T) {
		t.Parallel()

		findings := analyzeCSP(t, htmlRecord(htmlPage("", "")))
		if diff := cmp.Diff([]model.RuleID{model.RuleMissingCSP}, rulesOf(findings)); diff != "" {
			t.Errorf("findings mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("meta policy counts", func(t *testing.T) {
		t.Parallel()

		body := htmlPage(`<meta http-equiv="Content-Security-Policy" content="default-src 'self'">`, "")
		if findings := analyzeCSP(t, htmlRecord(body)); len(findings) != 0 {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})

	t.Run("weak script sources", func(t *testing.T) {
		t.Parallel()

		rec := htmlRecord(htmlPage("", ""))
		rec.Header.Set("Content-Security-Policy", "script-src 'self' 'unsafe-inline' 'unsafe-eval' data: *")
		want := []model.RuleID{
			model.RuleCSPDataScript,
			model.RuleCSPUnsafeEval,
			model.RuleCSPUnsafeInline,
			model.RuleCSPWildcardScript,
		}
		sorted := cmpopts.SortSlices(func(a, b model.RuleID) bool { return a < b })
		if diff := cmp.Diff(want, rulesOf(analyzeCSP(t, rec)), sorted); diff != "" {
			t.Errorf("findings mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nonce disables unsafe-inline", func(t *testing.T) {
		t.Parallel()

		rec := htmlRecord(htmlPage("", ""))
		rec.Header.Set("Content-Security-Policy", "script-src 'nonce-abc' 'unsafe-inline'")
		if findings := analyzeCSP(t, rec); hasRule(findings, model.RuleCSPUnsafeInline) {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})

	t.Run("duplicate directive is malformed", func(t *testing.T) {
		t.Parallel()

		rec := htmlRecord(htmlPage("", ""))
		rec.Header.Set("Content-Security-Policy", "default-src 'self'; default-src https:")
		f, ok := findRule(analyzeCSP(t, rec), model.RuleCSPMalformed)
		if !ok || f.Detail != "duplicate directive default-src" {
			t.Errorf("unexpected malformed finding %+v", f)
		}
	})

	t.Run("scripts checked against the policy", func(t *testing.T) {
		t.Parallel()

		body := htmlPage(
			`<script nonce="abc">ok()</script><script>noNonce()</script>`,
			`<script nonce="zzz">wrong()</script>`+
				`<script src="https://cdn.example.com/lib.js"></script>`+
				`<script src="https://static.example.com/app.js"></script>`+
				`<script src="https://evil.example.net/x.js"></script>`,
		)
		rec := htmlRecord(body)
		rec.Header.Set("Content-Security-Policy", "script-src 'nonce-abc' https://cdn.example.com *.example.com")
		findings := analyzeCSP(t, rec)

		want := []model.RuleID{
			model.RuleCSPInlineNoNonce,
			model.RuleCSPNonceMismatch,
			model.RuleCSPSourceNotAllowed,
		}
		if diff := cmp.Diff(want, rulesOf(findings)); diff != "" {
			t.Errorf("findings mismatch (-want +got):\n%s", diff)
		}
		if f, _ := findRule(findings, model.RuleCSPSourceNotAllowed); f.Detail != "https://evil.example.net/x.js" {
			t.Errorf("source detail = %q", f.Detail)
		}
		if f, _ := findRule(findings, model.RuleCSPNonceMismatch); f.Detail != "zzz" {
			t.Errorf("nonce detail = %q", f.Detail)
		}
	})

	t.Run("redirects are skipped", func(t *testing.T) {
		t.Parallel()

		rec := &model.OnlineRecord{StatusCode: 302, Header: http.Header{"Location": {"/"}}}
		if findings := analyzeCSP(t, rec); len(findings) != 0 {
			t.Errorf("unexpected findings %v", rulesOf(findings))
		}
	})
}

func TestSourceAllowed(t *testing.T) {
	t.Parallel()

	policy, _ := scanner.ParseCSP([]byte("script-src 'self' https://cdn.example.com:443/js/ *.static.example"))
	sources, _ := policy.ScriptSources()
	page := "https://example.com/"

	testCases := []struct {
		src  string
		want bool
	}{
		{"https://example.com/app.js", true},
		{"http://example.com/app.js", false},
		{"https://cdn.example.com/js/lib.js", true},
		{"//cdn.example.com/js/lib.js", true},
		{"https://a.static.example/x.js", true},
		{"https://any.where.example/x.js", false},
		{"/relative.js", false},
	}
	for _, tc := range testCases {
		if got := sourceAllowed(sources, tc.src, page); got != tc.want {
			t.Errorf("sourceAllowed(%q) = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestHostSourceMatches(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		source, scheme, host string
		want                 bool
	}{
		{"cdn.example.com", "https", "cdn.example.com", true},
		{"cdn.example.com", "https", "evil.example.com", false},
		{"https://cdn.example.com/path", "https", "cdn.example.com", true},
		{"http://cdn.example.com", "https", "cdn.example.com", true},
		{"https://cdn.example.com", "http", "cdn.example.com", false},
		{"*.example.com", "https", "a.example.com", true},
		{"*.example.com", "https", "example.com", false},
		{"https:", "https", "anything.example", true},
	}
	for _, tc := range testCases {
		if got := hostSourceMatches(tc.source, tc.scheme, tc.host); got != tc.want {
			t.Errorf("hostSourceMatches(%q, %q, %q) = %v, want %v", tc.source, tc.scheme, tc.host, got, tc.want)
		}
	}
}
