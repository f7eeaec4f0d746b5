package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nao1215/urlvet/internal/model"
)

// TestNewConfig verifies the documented defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 15 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 15*time.Second {
			t.Errorf("expected Timeout to be 15s, got %v", cfg.Timeout)
		}
	})

	t.Run("default Concurrency is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 4 {
			t.Errorf("expected Concurrency to be 4, got %d", cfg.Concurrency)
		}
	})

	t.Run("default UseTor is false", func(t *testing.T) {
		t.Parallel()
		if cfg.UseTor {
			t.Error("expected UseTor to be false")
		}
	})

	t.Run("default cache is disabled under the XDG cache dir", func(t *testing.T) {
		t.Parallel()
		if cfg.Cache {
			t.Error("expected Cache to be false")
		}
		if cfg.CacheDir != XDGCacheDir() {
			t.Errorf("expected CacheDir %q, got %q", XDGCacheDir(), cfg.CacheDir)
		}
		if cfg.CacheTTL != 10*time.Minute {
			t.Errorf("expected CacheTTL 10m, got %v", cfg.CacheTTL)
		}
	})

	t.Run("default config is valid once a target is set", func(t *testing.T) {
		t.Parallel()
		c := NewConfig()
		c.Targets = []string{"https://example.com"}
		if err := c.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

// TestConfigValidate tests each validation rule in isolation.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		c := NewConfig()
		c.Targets = []string{"https://example.com"}
		return c
	}

	testCases := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid config", func(*Config) {}, nil},
		{"no targets", func(c *Config) { c.Targets = nil }, ErrNoTarget},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, ErrInvalidTimeout},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"negative rate", func(c *Config) { c.RateLimit = -1 }, ErrInvalidRateLimit},
		{"zero rate is unlimited", func(c *Config) { c.RateLimit = 0 }, nil},
		{"json and markdown", func(c *Config) { c.JSONReport, c.MarkdownReport = true, true }, ErrConflictingReportFormats},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"tor and proxy", func(c *Config) { c.UseTor, c.ProxyAddress = true, "127.0.0.1:9050" }, ErrConflictingTransports},
		{"cache without ttl", func(c *Config) { c.Cache, c.CacheTTL = true, 0 }, ErrInvalidCacheTTL},
		{"ttl ignored without cache", func(c *Config) { c.CacheTTL = 0 }, nil},
		{"fail-under above 100", func(c *Config) { c.FailUnder = 101 }, ErrInvalidFailUnder},
		{"fail-under negative", func(c *Config) { c.FailUnder = -1 }, ErrInvalidFailUnder},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.modify(cfg)
			err := cfg.Validate()
			if tc.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// TestFileGetSiteConfig tests the GetSiteConfig method.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	t.Run("returns defaults when site not found", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Defaults: SiteConfig{Cookie: "default_cookie=abc", UserAgent: "ua/1"},
			Sites:    map[string]SiteConfig{},
		}

		cfg := file.GetSiteConfig("unknown.example")
		if cfg.Cookie != "default_cookie=abc" {
			t.Errorf("expected default cookie, got %q", cfg.Cookie)
		}
		if cfg.UserAgent != "ua/1" {
			t.Errorf("expected default user agent, got %q", cfg.UserAgent)
		}
	})

	t.Run("returns site-specific config", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Defaults: SiteConfig{Cookie: "default_cookie=abc"},
			Sites: map[string]SiteConfig{
				"example.com": {Cookie: "session=xyz", UserAgent: "ua/2"},
			},
		}

		cfg := file.GetSiteConfig("EXAMPLE.com")
		if cfg.Cookie != "session=xyz" {
			t.Errorf("expected site cookie, got %q", cfg.Cookie)
		}
		if cfg.UserAgent != "ua/2" {
			t.Errorf("expected site user agent, got %q", cfg.UserAgent)
		}
	})

	t.Run("parent domain entry applies to subdomains", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Sites: map[string]SiteConfig{
				"example.com":     {Cookie: "parent=1"},
				"api.example.com": {Cookie: "api=1"},
			},
		}

		if got := file.GetSiteConfig("www.example.com").Cookie; got != "parent=1" {
			t.Errorf("expected parent cookie, got %q", got)
		}
		if got := file.GetSiteConfig("v2.api.example.com").Cookie; got != "api=1" {
			t.Errorf("expected most specific cookie, got %q", got)
		}
		if got := file.GetSiteConfig("example.org").Cookie; got != "" {
			t.Errorf("expected no cookie, got %q", got)
		}
	})

	t.Run("merges headers without mutating defaults", func(t *testing.T) {
		t.Parallel()

		file := &File{
			Defaults: SiteConfig{Headers: map[string]string{"X-Default": "value1"}},
			Sites: map[string]SiteConfig{
				"example.com": {Headers: map[string]string{"X-Site": "value2"}},
			},
		}

		got := file.GetSiteConfig("example.com").Headers
		want := map[string]string{"X-Default": "value1", "X-Site": "value2"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("headers mismatch (-want +got):\n%s", diff)
		}
		if _, leaked := file.Defaults.Headers["X-Site"]; leaked {
			t.Error("site header leaked into defaults")
		}
	})
}

// TestFileRuleBook tests rule overrides from the config file.
func TestFileRuleBook(t *testing.T) {
	t.Parallel()

	t.Run("applies overrides", func(t *testing.T) {
		t.Parallel()

		penalty := -1
		sev := model.SeverityInfo
		file := &File{Rules: map[model.RuleID]model.RuleOverride{
			model.RuleMissingHSTS: {Severity: &sev, Penalty: &penalty},
		}}

		rb, err := file.RuleBook()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		r, _ := rb.Lookup(model.RuleMissingHSTS)
		if r.Penalty != -1 || r.Severity != model.SeverityInfo {
			t.Errorf("override not applied: %+v", r)
		}
	})

	t.Run("rejects unknown rules", func(t *testing.T) {
		t.Parallel()

		penalty := -1
		file := &File{Rules: map[model.RuleID]model.RuleOverride{"no.such_rule": {Penalty: &penalty}}}
		if _, err := file.RuleBook(); !errors.Is(err, model.ErrUnknownRule) {
			t.Errorf("expected ErrUnknownRule, got %v", err)
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.urlvet")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".urlvet")
		content := `defaults:
  userAgent: "urlvet-test"
sites:
  example.com:
    cookie: "session=xyz"
    headers:
      Authorization: "Bearer token"
vocabulary:
  brands:
    - AcmeBank
  scriptCalls:
    - name: eval
      rule: body.script_decode
rules:
  header.missing_hsts:
    severity: info
    penalty: 0
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cf.Defaults.UserAgent != "urlvet-test" {
			t.Errorf("expected default user agent, got %q", cf.Defaults.UserAgent)
		}
		site, ok := cf.Sites["example.com"]
		if !ok {
			t.Fatal("expected example.com in sites")
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Errorf("expected Authorization header")
		}

		o, ok := cf.Rules[model.RuleMissingHSTS]
		if !ok || o.Severity == nil || *o.Severity != model.SeverityInfo || o.Penalty == nil || *o.Penalty != 0 {
			t.Errorf("unexpected rule override %+v", o)
		}

		cfg := &Config{File: cf}
		vocab := cfg.Vocabulary()
		if _, ok := vocab.BrandIn("my-acmebank-login"); !ok {
			t.Error("expected file brand to be merged")
		}
		if _, ok := vocab.BrandIn("paypal"); !ok {
			t.Error("expected built-in brands to be kept")
		}
		for _, call := range vocab.ScriptCalls {
			if call.Name == "eval" && call.Rule != model.RuleScriptDecode {
				t.Errorf("expected eval to be remapped, got %s", call.Rule)
			}
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".urlvet")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("returns error for unknown rule id", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".urlvet")
		content := "rules:\n  host.bogus:\n    penalty: -5\n"
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); !errors.Is(err, model.ErrUnknownRule) {
			t.Errorf("expected ErrUnknownRule, got %v", err)
		}
	})

	t.Run("returns error for unknown severity", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".urlvet")
		content := "rules:\n  header.missing_hsts:\n    severity: apocalyptic\n"
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); !errors.Is(err, model.ErrUnknownSeverity) {
			t.Errorf("expected ErrUnknownSeverity, got %v", err)
		}
	})

	t.Run("returns error for script call with unknown rule", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".urlvet")
		content := "vocabulary:\n  scriptCalls:\n    - name: foo\n      rule: body.nope\n"
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); !errors.Is(err, ErrInvalidScriptCall) {
			t.Errorf("expected ErrInvalidScriptCall, got %v", err)
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".urlvet")
		if err := os.WriteFile(configPath, []byte("defaults:\n  cookie: a=b\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cf, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cf.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if filepath.Base(XDGConfigDir()) != AppName {
		t.Errorf("unexpected XDG config dir %q", XDGConfigDir())
	}
	if filepath.Base(XDGCacheDir()) != AppName {
		t.Errorf("unexpected XDG cache dir %q", XDGCacheDir())
	}
}
