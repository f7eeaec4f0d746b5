package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultTimeout bounds a single fetch, including the TLS handshake and
	// the body read. A timeout surfaces as a fetch error finding.
	DefaultTimeout = 15 * time.Second

	// DefaultConcurrency is the number of URLs analyzed in parallel in batch mode.
	DefaultConcurrency = 4

	// DefaultRateLimit is the number of fetches per second shared by every
	// analysis of one run. Zero disables the limiter.
	DefaultRateLimit = 5.0

	// AppName is the application name used for XDG directory paths.
	AppName = "urlvet"

	// DefaultUserAgent is sent with every request unless a site override
	// replaces it. A browser-like value keeps cloaking sites from serving a
	// bot-only page.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

	// DefaultMaxBodySize limits the response body read into memory. Bodies
	// above the script extraction limit are still read so that the
	// oversize finding can be raised.
	DefaultMaxBodySize = 2 * 1024 * 1024 // 2MB

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultCacheTTL is how long a cached response stays valid.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultFailUnder disables the score gate of the analyze command.
	DefaultFailUnder = 0
)

// Config holds all configuration options for urlvet.
// It is populated from CLI flags and the optional config file and passed
// down explicitly; there is no global configuration state.
type Config struct {
	// Timeout is the timeout of one fetch.
	Timeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// Concurrency is the number of URLs analyzed at once in batch mode.
	Concurrency int

	// RateLimit is the number of fetches per second across the whole run.
	// Zero means unlimited.
	RateLimit float64

	// ConfigFilePath is the path to the configuration file.
	// If empty, .urlvet is searched in the current and home directories.
	ConfigFilePath string

	// File holds the parsed configuration file, if one was found.
	File *File

	// JSONReport selects the JSON report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report. Empty means stdout.
	ReportFile string

	// Targets is the list of URLs to analyze.
	Targets []string

	// Offline skips the online phase: no request leaves the machine.
	Offline bool

	// ProxyAddress is an optional SOCKS5 proxy ("host:port") for fetches.
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and fetches through it.
	// Mutually exclusive with ProxyAddress.
	UseTor bool

	// TorStartupTimeout is the maximum time to wait for the embedded Tor
	// daemon to bootstrap. Only used when UseTor is true.
	TorStartupTimeout time.Duration

	// Cache enables the SQLite response cache.
	Cache bool

	// CacheDir is the directory of the response cache database.
	// Defaults to the XDG cache directory.
	CacheDir string

	// CacheTTL is how long a cached response is reused.
	CacheTTL time.Duration

	// UserAgent is the default User-Agent header.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// FailUnder makes the analyze command exit with status 2 when any score
	// is strictly below it. Zero disables the gate.
	FailUnder int
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		Concurrency:       DefaultConcurrency,
		RateLimit:         DefaultRateLimit,
		TorStartupTimeout: DefaultTorStartupTimeout,
		CacheDir:          XDGCacheDir(),
		CacheTTL:          DefaultCacheTTL,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		FailUnder:         DefaultFailUnder,
	}
}

// XDGConfigDir returns the XDG config directory for urlvet.
// On Linux: ~/.config/urlvet
// On macOS: ~/Library/Application Support/urlvet
// On Windows: %APPDATA%\urlvet
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for urlvet.
// On Linux: ~/.cache/urlvet
// On macOS: ~/Library/Caches/urlvet
// On Windows: %LOCALAPPDATA%\urlvet\cache
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Vocabulary returns the effective vocabulary: the built-in tables merged
// with the overrides of the config file.
func (c *Config) Vocabulary() *Vocabulary {
	if c.File == nil {
		return DefaultVocabulary()
	}
	return c.File.Vocabulary.Merge(DefaultVocabulary())
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingTransports
	}
	if c.Cache && c.CacheTTL <= 0 {
		return ErrInvalidCacheTTL
	}
	if c.FailUnder < 0 || c.FailUnder > 100 {
		return ErrInvalidFailUnder
	}
	return nil
}
