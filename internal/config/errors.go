package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when neither --list nor a positional argument provides a URL.
	ErrNoTarget = errors.New("no target specified: provide a URL or use --list")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the batch concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRateLimit is returned when the fetch rate is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingTransports is returned when both --tor and --proxy are specified.
	ErrConflictingTransports = errors.New("conflicting transports: --tor and --proxy cannot be used together")

	// ErrInvalidCacheTTL is returned when the cache is enabled with a non-positive TTL.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be positive")

	// ErrInvalidFailUnder is returned when --fail-under is outside [0, 100].
	ErrInvalidFailUnder = errors.New("invalid fail-under: must be between 0 and 100")
)
