package fetch

import (
	"context"
	"log/slog"
	"time"

	urlvetlog "github.com/nao1215/urlvet/internal/log"
	"github.com/nao1215/urlvet/internal/model"
)

// Cache stores raw fetch results. database.ResponseDB implements it.
type Cache interface {
	// Get returns the record cached for url if it is younger than maxAge,
	// or nil.
	Get(ctx context.Context, url string, maxAge time.Duration) (*model.OnlineRecord, error)
	Put(ctx context.Context, url string, rec *model.OnlineRecord) error
}

// CachingFetcher serves fetches from a Cache and stores fresh results.
// Cache failures are logged and never fail the fetch.
type CachingFetcher struct {
	next   Fetcher
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachingFetcher wraps next with cache. Entries older than ttl are refetched.
func NewCachingFetcher(next Fetcher, cache Cache, ttl time.Duration, logger *slog.Logger) *CachingFetcher {
	if logger == nil {
		logger = urlvetlog.Discard()
	}
	return &CachingFetcher{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Fetch returns the cached record for rawURL or fetches and caches it.
func (c *CachingFetcher) Fetch(ctx context.Context, rawURL string) (*model.OnlineRecord, error) {
	rec, err := c.cache.Get(ctx, rawURL, c.ttl)
	switch {
	case err != nil:
		c.logger.Warn("response cache read failed", "url", rawURL, "error", err)
	case rec != nil:
		c.logger.Debug("response cache hit", "url", rawURL)
		rec.FromCache = true
		return rec, nil
	}

	rec, err = c.next.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, rawURL, rec); err != nil {
		c.logger.Warn("response cache write failed", "url", rawURL, "error", err)
	}
	return rec, nil
}
