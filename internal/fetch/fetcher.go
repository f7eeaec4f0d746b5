package fetch

import (
	"context"

	"github.com/nao1215/urlvet/internal/model"
)

// Fetcher retrieves the response of a single URL without following redirects.
// A returned error means no response was obtained; HTTP error statuses are
// not errors.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.OnlineRecord, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (*model.OnlineRecord, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*model.OnlineRecord, error) {
	return f(ctx, rawURL)
}
