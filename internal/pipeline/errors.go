package pipeline

import "errors"

var (
	// ErrNoFetcher is returned when an online analysis is requested without a fetcher.
	ErrNoFetcher = errors.New("pipeline: no fetcher configured")
)
