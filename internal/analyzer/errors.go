package analyzer

import "errors"

var (
	// ErrNoRecord is returned by online analyzers when the target was not fetched.
	ErrNoRecord = errors.New("target has no online record")
)
