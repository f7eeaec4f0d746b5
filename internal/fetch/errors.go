package fetch

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrInvalidURL is returned when the target URL cannot be turned into a request.
	ErrInvalidURL = errors.New("invalid target URL")

	// ErrReadBody is returned when the response body could not be read.
	ErrReadBody = errors.New("failed to read response body")
)

// IsTimeout reports whether err is a fetch that ran out of time, either
// through the client timeout or a context deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
