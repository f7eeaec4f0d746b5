// Package log provides secure logging built on top of the standard slog
// package.
//
// The SecureHandler masks sensitive information before it reaches the
// underlying handler:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - values that look like secrets (JWTs, bearer tokens, AWS keys)
//   - credentials and secret query values inside analysed URLs
//   - e-mail addresses, which phishing links often carry for the victim
//
// Even in verbose mode, sensitive values are masked.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("fetching", "url", target.URL) // credentials and tokens are redacted
//
// The same logger can be handed to tornago, which logs through slog as well.
package log
