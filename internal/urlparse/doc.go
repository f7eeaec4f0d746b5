// Package urlparse turns URL strings into analysis targets.
//
// Hosts are NFC-normalized, converted to their IDNA ASCII and Unicode forms
// and split into subdomain, registrable domain and public suffix. Inputs that
// cannot be analysed safely (empty, unparseable, repeated '?' or '#', not
// HTTPS, malformed host, labels mixing scripts) yield a target carrying one
// critical finding instead of an error, so the caller can stop before any
// network activity.
package urlparse
