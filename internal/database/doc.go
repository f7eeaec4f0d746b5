// Package database provides the SQLite response cache behind --cache.
//
// ResponseDB stores what a fetch returned (status, headers, cookies, body
// and certificate record) keyed by URL, and serves it again while it is
// younger than the configured TTL. Analysis results are never stored.
//
// modernc.org/sqlite is used so the binary stays CGO-free; the database is
// a single file under the XDG cache directory.
package database
