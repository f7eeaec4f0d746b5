package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/urlvet/internal/model"
)

// fileName is the database file created inside the cache directory.
const fileName = "urlvet.db"

// timeLayout is a fixed-width UTC layout, so fetched_at compares correctly
// as text inside SQLite.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ResponseDB caches raw fetch results keyed by URL.
//
// Only what the network returned is stored: status, headers, cookies, body
// and the certificate record. Findings are always recomputed, so a rule or
// vocabulary change takes effect on cached responses too.
type ResponseDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string

	// now is the clock used for expiry.
	now func() time.Time
}

// Options configures ResponseDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so that batch runs reading and
	// writing the cache concurrently do not block each other.
	EnableWAL bool

	// Now overrides the clock used for expiry. Nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the response cache in dbDir.
func Open(dbDir string, opts Options) (*ResponseDB, error) {
	dbPath := filepath.Join(dbDir, fileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc creates it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rdb := &ResponseDB{
		db:     db,
		dbPath: dbPath,
		now:    now,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return rdb, nil
}

// Path returns the database file path.
func (rdb *ResponseDB) Path() string {
	return rdb.dbPath
}

// Close closes the database connection.
func (rdb *ResponseDB) Close() error {
	return rdb.db.Close()
}

func (rdb *ResponseDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS responses (
		url TEXT PRIMARY KEY,
		fetched_at TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		headers TEXT NOT NULL,
		set_cookies TEXT NOT NULL,
		body BLOB,
		body_truncated INTEGER NOT NULL DEFAULT 0,
		location TEXT,
		certificate TEXT,
		duration_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_responses_fetched_at ON responses(fetched_at);
	`

	_, err := rdb.db.ExecContext(context.Background(), schema)
	return err
}

// Put stores rec under url, replacing any earlier entry.
func (rdb *ResponseDB) Put(ctx context.Context, url string, rec *model.OnlineRecord) error {
	if rec == nil {
		return ErrNilRecord
	}

	headersJSON, err := json.Marshal(rec.Header)
	if err != nil {
		return fmt.Errorf("failed to serialize headers: %w", err)
	}
	cookiesJSON, err := json.Marshal(rec.SetCookies)
	if err != nil {
		return fmt.Errorf("failed to serialize cookies: %w", err)
	}
	var certJSON sql.NullString
	if rec.Certificate != nil {
		b, err := json.Marshal(rec.Certificate)
		if err != nil {
			return fmt.Errorf("failed to serialize certificate: %w", err)
		}
		certJSON = sql.NullString{String: string(b), Valid: true}
	}

	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = rdb.now()
	}

	query := `
	INSERT INTO responses (url, fetched_at, status_code, headers, set_cookies, body, body_truncated, location, certificate, duration_ns)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		fetched_at = excluded.fetched_at,
		status_code = excluded.status_code,
		headers = excluded.headers,
		set_cookies = excluded.set_cookies,
		body = excluded.body,
		body_truncated = excluded.body_truncated,
		location = excluded.location,
		certificate = excluded.certificate,
		duration_ns = excluded.duration_ns
	`

	_, err = rdb.db.ExecContext(ctx, query,
		url,
		fetchedAt.UTC().Format(timeLayout),
		rec.StatusCode,
		string(headersJSON),
		string(cookiesJSON),
		rec.Body,
		rec.BodyTruncated,
		rec.Location,
		certJSON,
		int64(rec.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to store response: %w", err)
	}
	return nil
}

// Get returns the response cached for url if it is younger than maxAge.
// A missing or expired entry returns nil without error.
func (rdb *ResponseDB) Get(ctx context.Context, url string, maxAge time.Duration) (*model.OnlineRecord, error) {
	query := `
	SELECT fetched_at, status_code, headers, set_cookies, body, body_truncated, location, certificate, duration_ns
	FROM responses
	WHERE url = ?
	`

	var (
		rec         model.OnlineRecord
		fetchedAt   string
		headersJSON string
		cookiesJSON string
		location    sql.NullString
		certJSON    sql.NullString
		durationNS  int64
	)
	err := rdb.db.QueryRowContext(ctx, query, url).Scan(
		&fetchedAt,
		&rec.StatusCode,
		&headersJSON,
		&cookiesJSON,
		&rec.Body,
		&rec.BodyTruncated,
		&location,
		&certJSON,
		&durationNS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}

	rec.FetchedAt = parseTimestamp(fetchedAt)
	if rec.FetchedAt.IsZero() || rdb.now().Sub(rec.FetchedAt) > maxAge {
		return nil, nil
	}

	if err := json.Unmarshal([]byte(headersJSON), &rec.Header); err != nil {
		return nil, fmt.Errorf("failed to parse headers: %w", err)
	}
	if err := json.Unmarshal([]byte(cookiesJSON), &rec.SetCookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookies: %w", err)
	}
	if certJSON.Valid {
		rec.Certificate = &model.Certificate{}
		if err := json.Unmarshal([]byte(certJSON.String), rec.Certificate); err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
	}
	rec.Location = location.String
	rec.Duration = time.Duration(durationNS)
	rec.Cookies = parseCookies(rec.SetCookies)

	return &rec, nil
}

// Prune deletes every entry older than maxAge and returns how many were removed.
func (rdb *ResponseDB) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := rdb.now().Add(-maxAge).UTC().Format(timeLayout)
	result, err := rdb.db.ExecContext(ctx, "DELETE FROM responses WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune responses: %w", err)
	}
	return result.RowsAffected()
}

// parseCookies parses raw Set-Cookie values, skipping the invalid ones.
func parseCookies(raw []string) []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(raw))
	for _, line := range raw {
		c, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, c)
	}
	return cookies
}

// timestampFormats lists the layouts accepted when reading fetched_at.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
}

// parseTimestamp returns the zero time when no layout matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
