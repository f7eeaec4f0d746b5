package database

import "errors"

var (
	// ErrNotFound is returned by Open when the database file does not exist
	// and CreateIfNotExists is false.
	ErrNotFound = errors.New("database not found")

	// ErrNilRecord is returned by Put when there is nothing to store.
	ErrNilRecord = errors.New("nil response record")
)
