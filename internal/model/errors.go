package model

import "errors"

var (
	// ErrUnknownSeverity is returned when a severity name or value is not recognised.
	ErrUnknownSeverity = errors.New("unknown severity")

	// ErrUnknownCategory is returned when a category name is not recognised.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUnknownEntry is returned when a queue entry name is not recognised.
	ErrUnknownEntry = errors.New("unknown entry")

	// ErrUnknownRule is returned when a rule id is not present in the rule book.
	ErrUnknownRule = errors.New("unknown rule")
)
