// Package repository holds the PostgreSQL data access backing the status sources.
package repository

import "errors"

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("not found")

type scanner interface {
	Scan(dest ...any) error
}
