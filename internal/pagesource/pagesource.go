// Package pagesource defines the contract the backup engine expects from a
// database: ordered page enumeration, single page fetch, and a bulk
// all-or-nothing page replacement used by restore.
package pagesource

import (
	"context"
	"errors"
)

// ErrNoPage is returned by Page when the database has no such page.
var ErrNoPage = errors.New("page does not exist")

// PageFunc receives page pgno (1-based). data is only valid for the duration
// of the call.
type PageFunc func(pgno int, data []byte) error

// Source exposes the pages of an open database in ascending page order.
type Source interface {
	// PageCount returns the number of pages in the main database.
	PageCount(ctx context.Context) (int, error)

	// Pages calls fn for pages 1..N in order, with no gaps. An error
	// returned by fn stops the walk and is returned unchanged.
	Pages(ctx context.Context, fn PageFunc) error

	// Page returns a copy of page pgno or ErrNoPage.
	Page(ctx context.Context, pgno int) ([]byte, error)
}

// Restorer replaces the main database of a handle with the pages of a
// standalone database file. Implementations must leave the handle untouched
// when they return an error.
type Restorer interface {
	RestoreFrom(ctx context.Context, imagePath string) error
}

// Database is a handle that is both a page source and a restore target.
type Database interface {
	Source
	Restorer
}
