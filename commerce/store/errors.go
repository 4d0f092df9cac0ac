package store

import (
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned by point lookups when the row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrStockConflict is returned when a guarded stock decrement matched no row.
	ErrStockConflict = errors.New("store: stock decrement conflict")
)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
