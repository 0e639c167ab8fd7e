package store

import "errors"

// Store errors.
var (
	ErrNotFound         = errors.New("entity not found")
	ErrReadOnlyEntity   = errors.New("entity type is read only")
	ErrUnsupportedQuery = errors.New("query not supported by dialect")
	ErrMultipleRows     = errors.New("key matched more than one row")
)
