package repositories

import "errors"

var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when optimistic locking fails: the row's
// version no longer matches what the caller observed.
var ErrVersionConflict = errors.New("version conflict: entity was modified by another device")
