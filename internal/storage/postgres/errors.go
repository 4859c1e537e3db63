package postgres

import "errors"

// ErrNotFound reports that the targeted row does not exist.
var ErrNotFound = errors.New("postgres: not found")
