package storage

import "errors"

// ErrNotFound is returned when a referenced record does not exist for the
// requesting user. Handlers map it to a 404.
var ErrNotFound = errors.New("record not found")
