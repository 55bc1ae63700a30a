package services

import "errors"

// ErrNotFound marks a lookup of a product that does not exist.
var ErrNotFound = errors.New("not found")

// ErrIndexDisabled is returned by index operations when no search index is configured.
var ErrIndexDisabled = errors.New("search index is disabled")
