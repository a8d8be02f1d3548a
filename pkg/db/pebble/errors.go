package pebble

import "errors"

var ErrClosed = errors.New("kv-store: database is closed")

const (
	ErrInIteratorCreation = "kv-store: create iterator: %w"
	ErrIteratorValue      = "kv-store: read iterator value: %w"
	ErrOpen               = "kv-store: open %q: %w"
)
