package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("customer not found")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrUnknownDriver = errors.New("unknown database driver")
)
