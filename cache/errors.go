package cache

import "errors"

var (
	// ErrKeyAlreadyExists is returned by Add-family operations when the key
	// is already present. The existing entry is left unchanged.
	ErrKeyAlreadyExists = errors.New("cache: key already exists")

	// ErrKeyNotFound is returned by Get/Remove-family operations when the
	// key is absent (or expired under the Remove expiration policy).
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrClosed is returned by any operation invoked after Close.
	ErrClosed = errors.New("cache: cache is closed")
)
