package storage

import "errors"

var (
	// ErrNotFound indicates that the requested key or record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrQuotaExceeded indicates the store refused a write because the
	// configured byte capacity was reached. Retriable after freeing space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrSerializationFailed indicates persisted bytes could not be parsed
	// back (corruption or version drift).
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")
)
