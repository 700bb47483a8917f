package conversation

import "errors"

var (
	// ErrBlobStoreRequired is returned when a blob store is not provided.
	ErrBlobStoreRequired = errors.New("blob store required")

	// ErrRepositoryRequired is returned when a repository is not provided.
	ErrRepositoryRequired = errors.New("repository required")

	// ErrMalformedSnapshot indicates import input is not a recognizable
	// snapshot document. No records are processed.
	ErrMalformedSnapshot = errors.New("malformed snapshot")

	// ErrMalformedRecord indicates a single record inside an otherwise valid
	// snapshot failed validation. Processing continues with the remainder.
	ErrMalformedRecord = errors.New("malformed record")
)
