// Package storage provides the storage abstraction layer for chatvault.
//
// It defines the BlobStore contract — a quota-bounded key/value persistence
// surface modeled after a small on-device document store — together with the
// sentinel errors and serialization helpers shared by every backend. Multiple
// key consistency is deliberately not part of the contract: callers that need
// an atomic view of related data must write it under a single key.
package storage
