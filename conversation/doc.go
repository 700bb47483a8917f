// Package conversation implements the conversation lifecycle engine.
//
// The Repository owns the stored collection: create, update, delete, list,
// search, capacity eviction and quota recovery, all on top of a quota-bounded
// storage.BlobStore. Every commit rewrites the entire collection under a
// single key, so each commit is one atomic write. The Autosave type debounces
// rapid message-list mutations into infrequent batched commits, and the
// Porter serializes the collection to a versioned snapshot and merges
// external snapshots back in with conflict-free identifier regeneration.
//
// Commits from the same Repository instance are applied in issue order.
// Separate processes sharing a store are not serialized against each other;
// concurrent whole-collection writes are last-writer-wins.
package conversation
