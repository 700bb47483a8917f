package storage

import "context"

// Well-known keys in the blob store. The whole conversation collection lives
// under a single key so that every commit is one atomic write.
const (
	// ConversationsKey holds the serialized conversation collection.
	ConversationsKey = "conversations"

	// CurrentConversationKey holds the id of the active conversation, if any.
	CurrentConversationKey = "current-conversation-id"
)

// BlobStore is a thin wrapper over quota-bounded key/value persistence.
// Implementations must be thread-safe and guarantee single-key atomicity;
// multi-key consistency is the caller's responsibility.
type BlobStore interface {
	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key. Returns ErrQuotaExceeded when the write
	// would exceed the configured capacity; the write may be retried after
	// the caller frees space.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// UsageBytes reports the current number of stored bytes (keys + values).
	UsageBytes(ctx context.Context) (int64, error)

	// CapacityBytes reports the configured maximum number of stored bytes.
	CapacityBytes() int64

	// Close closes the store and releases resources.
	Close() error
}

// UsageStats describes how full the underlying store is.
type UsageStats struct {
	UsedBytes     int64   `json:"usedBytes"`
	CapacityBytes int64   `json:"capacityBytes"`
	PercentUsed   float64 `json:"percentageUsed"`
}

// NewUsageStats computes usage statistics from raw byte counts.
func NewUsageStats(used, capacity int64) UsageStats {
	stats := UsageStats{UsedBytes: used, CapacityBytes: capacity}
	if capacity > 0 {
		stats.PercentUsed = float64(used) / float64(capacity) * 100
	}
	return stats
}
