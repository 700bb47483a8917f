package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/halcyonhealth/chatvault/storage"
)

// DefaultCapacityBytes is the default store quota. It mirrors the budget a
// small on-device document store typically grants a single application.
const DefaultCapacityBytes = 5 * 1024 * 1024

// blobPrefix namespaces blob keys inside the badger keyspace.
const blobPrefix = "blob:"

// Backend is a quota-bounded storage.BlobStore backed by BadgerDB. Usage is
// recomputed from the live key set on open and maintained incrementally on
// every put and delete.
type Backend struct {
	db       *badger.DB
	capacity int64
	logger   *slog.Logger

	mu    sync.Mutex
	usage int64
}

var _ storage.BlobStore = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Option configures a Backend.
type Option func(*Backend)

// WithCapacity sets the byte quota. Values below 1 fall back to the default.
func WithCapacity(capacity int64) Option {
	return func(b *Backend) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// OpenBackend opens a BadgerDB-backed blob store at the specified path.
// Creates the directory if it doesn't exist. An empty path with inMemory set
// opens an ephemeral store for tests.
func OpenBackend(filePath string, inMemory bool, opts ...Option) (*Backend, error) {
	var badgerOpts badger.Options

	if inMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		badgerOpts = badger.DefaultOptions(filePath)
	}

	b := &Backend{
		capacity: DefaultCapacityBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	badgerOpts.Logger = &badgerLoggerAdapter{logger: b.logger}
	badgerOpts.Compression = options.None

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, err
	}
	b.db = db

	usage, err := b.computeUsage()
	if err != nil {
		db.Close()
		return nil, err
	}
	b.usage = usage

	return b, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// Get returns the bytes stored under key, or storage.ErrNotFound.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var value []byte
	err := b.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobKey(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put stores value under key, enforcing the byte quota. The projected usage
// accounts for the value the write replaces, so rewriting a key never counts
// its old bytes twice.
func (b *Backend) Put(ctx context.Context, key string, value []byte) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	blobKey := makeBlobKey(key)
	newSize := entrySize(blobKey, len(value))

	var oldSize int64
	err := b.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(blobKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		oldSize = entrySize(blobKey, int(item.ValueSize()))
		return nil
	}, false)
	if err != nil {
		return err
	}

	projected := b.usage - oldSize + newSize
	if projected > b.capacity {
		return fmt.Errorf("%w: %d of %d bytes used, write needs %d more",
			storage.ErrQuotaExceeded, b.usage, b.capacity, projected-b.capacity)
	}

	err = b.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(blobKey, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	b.usage = projected
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	blobKey := makeBlobKey(key)

	var freed int64
	err := b.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(blobKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		freed = entrySize(blobKey, int(item.ValueSize()))
		if err := tx.Delete(blobKey); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	b.usage -= freed
	return nil
}

// UsageBytes reports the current number of stored bytes (keys + values).
func (b *Backend) UsageBytes(ctx context.Context) (int64, error) {
	if b.db.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usage, nil
}

// CapacityBytes reports the configured byte quota.
func (b *Backend) CapacityBytes() int64 {
	return b.capacity
}

// computeUsage sums the sizes of all stored blobs.
func (b *Backend) computeUsage() (int64, error) {
	var total int64
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(blobPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			total += entrySize(item.Key(), int(item.ValueSize()))
		}
		return nil
	}, false)
	return total, err
}

// makeBlobKey namespaces a logical key inside the badger keyspace.
func makeBlobKey(key string) []byte {
	return []byte(blobPrefix + key)
}

// entrySize is the number of quota bytes an entry occupies.
func entrySize(key []byte, valueLen int) int64 {
	return int64(len(key) - len(blobPrefix) + valueLen)
}
