// Package chatvault persists multi-turn AI chat conversations inside a
// capacity-bounded, on-device key-value store. The Database type wires the
// quota-bounded blob backend, the conversation repository, the debounced
// autosave scheduler and the snapshot import/export service; its lifecycle is
// owned by the application entry point and the components are passed to
// collaborators by reference.
package chatvault

import (
	"context"
	"log/slog"
	"time"

	"github.com/halcyonhealth/chatvault/conversation"
	"github.com/halcyonhealth/chatvault/storage"
	"github.com/halcyonhealth/chatvault/storage/badger"
)

// Database bundles the storage engine components over one store directory.
type Database struct {
	backend  *badger.Backend
	repo     *conversation.Repository
	autosave *conversation.Autosave
	porter   *conversation.Porter
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	inMemory         bool
	capacityBytes    int64
	maxConversations int
	maxMessages      int
	debounceWindow   time.Duration
	logger           *slog.Logger
}

// WithInMemory opens an ephemeral store. Intended for tests.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) { o.inMemory = true }
}

// WithCapacityBytes sets the store byte quota.
func WithCapacityBytes(capacity int64) DatabaseOption {
	return func(o *databaseOptions) { o.capacityBytes = capacity }
}

// WithMaxConversations sets the stored conversation cap.
func WithMaxConversations(max int) DatabaseOption {
	return func(o *databaseOptions) { o.maxConversations = max }
}

// WithMaxMessages sets the persisted message cap per conversation.
func WithMaxMessages(max int) DatabaseOption {
	return func(o *databaseOptions) { o.maxMessages = max }
}

// WithDebounceWindow sets the autosave idle window.
func WithDebounceWindow(window time.Duration) DatabaseOption {
	return func(o *databaseOptions) { o.debounceWindow = window }
}

// WithLogger sets the logger used by every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) { o.logger = logger }
}

// NewDatabase opens the store at filePath and wires the engine components.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	var backendOpts []badger.Option
	if options.capacityBytes > 0 {
		backendOpts = append(backendOpts, badger.WithCapacity(options.capacityBytes))
	}
	backendOpts = append(backendOpts, badger.WithLogger(options.logger))

	backend, err := badger.OpenBackend(filePath, options.inMemory, backendOpts...)
	if err != nil {
		return nil, err
	}

	repoOpts := []conversation.RepositoryOption{conversation.WithLogger(options.logger)}
	if options.maxConversations > 0 {
		repoOpts = append(repoOpts, conversation.WithMaxConversations(options.maxConversations))
	}
	if options.maxMessages > 0 {
		repoOpts = append(repoOpts, conversation.WithMaxMessages(options.maxMessages))
	}
	repo, err := conversation.NewRepository(backend, repoOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	autosaveOpts := []conversation.AutosaveOption{conversation.WithAutosaveLogger(options.logger)}
	if options.debounceWindow > 0 {
		autosaveOpts = append(autosaveOpts, conversation.WithDebounceWindow(options.debounceWindow))
	}
	autosave, err := conversation.NewAutosave(repo, autosaveOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}

	porter, err := conversation.NewPorter(repo, conversation.WithPorterLogger(options.logger))
	if err != nil {
		autosave.Close()
		backend.Close()
		return nil, err
	}

	return &Database{
		backend:  backend,
		repo:     repo,
		autosave: autosave,
		porter:   porter,
		logger:   options.logger,
	}, nil
}

// Close releases the autosave worker and closes the backend. Pending
// autosave state is dropped; flush the scheduler first to keep it.
func (db *Database) Close() error {
	db.autosave.Close()
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Conversations returns the conversation repository.
func (db *Database) Conversations() *conversation.Repository {
	return db.repo
}

// Autosave returns the debounced commit scheduler.
func (db *Database) Autosave() *conversation.Autosave {
	return db.autosave
}

// Porter returns the snapshot import/export service.
func (db *Database) Porter() *conversation.Porter {
	return db.porter
}

// Usage reports how full the underlying store is.
func (db *Database) Usage(ctx context.Context) (storage.UsageStats, error) {
	return db.repo.Usage(ctx)
}
