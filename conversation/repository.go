package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/halcyonhealth/chatvault/core"
	"github.com/halcyonhealth/chatvault/search"
	"github.com/halcyonhealth/chatvault/storage"
)

const (
	// DefaultMaxConversations caps the number of stored conversations.
	// Insertion beyond the cap evicts the least-recently-updated records.
	DefaultMaxConversations = 50

	// DefaultMaxMessages caps the persisted message sequence per
	// conversation. Only the most recent messages are retained;
	// TotalMessages keeps the true historical count.
	DefaultMaxMessages = 100

	// quotaEvictFraction is the share of oldest records evicted when the
	// store rejects a write for lack of space.
	quotaEvictFraction = 0.3
)

// Repository owns the stored conversation collection. All writes rewrite the
// whole collection under storage.ConversationsKey as one atomic put; reads
// parse it back. Commits from one Repository are serialized by a mutex.
type Repository struct {
	blobs            storage.BlobStore
	logger           *slog.Logger
	maxConversations int
	maxMessages      int

	mu sync.Mutex

	// Overridable for tests.
	now   func() time.Time
	newID func() string
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithMaxConversations sets the stored conversation cap.
func WithMaxConversations(max int) RepositoryOption {
	return func(r *Repository) {
		if max > 0 {
			r.maxConversations = max
		}
	}
}

// WithMaxMessages sets the persisted message cap per conversation.
func WithMaxMessages(max int) RepositoryOption {
	return func(r *Repository) {
		if max > 0 {
			r.maxMessages = max
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) RepositoryOption {
	return func(r *Repository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRepository creates a conversation repository on top of a blob store.
func NewRepository(blobs storage.BlobStore, opts ...RepositoryOption) (*Repository, error) {
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}

	r := &Repository{
		blobs:            blobs,
		logger:           slog.Default(),
		maxConversations: DefaultMaxConversations,
		maxMessages:      DefaultMaxMessages,
		now:              func() time.Time { return time.Now().UTC() },
		newID:            core.NewConversationID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create assigns a fresh id, computes derived fields, inserts the new record
// at the head of the collection and persists it, evicting the
// least-recently-updated records if the cap is exceeded.
func (r *Repository) Create(ctx context.Context, messages []core.Message, characterDescription string) (*core.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	conv := core.Conversation{
		ID:                   r.newID(),
		CreatedAt:            now,
		UpdatedAt:            now,
		CharacterDescription: characterDescription,
	}
	r.applyDerived(&conv, messages)

	return r.insert(ctx, conv)
}

// CreateFrom inserts an externally supplied conversation, always under a
// fresh id so imported records can never overwrite existing ones. The title
// and creation time are preserved when present; UpdatedAt is set to now.
func (r *Repository) CreateFrom(ctx context.Context, conv *core.Conversation) (*core.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stored := core.Conversation{
		ID:                   r.newID(),
		CreatedAt:            conv.CreatedAt,
		UpdatedAt:            now,
		CharacterDescription: conv.CharacterDescription,
	}
	if stored.CreatedAt.IsZero() || stored.CreatedAt.After(now) {
		stored.CreatedAt = now
	}
	r.applyDerived(&stored, conv.Messages)
	if conv.Title != "" {
		stored.Title = conv.Title
	}

	return r.insert(ctx, stored)
}

// Update recomputes all derived fields, bumps UpdatedAt, replaces the record
// and persists the whole collection. Returns storage.ErrNotFound when no
// record with the id exists; callers fall back to Create.
func (r *Repository) Update(ctx context.Context, id string, messages []core.Message, characterDescription string) (*core.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	convs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	idx := slices.IndexFunc(convs, func(c core.Conversation) bool { return c.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
	}

	conv := convs[idx]
	conv.UpdatedAt = r.now()
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		conv.UpdatedAt = conv.CreatedAt
	}
	if characterDescription != "" {
		conv.CharacterDescription = characterDescription
	}
	r.applyDerived(&conv, messages)

	// Move the updated record to the head to keep recency order.
	convs = slices.Delete(convs, idx, idx+1)
	convs = slices.Insert(convs, 0, conv)

	if _, err = r.persist(ctx, convs); err != nil {
		return nil, err
	}
	return &conv, nil
}

// Save updates the record with the given id, falling back to Create when the
// id is empty or the record no longer exists.
func (r *Repository) Save(ctx context.Context, id string, messages []core.Message, characterDescription string) (*core.Conversation, error) {
	if id == "" {
		return r.Create(ctx, messages, characterDescription)
	}
	conv, err := r.Update(ctx, id, messages, characterDescription)
	if errors.Is(err, storage.ErrNotFound) {
		return r.Create(ctx, messages, characterDescription)
	}
	return conv, err
}

// Delete removes the record if present and reports whether it existed.
// Deleting the active conversation clears the active session pointer.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	convs, err := r.loadAll(ctx)
	if err != nil {
		return false, err
	}

	idx := slices.IndexFunc(convs, func(c core.Conversation) bool { return c.ID == id })
	if idx < 0 {
		return false, nil
	}
	convs = slices.Delete(convs, idx, idx+1)

	if _, err := r.persist(ctx, convs); err != nil {
		return false, err
	}

	if active, _ := r.activeID(ctx); active == id {
		if err := r.blobs.Delete(ctx, storage.CurrentConversationKey); err != nil {
			r.logger.Error("error clearing active conversation pointer", "err", err)
		}
	}
	return true, nil
}

// Get retrieves a conversation by id. Returns storage.ErrNotFound if absent.
func (r *Repository) Get(ctx context.Context, id string) (*core.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	convs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].ID == id {
			return &convs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: conversation %s", storage.ErrNotFound, id)
}

// List returns all conversations ordered by UpdatedAt descending. It never
// fails: on internal errors it degrades to an empty result and logs the
// diagnostic, so list views stay usable even when history is unreadable.
func (r *Repository) List(ctx context.Context) []core.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	convs, err := r.loadAll(ctx)
	if err != nil {
		r.logger.Error("error listing conversations", "err", err)
		return nil
	}
	return convs
}

// Summaries returns the list-view projection of List.
func (r *Repository) Summaries(ctx context.Context) []core.ConversationSummary {
	convs := r.List(ctx)
	summaries := make([]core.ConversationSummary, len(convs))
	for i := range convs {
		summaries[i] = convs[i].Summarize()
	}
	return summaries
}

// Search returns the summaries matching a free-text query, in UpdatedAt
// descending order. An empty query returns all summaries.
func (r *Repository) Search(ctx context.Context, query string) []core.ConversationSummary {
	all := r.Summaries(ctx)
	matched := make([]core.ConversationSummary, 0, len(all))
	for _, s := range all {
		if search.Matches(s, query) {
			matched = append(matched, s)
		}
	}
	return matched
}

// ClearAll empties the collection and clears the active session pointer.
func (r *Repository) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.blobs.Delete(ctx, storage.ConversationsKey); err != nil {
		return err
	}
	return r.blobs.Delete(ctx, storage.CurrentConversationKey)
}

// SetActive records the id of the current conversation.
func (r *Repository) SetActive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == "" {
		return r.blobs.Delete(ctx, storage.CurrentConversationKey)
	}
	return r.blobs.Put(ctx, storage.CurrentConversationKey, []byte(id))
}

// ClearActive removes the active session pointer.
func (r *Repository) ClearActive(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blobs.Delete(ctx, storage.CurrentConversationKey)
}

// Active returns the id of the current conversation, or "". A pointer that
// references no existing record is stale: it is cleared and "" is returned.
func (r *Repository) Active(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.activeID(ctx)
	if err != nil || id == "" {
		return "", err
	}

	convs, err := r.loadAll(ctx)
	if err != nil {
		return "", err
	}
	for i := range convs {
		if convs[i].ID == id {
			return id, nil
		}
	}

	r.logger.Warn("clearing stale active conversation pointer", "id", id)
	if err := r.blobs.Delete(ctx, storage.CurrentConversationKey); err != nil {
		return "", err
	}
	return "", nil
}

// Usage reports how full the underlying store is.
func (r *Repository) Usage(ctx context.Context) (storage.UsageStats, error) {
	used, err := r.blobs.UsageBytes(ctx)
	if err != nil {
		return storage.UsageStats{}, err
	}
	return storage.NewUsageStats(used, r.blobs.CapacityBytes()), nil
}

// insert places a prepared conversation at the head of the collection,
// enforces the count cap and persists. Callers hold r.mu.
func (r *Repository) insert(ctx context.Context, conv core.Conversation) (*core.Conversation, error) {
	convs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	convs = slices.Insert(convs, 0, conv)

	// Count-cap eviction: the collection is recency-ordered, so the tail
	// holds the least-recently-updated records. Equal UpdatedAt values are
	// broken by position, the later (older) entry goes first.
	for len(convs) > r.maxConversations {
		victim := convs[len(convs)-1]
		convs = convs[:len(convs)-1]
		r.logger.Warn("evicting conversation over count cap",
			"id", victim.ID, "title", victim.Title, "updatedAt", victim.UpdatedAt)
	}

	if _, err := r.persist(ctx, convs); err != nil {
		return nil, err
	}
	return &conv, nil
}

// applyDerived recomputes every derived field from the logical message list
// and stores the (possibly truncated) persisted sequence.
func (r *Repository) applyDerived(conv *core.Conversation, messages []core.Message) {
	conv.TotalMessages = len(messages)
	conv.HasImages = search.HasImageContent(messages)
	conv.Summary = search.DeriveSummary(messages)
	conv.Tags = search.DeriveTags(messages)
	conv.Title = search.DeriveTitle(firstUserText(messages))

	persisted := messages
	if len(persisted) > r.maxMessages {
		persisted = persisted[len(persisted)-r.maxMessages:]
	}
	conv.Messages = make([]core.Message, len(persisted))
	copy(conv.Messages, persisted)
	for i := range conv.Messages {
		if conv.Messages[i].ID == "" {
			m := &conv.Messages[i]
			m.ID = core.MessageFingerprint(m.Sender, m.Text, i)
		}
	}
}

// loadAll reads and parses the stored collection. An absent key yields an
// empty collection; unparseable bytes are logged and also yield an empty
// collection rather than an error, per the corruption policy.
func (r *Repository) loadAll(ctx context.Context) ([]core.Conversation, error) {
	data, err := r.blobs.Get(ctx, storage.ConversationsKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	convs, err := storage.UnmarshalConversationList(data)
	if err != nil {
		r.logger.Error("stored conversation collection is unreadable, starting empty", "err", err)
		return nil, nil
	}

	slices.SortStableFunc(convs, func(a, b core.Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return convs, nil
}

// persist writes the whole collection as one atomic put. When the store
// rejects the write for lack of space, the oldest ~30% of records are evicted
// and the write retried once; a second failure is surfaced to the caller.
// The head of the collection is the record being committed and is never
// evicted: a record too large to fit on its own fails the commit instead of
// being silently dropped.
func (r *Repository) persist(ctx context.Context, convs []core.Conversation) ([]core.Conversation, error) {
	err := r.blobs.Put(ctx, storage.ConversationsKey, storage.MarshalConversationList(convs))
	if err == nil {
		return convs, nil
	}
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		return convs, err
	}

	evict := int(float64(len(convs))*quotaEvictFraction + 0.5)
	if evict < 1 {
		evict = 1
	}
	if evict > len(convs)-1 {
		evict = len(convs) - 1
	}
	if evict < 1 {
		return convs, err
	}
	r.logger.Warn("storage quota exceeded, evicting oldest conversations",
		"evicting", evict, "stored", len(convs))
	convs = convs[:len(convs)-evict]

	if err := r.blobs.Put(ctx, storage.ConversationsKey, storage.MarshalConversationList(convs)); err != nil {
		r.logger.Error("commit failed after quota eviction, conversation data lost", "err", err)
		return convs, err
	}
	return convs, nil
}

// activeID reads the raw pointer without existence validation.
func (r *Repository) activeID(ctx context.Context) (string, error) {
	data, err := r.blobs.Get(ctx, storage.CurrentConversationKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// firstUserText returns the text of the first user message, or "".
func firstUserText(messages []core.Message) string {
	for i := range messages {
		if messages[i].Sender == core.SenderUser {
			return messages[i].Text
		}
	}
	return ""
}
