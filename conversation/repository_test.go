package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonhealth/chatvault/core"
	"github.com/halcyonhealth/chatvault/storage"
	"github.com/halcyonhealth/chatvault/storage/badger"
)

func newTestRepository(t *testing.T, opts ...RepositoryOption) (*Repository, *badger.Backend) {
	t.Helper()

	backend, err := badger.NewMemoryBackend()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	repo, err := NewRepository(backend, opts...)
	require.NoError(t, err)
	return repo, backend
}

// stepClock hands out strictly increasing timestamps one second apart.
func stepClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func userMessage(text string) core.Message {
	return core.Message{Sender: core.SenderUser, Text: text}
}

func aiMessage(text string) core.Message {
	return core.Message{Sender: core.SenderAI, Text: text}
}

func TestRepositoryCreateRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	messages := []core.Message{
		userMessage("My blood pressure was 150/95 this morning."),
		aiMessage("That reading is considered high."),
	}

	created, err := repo.Create(ctx, messages, "calm clinician, teal scrubs")
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	loaded, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, "My blood pressure was 15095 this morning", loaded.Title)
	assert.Equal(t, "calm clinician, teal scrubs", loaded.CharacterDescription)
	assert.Equal(t, 2, loaded.TotalMessages)
	assert.Contains(t, loaded.Tags, "Blood Pressure")
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, messages[0].Text, loaded.Messages[0].Text)
	assert.Equal(t, messages[1].Text, loaded.Messages[1].Text)
	assert.NotEmpty(t, loaded.Messages[0].ID, "persisted messages get fingerprint ids")
	assert.False(t, loaded.UpdatedAt.Before(loaded.CreatedAt))
}

func TestRepositoryUpdate(t *testing.T) {
	repo, _ := newTestRepository(t)
	repo.now = stepClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	created, err := repo.Create(ctx, []core.Message{userMessage("trouble sleeping lately")}, "")
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, []core.Message{
		userMessage("trouble sleeping lately"),
		aiMessage("How many hours do you sleep?"),
		userMessage("about five, plus headaches"),
	}, "")
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 3, updated.TotalMessages)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
	assert.Contains(t, updated.Tags, "Sleep")
	assert.Contains(t, updated.Tags, "Headache")
}

func TestRepositoryUpdateNotFound(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.Update(context.Background(), "ghost", []core.Message{userMessage("hi")}, "")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestRepositorySaveFallsBackToCreate(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	// Empty id creates.
	first, err := repo.Save(ctx, "", []core.Message{userMessage("hello")}, "")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// Unknown id also creates rather than failing.
	second, err := repo.Save(ctx, "ghost", []core.Message{userMessage("hi again")}, "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	// Known id updates in place.
	third, err := repo.Save(ctx, first.ID, []core.Message{userMessage("hello"), aiMessage("hi!")}, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Len(t, repo.List(ctx), 2)
}

func TestRepositoryCapEnforcement(t *testing.T) {
	repo, _ := newTestRepository(t, WithMaxConversations(3))
	repo.now = stepClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		conv, err := repo.Create(ctx, []core.Message{userMessage(fmt.Sprintf("message %d", i))}, "")
		require.NoError(t, err)
		ids = append(ids, conv.ID)
	}

	list := repo.List(ctx)
	require.Len(t, list, 3)

	// The record with the smallest updatedAt was evicted.
	_, err := repo.Get(ctx, ids[0])
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	for _, id := range ids[1:] {
		_, err := repo.Get(ctx, id)
		assert.NoError(t, err)
	}
}

func TestRepositoryCapEvictionTieBreak(t *testing.T) {
	repo, _ := newTestRepository(t, WithMaxConversations(2))
	// Frozen clock: every record shares the same updatedAt.
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	first, err := repo.Create(ctx, []core.Message{userMessage("first")}, "")
	require.NoError(t, err)
	second, err := repo.Create(ctx, []core.Message{userMessage("second")}, "")
	require.NoError(t, err)
	third, err := repo.Create(ctx, []core.Message{userMessage("third")}, "")
	require.NoError(t, err)

	// Ties are broken by collection position: the earliest insertion goes.
	_, err = repo.Get(ctx, first.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	_, err = repo.Get(ctx, second.ID)
	assert.NoError(t, err)
	_, err = repo.Get(ctx, third.ID)
	assert.NoError(t, err)
}

func TestRepositoryMessageTruncation(t *testing.T) {
	repo, _ := newTestRepository(t, WithMaxMessages(5))
	ctx := context.Background()

	var messages []core.Message
	for i := 0; i < 8; i++ {
		messages = append(messages, userMessage(fmt.Sprintf("message %d", i)))
	}

	created, err := repo.Create(ctx, messages, "")
	require.NoError(t, err)

	assert.Equal(t, 8, created.TotalMessages)
	require.Len(t, created.Messages, 5)
	assert.Equal(t, "message 3", created.Messages[0].Text, "only the most recent messages are retained")
	assert.Equal(t, "message 7", created.Messages[4].Text)
}

func TestRepositoryDelete(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	conv, err := repo.Create(ctx, []core.Message{userMessage("hello")}, "")
	require.NoError(t, err)
	require.NoError(t, repo.SetActive(ctx, conv.ID))

	existed, err := repo.Delete(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	// Deleting the active conversation clears the pointer.
	active, err := repo.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	existed, err = repo.Delete(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestRepositoryListOrder(t *testing.T) {
	repo, _ := newTestRepository(t)
	repo.now = stepClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	a, err := repo.Create(ctx, []core.Message{userMessage("oldest")}, "")
	require.NoError(t, err)
	b, err := repo.Create(ctx, []core.Message{userMessage("middle")}, "")
	require.NoError(t, err)
	c, err := repo.Create(ctx, []core.Message{userMessage("newest")}, "")
	require.NoError(t, err)

	list := repo.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	// Updating the oldest moves it to the head.
	_, err = repo.Update(ctx, a.ID, []core.Message{userMessage("oldest"), aiMessage("reply")}, "")
	require.NoError(t, err)

	list = repo.List(ctx)
	assert.Equal(t, a.ID, list[0].ID)
}

func TestRepositorySearchScenario(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	a, err := repo.Create(ctx, []core.Message{
		userMessage("My blood pressure was high today"),
		aiMessage("What was the reading?"),
		userMessage("150 over 95, and blood pressure scares me"),
	}, "")
	require.NoError(t, err)

	_, err = repo.Create(ctx, []core.Message{
		userMessage("I have a skin rash on my arm"),
	}, "")
	require.NoError(t, err)

	matches := repo.Search(ctx, "blood")
	require.Len(t, matches, 1)
	assert.Equal(t, a.ID, matches[0].ID)

	all := repo.Search(ctx, "")
	assert.Len(t, all, 2)

	none := repo.Search(ctx, "appendectomy")
	assert.Empty(t, none)
}

func TestRepositoryClearAll(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	conv, err := repo.Create(ctx, []core.Message{userMessage("hello")}, "")
	require.NoError(t, err)
	require.NoError(t, repo.SetActive(ctx, conv.ID))

	require.NoError(t, repo.ClearAll(ctx))

	assert.Empty(t, repo.List(ctx))
	_, err = repo.Get(ctx, conv.ID)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	active, err := repo.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRepositoryStaleActivePointer(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SetActive(ctx, "ghost"))

	active, err := repo.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "pointer to a missing record is stale and cleared")
}

func TestRepositoryCorruptCollectionDegrades(t *testing.T) {
	repo, backend := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, []core.Message{userMessage("soon lost")}, "")
	require.NoError(t, err)

	// Corrupt the stored collection behind the repository's back.
	require.NoError(t, backend.Put(ctx, storage.ConversationsKey, []byte{0xFF, 0xFF, 0xFF}))

	assert.Empty(t, repo.List(ctx), "unreadable history degrades to empty, not a crash")

	// The store keeps working for new conversations.
	conv, err := repo.Create(ctx, []core.Message{userMessage("fresh start")}, "")
	require.NoError(t, err)
	_, err = repo.Get(ctx, conv.ID)
	assert.NoError(t, err)
}

func TestRepositoryUsage(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Create(ctx, []core.Message{userMessage("hello")}, "")
	require.NoError(t, err)

	stats, err := repo.Usage(ctx)
	require.NoError(t, err)
	assert.Positive(t, stats.UsedBytes)
	assert.Equal(t, int64(badger.DefaultCapacityBytes), stats.CapacityBytes)
	assert.Positive(t, stats.PercentUsed)
}

// quotaStore rejects a configurable number of puts of the conversations key
// with ErrQuotaExceeded to exercise the eviction-and-retry path.
type quotaStore struct {
	data     map[string][]byte
	failPuts int
}

var _ storage.BlobStore = (*quotaStore)(nil)

func newQuotaStore() *quotaStore {
	return &quotaStore{data: map[string][]byte{}}
}

func (s *quotaStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return value, nil
}

func (s *quotaStore) Put(ctx context.Context, key string, value []byte) error {
	if key == storage.ConversationsKey && s.failPuts > 0 {
		s.failPuts--
		return storage.ErrQuotaExceeded
	}
	s.data[key] = value
	return nil
}

func (s *quotaStore) Delete(ctx context.Context, key string) error {
	delete(s.data, key)
	return nil
}

func (s *quotaStore) UsageBytes(ctx context.Context) (int64, error) {
	var total int64
	for key, value := range s.data {
		total += int64(len(key) + len(value))
	}
	return total, nil
}

func (s *quotaStore) CapacityBytes() int64 { return 1024 }

func (s *quotaStore) Close() error { return nil }

func TestRepositoryQuotaEvictionRetry(t *testing.T) {
	store := newQuotaStore()
	repo, err := NewRepository(store)
	require.NoError(t, err)
	repo.now = stepClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := repo.Create(ctx, []core.Message{userMessage(fmt.Sprintf("message %d", i))}, "")
		require.NoError(t, err)
	}
	require.Len(t, repo.List(ctx), 10)

	// The next commit hits the quota once; ~30% of the oldest records are
	// evicted and the retry succeeds.
	store.failPuts = 1
	conv, err := repo.Create(ctx, []core.Message{userMessage("the last straw")}, "")
	require.NoError(t, err)

	list := repo.List(ctx)
	assert.Len(t, list, 8, "11 records minus 3 evicted")
	assert.Equal(t, conv.ID, list[0].ID, "the new record survives eviction")
}

func TestRepositoryOversizedRecordFailsCommit(t *testing.T) {
	backend, err := badger.NewMemoryBackend(badger.WithCapacity(64))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	repo, err := NewRepository(backend)
	require.NoError(t, err)
	ctx := context.Background()

	// A single record larger than the whole quota can never fit. The commit
	// must fail instead of evicting the record it is trying to store and
	// reporting success.
	_, err = repo.Create(ctx, []core.Message{userMessage(strings.Repeat("a", 512))}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrQuotaExceeded))
	assert.Empty(t, repo.List(ctx))
}

func TestRepositoryQuotaEvictionSparesNewRecord(t *testing.T) {
	store := newQuotaStore()
	repo, err := NewRepository(store)
	require.NoError(t, err)
	repo.now = stepClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	existing, err := repo.Create(ctx, []core.Message{userMessage("already stored")}, "")
	require.NoError(t, err)

	// The collection holds two records: the new one at the head and one
	// evictable record. Eviction may only take the tail; when the retry still
	// fails the error surfaces and the new record is never reported stored.
	store.failPuts = 2
	conv, err := repo.Create(ctx, []core.Message{userMessage("does not fit")}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrQuotaExceeded))
	assert.Nil(t, conv)

	list := repo.List(ctx)
	require.Len(t, list, 1, "the failed commit left the prior collection intact")
	assert.Equal(t, existing.ID, list[0].ID)
}

func TestRepositoryQuotaRetryFailureSurfaces(t *testing.T) {
	store := newQuotaStore()
	repo, err := NewRepository(store)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = repo.Create(ctx, []core.Message{userMessage("fits")}, "")
	require.NoError(t, err)

	// Both the write and its post-eviction retry fail.
	store.failPuts = 2
	_, err = repo.Create(ctx, []core.Message{userMessage("does not fit")}, "")
	assert.True(t, errors.Is(err, storage.ErrQuotaExceeded))
}
