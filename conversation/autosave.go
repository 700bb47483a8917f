package conversation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/halcyonhealth/chatvault/core"
)

// DefaultDebounceWindow is the idle duration waited after the last observed
// mutation before a commit is performed.
const DefaultDebounceWindow = 2 * time.Second

// Autosave converts a stream of in-memory message-list mutations into
// infrequent batched Repository commits. It is a two-state machine: idle, or
// pending with an armed deadline. Every observed mutation re-arms the
// deadline; when it elapses uninterrupted the current state is committed and
// the active session pointer updated. Deadline commits run on a single-worker
// pool so they are applied in the order the deadlines fired.
type Autosave struct {
	repo   *Repository
	window time.Duration
	pool   *ants.Pool
	logger *slog.Logger

	mu        sync.Mutex
	timer     *time.Timer
	pending   bool
	activeID  string
	messages  []core.Message
	character string
	subs      map[int]func(*core.Conversation)
	nextSub   int
}

// AutosaveOption configures an Autosave.
type AutosaveOption func(*Autosave)

// WithDebounceWindow sets the idle duration before a pending commit fires.
func WithDebounceWindow(window time.Duration) AutosaveOption {
	return func(a *Autosave) {
		if window > 0 {
			a.window = window
		}
	}
}

// WithAutosaveLogger sets a custom logger. Default is slog.Default().
func WithAutosaveLogger(logger *slog.Logger) AutosaveOption {
	return func(a *Autosave) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAutosave creates a debounced commit coordinator for the repository.
func NewAutosave(repo *Repository, opts ...AutosaveOption) (*Autosave, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}

	a := &Autosave{
		repo:   repo,
		window: DefaultDebounceWindow,
		pool:   pool,
		logger: slog.Default(),
		subs:   map[int]func(*core.Conversation){},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Activate switches the scheduler to an existing session id, discarding any
// pending commit. An empty id starts a fresh session: the next commit will
// create a new conversation.
func (a *Autosave) Activate(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
	a.activeID = id
}

// ActiveID returns the id the next commit will update, or "" before the
// first commit of a fresh session.
func (a *Autosave) ActiveID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeID
}

// Observe records the latest state of the active message list and re-arms
// the debounce deadline. The slice is copied; callers may keep mutating it.
func (a *Autosave) Observe(messages []core.Message, characterDescription string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.messages = make([]core.Message, len(messages))
	copy(a.messages, messages)
	a.character = characterDescription
	a.pending = true

	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.window, a.deadline)
}

// Disable cancels any pending deadline and returns to idle without
// committing. Used when the session is being abandoned or replaced.
func (a *Autosave) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancelLocked()
}

// Flush cancels the pending deadline and performs the commit immediately.
// Returns nil without error when nothing is pending.
func (a *Autosave) Flush(ctx context.Context) (*core.Conversation, error) {
	return a.commit(ctx)
}

// Subscribe registers an observer invoked after every successful commit.
// The returned function unsubscribes it.
func (a *Autosave) Subscribe(fn func(*core.Conversation)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.subs, id)
	}
}

// Close disables the scheduler and releases the commit worker. Pending state
// is dropped; call Flush first to keep it.
func (a *Autosave) Close() {
	a.Disable()
	a.pool.Release()
}

// deadline runs when the debounce window elapses uninterrupted. The commit is
// handed to the single-worker pool; errors are logged, never thrown, since
// there is no caller to receive them.
func (a *Autosave) deadline() {
	err := a.pool.Submit(func() {
		if _, err := a.commit(context.Background()); err != nil {
			a.logger.Error("autosave commit failed", "err", err)
		}
	})
	if err != nil {
		a.logger.Error("autosave commit not scheduled", "err", err)
	}
}

// commit persists the observed state via update-or-create and records the
// resulting id as both the scheduler's and the store's active session.
func (a *Autosave) commit(ctx context.Context) (*core.Conversation, error) {
	a.mu.Lock()

	if !a.pending || len(a.messages) == 0 {
		a.cancelLocked()
		a.mu.Unlock()
		return nil, nil
	}
	messages := a.messages
	character := a.character
	id := a.activeID
	a.cancelLocked()

	conv, err := a.repo.Save(ctx, id, messages, character)
	if err != nil {
		a.mu.Unlock()
		return nil, err
	}
	a.activeID = conv.ID

	if err := a.repo.SetActive(ctx, conv.ID); err != nil {
		a.logger.Error("error updating active conversation pointer", "err", err)
	}

	observers := make([]func(*core.Conversation), 0, len(a.subs))
	for _, fn := range a.subs {
		observers = append(observers, fn)
	}
	a.mu.Unlock()

	for _, fn := range observers {
		fn(conv)
	}
	return conv, nil
}

// cancelLocked stops the deadline and drops pending state. Callers hold a.mu.
func (a *Autosave) cancelLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = false
	a.messages = nil
	a.character = ""
}
