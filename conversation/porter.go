package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/halcyonhealth/chatvault/core"
)

// SnapshotVersion tags exported documents. It is an advisory compatibility
// marker for consumers, not a strict schema gate on import.
const SnapshotVersion = "1.0"

// Snapshot is a versioned, self-contained export of the full collection.
type Snapshot struct {
	ExportedAt    time.Time           `json:"exportedAt"`
	Version       string              `json:"version"`
	Conversations []core.Conversation `json:"conversations"`
}

// ImportError describes one record that could not be imported.
type ImportError struct {
	Index  int    `json:"index"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// ImportResult reports how an import went. Records imported before a failing
// one stay imported; there is no rollback.
type ImportResult struct {
	Imported int           `json:"importedCount"`
	Errors   []ImportError `json:"errors,omitempty"`
}

// Porter serializes the full repository contents to a snapshot document and
// merges external snapshots back in, regenerating identifiers so imports can
// never collide with existing records.
type Porter struct {
	repo   *Repository
	logger *slog.Logger
	now    func() time.Time
}

// PorterOption configures a Porter.
type PorterOption func(*Porter)

// WithPorterLogger sets a custom logger. Default is slog.Default().
func WithPorterLogger(logger *slog.Logger) PorterOption {
	return func(p *Porter) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPorter creates an import/export service for the repository.
func NewPorter(repo *Repository, opts ...PorterOption) (*Porter, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	p := &Porter{
		repo:   repo,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ExportAll wraps the full collection in a versioned snapshot document.
func (p *Porter) ExportAll(ctx context.Context) *Snapshot {
	return &Snapshot{
		ExportedAt:    p.now(),
		Version:       SnapshotVersion,
		Conversations: p.repo.List(ctx),
	}
}

// WriteJSON exports the full collection as an indented JSON document.
func (p *Porter) WriteJSON(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p.ExportAll(ctx))
}

// ImportAll merges a snapshot into the store. The document shape is validated
// first and an unrecognizable snapshot fails as a whole. Each record is then
// validated, given a fresh identifier and created; a malformed record is
// recorded as a per-record error and processing continues. Already-imported
// records are never rolled back.
func (p *Porter) ImportAll(ctx context.Context, snap *Snapshot) (*ImportResult, error) {
	if snap == nil || snap.Conversations == nil {
		return nil, fmt.Errorf("%w: missing conversations list", ErrMalformedSnapshot)
	}
	if snap.Version != SnapshotVersion {
		p.logger.Warn("importing snapshot with unexpected version",
			"got", snap.Version, "want", SnapshotVersion)
	}

	result := &ImportResult{}
	for i := range snap.Conversations {
		p.importRecord(ctx, i, snap.Conversations[i], result)
	}

	p.logger.Info("snapshot import finished",
		"imported", result.Imported, "failed", len(result.Errors))
	return result, nil
}

// snapshotDocument is the raw wire shape of a snapshot. Records stay undecoded
// so that one type-malformed record cannot abort the whole document.
type snapshotDocument struct {
	ExportedAt    time.Time         `json:"exportedAt"`
	Version       string            `json:"version"`
	Conversations []json.RawMessage `json:"conversations"`
}

// ReadJSON parses a snapshot document and imports it. A document that is not
// a recognizable snapshot fails fast with ErrMalformedSnapshot; a record that
// cannot be decoded or validated is recorded as a per-record error and
// processing continues with the remainder.
func (p *Porter) ReadJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var doc snapshotDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSnapshot, err)
	}
	if doc.Conversations == nil {
		return nil, fmt.Errorf("%w: missing conversations list", ErrMalformedSnapshot)
	}
	if doc.Version != SnapshotVersion {
		p.logger.Warn("importing snapshot with unexpected version",
			"got", doc.Version, "want", SnapshotVersion)
	}

	result := &ImportResult{}
	for i, raw := range doc.Conversations {
		var conv core.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			result.Errors = append(result.Errors, ImportError{
				Index:  i,
				Reason: fmt.Errorf("%w: %w", ErrMalformedRecord, err).Error(),
			})
			continue
		}
		p.importRecord(ctx, i, conv, result)
	}

	p.logger.Info("snapshot import finished",
		"imported", result.Imported, "failed", len(result.Errors))
	return result, nil
}

// importRecord validates and stores one snapshot record, accumulating the
// outcome in result.
func (p *Porter) importRecord(ctx context.Context, i int, conv core.Conversation, result *ImportResult) {
	if err := core.ValidateConversation(&conv); err != nil {
		result.Errors = append(result.Errors, ImportError{
			Index:  i,
			Title:  conv.Title,
			Reason: fmt.Errorf("%w: %w", ErrMalformedRecord, err).Error(),
		})
		return
	}

	if _, err := p.repo.CreateFrom(ctx, &conv); err != nil {
		result.Errors = append(result.Errors, ImportError{
			Index:  i,
			Title:  conv.Title,
			Reason: err.Error(),
		})
		return
	}
	result.Imported++
}
