package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// Sender identifies the author of a chat message.
type Sender int

const (
	// SenderUser represents the human user.
	SenderUser Sender = iota + 1
	// SenderAI represents the AI assistant.
	SenderAI
)

// String returns the wire name of the sender.
func (s Sender) String() string {
	switch s {
	case SenderUser:
		return "user"
	case SenderAI:
		return "ai"
	default:
		return fmt.Sprintf("sender(%d)", int(s))
	}
}

// MarshalJSON encodes the sender as "user" or "ai".
func (s Sender) MarshalJSON() ([]byte, error) {
	switch s {
	case SenderUser, SenderAI:
		return json.Marshal(s.String())
	default:
		return nil, fmt.Errorf("%w: value %d", ErrInvalidSender, int(s))
	}
}

// UnmarshalJSON decodes "user" or "ai" into a Sender.
func (s *Sender) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "user":
		*s = SenderUser
	case "ai":
		*s = SenderAI
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSender, name)
	}
	return nil
}

// Message is a single turn inside a Conversation. Messages have no lifecycle
// of their own; they are owned exclusively by their conversation.
type Message struct {
	ID             string    `json:"id"`
	Sender         Sender    `json:"sender"`
	Text           string    `json:"text"`
	GeneratedImage string    `json:"generatedImage,omitempty"`
	UploadedImages []string  `json:"uploadedImages,omitempty"`
	Suggestions    []string  `json:"suggestions,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
}

// HasImageContent reports whether the message carries any image reference.
func (m *Message) HasImageContent() bool {
	return m.GeneratedImage != "" || len(m.UploadedImages) > 0
}

// Conversation is the unit of persistence: a chat session with its full
// message history and derived metadata. The stored Messages sequence may be
// truncated to a cap; TotalMessages always records the true logical count.
type Conversation struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Messages             []Message `json:"messages"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
	Summary              string    `json:"summary"`
	Tags                 []string  `json:"tags"`
	CharacterDescription string    `json:"characterDescription,omitempty"`
	TotalMessages        int       `json:"totalMessages"`
	HasImages            bool      `json:"hasImages"`
}

// LastMessageText returns the text of the most recent message, or "".
func (c *Conversation) LastMessageText() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Text
}

// ConversationSummary is a read-only projection of a Conversation used by
// list and search views. It is always recomputed, never persisted.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	HasImages    bool      `json:"hasImages"`
	Tags         []string  `json:"tags"`
	LastMessage  string    `json:"lastMessage"`
}

// Summarize builds the list-view projection of the conversation.
func (c *Conversation) Summarize() ConversationSummary {
	return ConversationSummary{
		ID:           c.ID,
		Title:        c.Title,
		Summary:      c.Summary,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: c.TotalMessages,
		HasImages:    c.HasImages,
		Tags:         c.Tags,
		LastMessage:  c.LastMessageText(),
	}
}

// NewConversationID returns a fresh opaque conversation identifier.
func NewConversationID() string {
	return uuid.NewString()
}

// MessageFingerprint generates a deterministic message ID from the sender,
// text and position of a message using BLAKE2b hashing. IDs are stable across
// saves as long as the persisted sequence is unchanged; truncation shifts
// positions and refingerprints the messages it moves.
func MessageFingerprint(sender Sender, text string, position int) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	fmt.Fprintf(h, "%d:%d:%s", sender, position, text)
	return hex.EncodeToString(h.Sum(nil))
}
