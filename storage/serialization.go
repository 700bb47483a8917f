package storage

import (
	"fmt"

	"github.com/halcyonhealth/chatvault/core"
)

// MarshalConversation serializes a single Conversation to bytes.
func MarshalConversation(conv *core.Conversation) []byte {
	buf := make([]byte, core.ConversationMUS.Size(*conv))
	core.ConversationMUS.Marshal(*conv, buf)
	return buf
}

// UnmarshalConversation deserializes a Conversation from bytes.
func UnmarshalConversation(data []byte) (*core.Conversation, error) {
	conv, _, err := core.ConversationMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &conv, nil
}

// MarshalConversationList serializes the whole stored collection to bytes.
func MarshalConversationList(convs []core.Conversation) []byte {
	buf := make([]byte, core.ConversationListMUS.Size(convs))
	core.ConversationListMUS.Marshal(convs, buf)
	return buf
}

// UnmarshalConversationList deserializes the stored collection from bytes.
func UnmarshalConversationList(data []byte) ([]core.Conversation, error) {
	convs, _, err := core.ConversationListMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return convs, nil
}
