package core

import "fmt"

// ValidateConversation validates a Conversation according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Title must not be empty
//   - Messages must be present (an empty slice is valid, nil is not)
//
// NOT validated (derived or repaired at persist time):
//   - Summary, Tags, TotalMessages, HasImages, timestamps
func ValidateConversation(conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: conversation is nil", ErrInvalidConversation)
	}

	if conv.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrEmptyID)
	}

	if conv.Title == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrEmptyTitle)
	}

	if conv.Messages == nil {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrMissingMessages)
	}

	return nil
}

// ValidateMessage validates a Message according to domain rules.
//
// Validation rules:
//   - Sender must be valid (User or AI)
//
// Text may be empty: image-only messages are legal.
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("%w: message is nil", ErrInvalidMessage)
	}

	if err := ValidateSender(msg.Sender); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	return nil
}

// ValidateSender validates that a Sender has a valid value.
func ValidateSender(sender Sender) error {
	if sender != SenderUser && sender != SenderAI {
		return fmt.Errorf("%w: value %d", ErrInvalidSender, sender)
	}
	return nil
}
