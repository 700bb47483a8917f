package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidConversation indicates a Conversation failed validation.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidSender indicates an invalid Sender value.
	ErrInvalidSender = errors.New("invalid sender")

	// ErrEmptyID indicates the ID field is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrMissingMessages indicates the message list is absent.
	ErrMissingMessages = errors.New("message list is required")
)
