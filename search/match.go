package search

import (
	"strings"

	"github.com/halcyonhealth/chatvault/core"
)

// Matches reports whether a conversation summary matches a free-text query.
// The match is a case-insensitive substring test over the title, summary,
// last message text and tags. An empty query matches everything.
func Matches(summary core.ConversationSummary, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}

	if strings.Contains(strings.ToLower(summary.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(summary.Summary), q) {
		return true
	}
	if strings.Contains(strings.ToLower(summary.LastMessage), q) {
		return true
	}
	for _, tag := range summary.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}
