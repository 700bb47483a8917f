package search

import (
	"strings"
	"unicode"

	"github.com/halcyonhealth/chatvault/core"
)

const (
	// MaxTitleLength bounds derived titles, excluding the ellipsis marker.
	MaxTitleLength = 50

	// MaxSummaryLength bounds derived summaries.
	MaxSummaryLength = 100

	// MaxTags caps the number of derived tags per conversation.
	MaxTags = 5

	// DefaultTitle is used when no usable user text exists.
	DefaultTitle = "New Conversation"

	// VisualTag is the synthetic tag added when a conversation carries images.
	VisualTag = "Visual"
)

// tagVocabulary is the fixed set of domain keywords scanned for when tagging
// a conversation. Order determines priority once the tag cap is reached.
var tagVocabulary = []string{
	"blood pressure",
	"diabetes",
	"medication",
	"allergy",
	"heart",
	"sleep",
	"diet",
	"exercise",
	"stress",
	"anxiety",
	"headache",
	"skin rash",
	"fever",
	"pain",
	"pregnancy",
	"vaccine",
	"cholesterol",
	"asthma",
	"symptom",
	"appointment",
}

// DeriveTitle builds a short human label from the first user message text.
// Punctuation is stripped, whitespace collapsed, and the result truncated to
// MaxTitleLength with an ellipsis marker. Falls back to DefaultTitle when the
// source text is empty after stripping.
func DeriveTitle(firstUserText string) string {
	cleaned := stripPunctuation(firstUserText)
	if cleaned == "" {
		return DefaultTitle
	}
	return truncate(cleaned, MaxTitleLength)
}

// DeriveSummary builds a short preview from the first user message.
func DeriveSummary(messages []core.Message) string {
	for i := range messages {
		if messages[i].Sender != core.SenderUser {
			continue
		}
		text := strings.TrimSpace(messages[i].Text)
		if text == "" {
			continue
		}
		return truncate(collapseSpaces(text), MaxSummaryLength)
	}
	return ""
}

// DeriveTags scans the concatenated message text against the fixed keyword
// vocabulary, capitalizing each match. A synthetic VisualTag is added when
// any message carries image content. The result is capped at MaxTags and
// contains no duplicates.
func DeriveTags(messages []core.Message) []string {
	var sb strings.Builder
	hasImages := false
	for i := range messages {
		sb.WriteString(messages[i].Text)
		sb.WriteByte('\n')
		if messages[i].HasImageContent() {
			hasImages = true
		}
	}
	corpus := strings.ToLower(sb.String())

	var tags []string
	if hasImages {
		tags = append(tags, VisualTag)
	}
	for _, keyword := range tagVocabulary {
		if len(tags) >= MaxTags {
			break
		}
		if strings.Contains(corpus, keyword) {
			tags = append(tags, capitalize(keyword))
		}
	}
	return tags
}

// HasImageContent reports whether any message carries image content.
func HasImageContent(messages []core.Message) bool {
	for i := range messages {
		if messages[i].HasImageContent() {
			return true
		}
	}
	return false
}

// stripPunctuation removes punctuation and symbols, collapsing whitespace.
func stripPunctuation(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return collapseSpaces(sb.String())
}

// collapseSpaces trims and collapses runs of whitespace into single spaces.
func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// truncate bounds text to max runes, appending an ellipsis when cut.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}

// capitalize upper-cases the first letter of every word in a keyword.
func capitalize(keyword string) string {
	words := strings.Fields(keyword)
	for i, word := range words {
		r := []rune(word)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
