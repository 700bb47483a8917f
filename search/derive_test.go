package search

import (
	"strings"
	"testing"

	"github.com/halcyonhealth/chatvault/core"
)

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "plain text",
			text: "What helps with migraines",
			want: "What helps with migraines",
		},
		{
			name: "strips punctuation",
			text: "What helps with migraines?!",
			want: "What helps with migraines",
		},
		{
			name: "collapses whitespace",
			text: "  blood   pressure\treadings ",
			want: "blood pressure readings",
		},
		{
			name: "empty text falls back",
			text: "",
			want: DefaultTitle,
		},
		{
			name: "punctuation-only text falls back",
			text: "?!... ---",
			want: DefaultTitle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTitle(tt.text); got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDeriveTitle_Truncates(t *testing.T) {
	long := strings.Repeat("word ", 30)
	got := DeriveTitle(long)

	if !strings.HasSuffix(got, "...") {
		t.Errorf("DeriveTitle() = %q, want ellipsis marker", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n > MaxTitleLength {
		t.Errorf("DeriveTitle() kept %d runes, want at most %d", n, MaxTitleLength)
	}
}

func TestDeriveSummary(t *testing.T) {
	messages := []core.Message{
		{Sender: core.SenderAI, Text: "Hello! How can I help?"},
		{Sender: core.SenderUser, Text: "My blood pressure was 150/95 this morning."},
		{Sender: core.SenderAI, Text: "That reading is high."},
	}

	got := DeriveSummary(messages)
	if got != "My blood pressure was 150/95 this morning." {
		t.Errorf("DeriveSummary() = %q, want the first user message", got)
	}

	if got := DeriveSummary(nil); got != "" {
		t.Errorf("DeriveSummary(nil) = %q, want empty", got)
	}
}

func TestDeriveSummary_Truncates(t *testing.T) {
	messages := []core.Message{
		{Sender: core.SenderUser, Text: strings.Repeat("symptom ", 40)},
	}

	got := DeriveSummary(messages)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("DeriveSummary() = %q, want ellipsis marker", got)
	}
}

func TestDeriveTags(t *testing.T) {
	messages := []core.Message{
		{Sender: core.SenderUser, Text: "I think my DIABETES affects my blood pressure."},
		{Sender: core.SenderAI, Text: "Both conditions interact; watch your diet too."},
	}

	tags := DeriveTags(messages)

	want := map[string]bool{"Diabetes": true, "Blood Pressure": true, "Diet": true}
	for _, tag := range tags {
		delete(want, tag)
	}
	if len(want) > 0 {
		t.Errorf("DeriveTags() = %v, missing %v", tags, want)
	}
}

func TestDeriveTags_VisualTag(t *testing.T) {
	messages := []core.Message{
		{Sender: core.SenderUser, Text: "What is this?", UploadedImages: []string{"up-1"}},
	}

	tags := DeriveTags(messages)
	if len(tags) == 0 || tags[0] != VisualTag {
		t.Errorf("DeriveTags() = %v, want leading %q tag", tags, VisualTag)
	}
}

func TestDeriveTags_Cap(t *testing.T) {
	text := "diabetes blood pressure medication allergy heart sleep diet exercise stress"
	messages := []core.Message{
		{Sender: core.SenderUser, Text: text, UploadedImages: []string{"up-1"}},
	}

	tags := DeriveTags(messages)
	if len(tags) != MaxTags {
		t.Errorf("DeriveTags() returned %d tags, want cap %d", len(tags), MaxTags)
	}

	seen := make(map[string]bool)
	for _, tag := range tags {
		if seen[tag] {
			t.Errorf("DeriveTags() returned duplicate tag %q", tag)
		}
		seen[tag] = true
	}
}

func TestDeriveTags_Pure(t *testing.T) {
	messages := []core.Message{
		{Sender: core.SenderUser, Text: "diabetes and exercise"},
	}

	first := DeriveTags(messages)
	second := DeriveTags(messages)

	if len(first) != len(second) {
		t.Fatalf("DeriveTags() not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("DeriveTags() not idempotent: %v vs %v", first, second)
		}
	}
}

func TestHasImageContent(t *testing.T) {
	if HasImageContent([]core.Message{{Text: "plain"}}) {
		t.Error("HasImageContent() = true for text-only messages")
	}
	if !HasImageContent([]core.Message{{Text: "x"}, {GeneratedImage: "img"}}) {
		t.Error("HasImageContent() = false for generated image")
	}
}
