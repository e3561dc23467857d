package enrichaf

import (
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"
)

func TestClipSnippet(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"short text unchanged",
			"A short snippet.",
			"A short snippet.",
		},
		{
			"ascii cut at cap",
			strings.Repeat("a", contextSnippetLen+50),
			strings.Repeat("a", contextSnippetLen),
		},
		{
			"multibyte rune straddling the cap dropped whole",
			strings.Repeat("a", contextSnippetLen-1) + "über",
			strings.Repeat("a", contextSnippetLen-1),
		},
		{
			"multibyte text cut on rune boundary",
			strings.Repeat("é", contextSnippetLen),
			strings.Repeat("é", contextSnippetLen/2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clipSnippet(tt.input)
			if got != tt.want {
				t.Errorf("clipSnippet() = %q, want %q", got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("clipSnippet() produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestPageNumberFromName(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"report_page_3_Im0.png", 3},
		{"doc_page_12_Im1.jpg", 12},
		{"noise.png", 0},
		{"page_.png", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pageNumberFromName(tt.name); got != tt.want {
				t.Errorf("pageNumberFromName(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestPDFLayout_UnreadableFile(t *testing.T) {
	layout := newPDFLayout("/nonexistent/file.pdf", zap.NewNop())

	x, y := layout.approximatePosition(1, 1)
	if x != 0 || y != 0 {
		t.Errorf("position from unreadable PDF = (%v, %v), want zeros", x, y)
	}
	if got := layout.leadingText(1); got != "" {
		t.Errorf("leading text from unreadable PDF = %q, want empty", got)
	}
}
