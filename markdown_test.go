package enrichaf

import (
	"testing"

	"go.uber.org/zap"
)

func TestValidateMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		content string
		issues  int
	}{
		{
			"clean document",
			"# Title\n\nText with ![ok](http://test/images/d/x.png) inside.",
			0,
		},
		{
			"empty destination",
			"Text with ![broken]() inside.",
			1,
		},
		{
			"base64 destination",
			"Text with ![inline](data:image/png;base64,AAAA) inside.",
			1,
		},
		{
			"no images at all",
			"Just plain *Markdown* text.",
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validateMarkdown(tt.content, zap.NewNop()); got != tt.issues {
				t.Errorf("validateMarkdown() = %d issues, want %d", got, tt.issues)
			}
		})
	}
}
