package enrichaf

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestConvertGeneric(t *testing.T) {
	h := NewHyperlinkIntegrator(zap.NewNop())

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"html anchor",
			`See <a href="https://example.edu">the site</a> here.`,
			"See [the site](https://example.edu) here.",
		},
		{
			"bare https url",
			"Visit https://example.edu/syllabus today.",
			"Visit [https://example.edu/syllabus](https://example.edu/syllabus) today.",
		},
		{
			"www url gets protocol",
			"Visit www.example.edu now.",
			"Visit [www.example.edu](https://www.example.edu) now.",
		},
		{
			"existing link untouched",
			"See [the site](https://example.edu) here.",
			"See [the site](https://example.edu) here.",
		},
		{
			"email to mailto",
			"Write to john@example.edu please.",
			"Write to [john@example.edu](mailto:john@example.edu) please.",
		},
		{
			"existing mailto untouched",
			"Write to [john@example.edu](mailto:john@example.edu) please.",
			"Write to [john@example.edu](mailto:john@example.edu) please.",
		},
		{
			"doubled protocol collapsed",
			"Broken [link](https://https://example.edu) here.",
			"Broken [link](https://example.edu) here.",
		},
		{
			"plain text untouched",
			"Nothing to convert in this sentence.",
			"Nothing to convert in this sentence.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.ConvertGeneric(tt.content); got != tt.want {
				t.Errorf("ConvertGeneric(%q) =\n%q\nwant\n%q", tt.content, got, tt.want)
			}
		})
	}
}

func TestTermForURI(t *testing.T) {
	h := NewHyperlinkIntegrator(zap.NewNop())
	content := "The westward expansion reshaped the frontier during the nineteenth century."

	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			"curated hint wins",
			"https://en.wikipedia.org/wiki/Abraham_Lincoln",
			"Abraham Lincoln",
		},
		{
			"path segment present in text",
			"https://history.example.edu/topics/expansion",
			"expansion",
		},
		{
			"infrastructure tokens skipped",
			"https://example.edu/pages/index.html",
			"",
		},
		{
			"segment absent from text",
			"https://example.edu/topics/taxation",
			"",
		},
		{
			"no path",
			"https://example.edu",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.termForURI(tt.uri, content); got != tt.want {
				t.Errorf("termForURI(%q) = %q, want %q", tt.uri, got, tt.want)
			}
		})
	}
}

func TestLinkFirstOccurrence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		term    string
		uri     string
		want    string
	}{
		{
			"wraps first whole word",
			"The frontier moved west. The frontier closed.",
			"frontier",
			"https://example.edu/frontier",
			"The [frontier](https://example.edu/frontier) moved west. The frontier closed.",
		},
		{
			"case insensitive match keeps original casing",
			"Westward Expansion changed everything.",
			"expansion",
			"https://example.edu/expansion",
			"Westward [Expansion](https://example.edu/expansion) changed everything.",
		},
		{
			"skips already linked occurrence",
			"See [frontier](https://x.edu) and the frontier itself.",
			"frontier",
			"https://example.edu/frontier",
			"See [frontier](https://x.edu) and the [frontier](https://example.edu/frontier) itself.",
		},
		{
			"partial word not matched",
			"The frontiersman traveled far.",
			"frontier",
			"https://example.edu/frontier",
			"The frontiersman traveled far.",
		},
		{
			"lowercasing that grows rune widths keeps offsets aligned",
			"Ⱥ marks the ledger margin. The frontier closed.",
			"frontier",
			"https://example.edu/frontier",
			"Ⱥ marks the ledger margin. The [frontier](https://example.edu/frontier) closed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := linkFirstOccurrence(tt.content, tt.term, tt.uri); got != tt.want {
				t.Errorf("linkFirstOccurrence() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestApplyManualTerms(t *testing.T) {
	h := NewHyperlinkIntegrator(zap.NewNop())

	t.Run("wraps known term", func(t *testing.T) {
		got := h.applyManualTerms("The Bill of Rights limits federal power.")
		want := "The [Bill of Rights](https://en.wikipedia.org/wiki/United_States_Bill_of_Rights) limits federal power."
		if got != want {
			t.Errorf("applyManualTerms() =\n%q\nwant\n%q", got, want)
		}
	})

	t.Run("already linked term untouched", func(t *testing.T) {
		content := "The [Bill of Rights](https://example.edu) limits federal power."
		if got := h.applyManualTerms(content); got != content {
			t.Errorf("linked term rewrapped:\n%q", got)
		}
	})

	t.Run("width-changing runes before the term", func(t *testing.T) {
		// U+023A lowercases to a longer UTF-8 encoding, so a naive
		// lowered-string index would land mid-rune in the original.
		content := strings.Repeat("Ⱥ ", 30) + "Federalist Papers shaped ratification."
		got := h.applyManualTerms(content)
		want := strings.Repeat("Ⱥ ", 30) +
			"[Federalist Papers](https://en.wikipedia.org/wiki/The_Federalist_Papers) shaped ratification."
		if got != want {
			t.Errorf("applyManualTerms() =\n%q\nwant\n%q", got, want)
		}
	})
}

func TestIntegratePDFAnnotations_TextFallback(t *testing.T) {
	h := NewHyperlinkIntegrator(zap.NewNop())
	h.ManualTermLinks = nil

	// No readable PDF at the path: only the literal-URL backend can
	// contribute.
	content := "The westward expansion shaped the frontier.\n\n" +
		"Source: https://history.example.edu/topics/expansion"

	got := h.IntegratePDFAnnotations(content, "/nonexistent/file.pdf")

	if !strings.Contains(got, "[expansion](https://history.example.edu/topics/expansion)") {
		t.Errorf("term from URI path not linked:\n%s", got)
	}
}
