package enrichaf

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestPaginate_FormFeeds(t *testing.T) {
	p := NewPaginator(zap.NewNop())

	got := p.Paginate("First page text.\fSecond page text.\fThird page text.", true)

	want := "## Page 1\n\nFirst page text.\n\n---\n\n" +
		"## Page 2\n\nSecond page text.\n\n---\n\n" +
		"## Page 3\n\nThird page text."
	if got != want {
		t.Errorf("Paginate() =\n%q\nwant\n%q", got, want)
	}
}

func TestPaginate_FormFeedsDropEmptyPages(t *testing.T) {
	p := NewPaginator(zap.NewNop())

	got := p.Paginate("First page.\f\f  \fSecond page.", true)

	if strings.Contains(got, "## Page 3") {
		t.Errorf("empty form-feed pages not dropped:\n%s", got)
	}
	if !strings.Contains(got, "## Page 2\n\nSecond page.") {
		t.Errorf("second page missing:\n%s", got)
	}
}

func TestPaginate_ShortContentUnchanged(t *testing.T) {
	p := NewPaginator(zap.NewNop())

	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "Line %d of the document.\n", i)
	}
	content := b.String()

	if got := p.Paginate(content, false); got != content {
		t.Errorf("short non-PDF content was paginated:\n%s", got)
	}
}

func TestPaginate_PDFHardBreak(t *testing.T) {
	p := NewPaginator(zap.NewNop())

	var lines []string
	for i := 0; i < 55; i++ {
		lines = append(lines, fmt.Sprintf("PDF text line %d.", i))
	}
	lines = append(lines, "")
	for i := 55; i < 65; i++ {
		lines = append(lines, fmt.Sprintf("PDF text line %d.", i))
	}

	got := p.Paginate(strings.Join(lines, "\n"), true)

	if !strings.Contains(got, "## Page 1") || !strings.Contains(got, "## Page 2") {
		t.Fatalf("long PDF text not split at blank line:\n%s", got)
	}
	if strings.Contains(got, "## Page 3") {
		t.Errorf("unexpected third page:\n%s", got)
	}
}

func TestPaginate_PDFHeadingBreak(t *testing.T) {
	p := NewPaginator(zap.NewNop())

	var lines []string
	for i := 0; i < 35; i++ {
		lines = append(lines, fmt.Sprintf("Dense text line %d with no blanks.", i))
	}
	lines = append(lines, "", "# New Chapter", "Chapter body text.")

	got := p.Paginate(strings.Join(lines, "\n"), true)

	pageIdx := strings.Index(got, "## Page 2")
	chapterIdx := strings.Index(got, "# New Chapter")
	if pageIdx < 0 {
		t.Fatalf("heading after blank did not start a page:\n%s", got)
	}
	if chapterIdx < pageIdx {
		t.Errorf("chapter heading not on the new page:\n%s", got)
	}
}

func TestPaginate_NonPDFLongContent(t *testing.T) {
	p := NewPaginator(zap.NewNop())

	var lines []string
	for block := 0; block < 12; block++ {
		for i := 0; i < 9; i++ {
			lines = append(lines, fmt.Sprintf("Paragraph %d line %d.", block, i))
		}
		lines = append(lines, "")
	}

	got := p.Paginate(strings.Join(lines, "\n"), false)

	if !strings.Contains(got, "## Page 2") {
		t.Errorf("long non-PDF content not paginated:\n%s", got)
	}
	if !strings.Contains(got, "Paragraph 11 line 8.") {
		t.Errorf("content lost during pagination:\n%s", got)
	}
}
