package enrichaf

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	// pdfSoftBreakLines is the minimum page length before a double
	// blank line counts as a page break.
	pdfSoftBreakLines = 20

	// pdfHeadingBreakLines is the minimum page length before a heading
	// preceded by a blank line counts as a page break.
	pdfHeadingBreakLines = 30

	// pdfHardBreakLines is the page length after which any blank line
	// breaks the page.
	pdfHardBreakLines = 50

	// minLinesForPagination is the document length below which
	// non-PDF content is never paginated.
	minLinesForPagination = 100

	// targetPageLines is the page length non-PDF pagination aims for
	// before breaking at the next blank line.
	targetPageLines = 80
)

// Paginator splits enriched content into page-delimited sections.
// Form feed characters give exact boundaries; without them the split
// falls back to layout heuristics tuned per source kind.
type Paginator struct {
	logger *zap.Logger
}

func NewPaginator(logger *zap.Logger) *Paginator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paginator{logger: logger}
}

// Paginate splits content into "## Page N" sections. When the content
// does not warrant splitting it is returned unchanged.
func (p *Paginator) Paginate(content string, isPDF bool) string {
	var pages []string
	switch {
	case strings.Contains(content, "\f"):
		pages = splitFormFeeds(content)
	case isPDF:
		pages = p.splitPDFHeuristic(content)
	default:
		pages = p.splitByLength(content)
	}

	if len(pages) < 2 {
		return content
	}
	return joinPages(pages)
}

// splitFormFeeds splits strictly on form feed characters, dropping
// pages that end up empty.
func splitFormFeeds(content string) []string {
	var pages []string
	for _, part := range strings.Split(content, "\f") {
		part = strings.TrimSpace(part)
		if part != "" {
			pages = append(pages, part)
		}
	}
	return pages
}

// splitPDFHeuristic estimates page boundaries in PDF-extracted text.
// Breaks get progressively easier as the current page grows: a double
// blank line, then a heading after a blank, then any blank line.
func (p *Paginator) splitPDFHeuristic(content string) []string {
	lines := strings.Split(content, "\n")

	var pages []string
	var current []string

	flush := func() {
		page := strings.TrimSpace(strings.Join(current, "\n"))
		if page != "" {
			pages = append(pages, page)
		}
		current = current[:0]
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		n := len(current)

		switch {
		case n >= pdfSoftBreakLines && trimmed == "" &&
			i+2 < len(lines) &&
			strings.TrimSpace(lines[i+1]) == "" &&
			strings.TrimSpace(lines[i+2]) != "":
			flush()
			i++ // consume the second blank
			continue

		case n >= pdfHeadingBreakLines && strings.HasPrefix(trimmed, "#") &&
			i > 0 && strings.TrimSpace(lines[i-1]) == "":
			flush()

		case n >= pdfHardBreakLines && trimmed == "":
			flush()
			continue
		}

		current = append(current, line)
	}
	flush()
	return pages
}

// splitByLength paginates non-PDF content only when it is long enough
// to bother, breaking at the first blank line past the target length.
func (p *Paginator) splitByLength(content string) []string {
	lines := strings.Split(content, "\n")
	if len(lines) <= minLinesForPagination {
		return []string{content}
	}

	var pages []string
	var current []string
	for _, line := range lines {
		if len(current) >= targetPageLines && strings.TrimSpace(line) == "" {
			page := strings.TrimSpace(strings.Join(current, "\n"))
			if page != "" {
				pages = append(pages, page)
			}
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	if page := strings.TrimSpace(strings.Join(current, "\n")); page != "" {
		pages = append(pages, page)
	}
	return pages
}

// joinPages renders numbered page sections separated by rules.
func joinPages(pages []string) string {
	var b strings.Builder
	for i, page := range pages {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "## Page %d\n\n%s", i+1, page)
	}
	return b.String()
}
