package enrichaf

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// minInlineImageBytes is the smallest decoded payload treated as a
// real image; anything shorter is decoding noise and is stripped.
const minInlineImageBytes = 100

// headerLineWindow is how far into the document a match can sit and
// still be classified as a header image by line position alone.
const headerLineWindow = 5

var (
	// Markdown image syntax with an inline data URI.
	mdInlineImagePattern = regexp.MustCompile(
		`!\[([^\]]*)\]\(\s*data:image/([a-zA-Z0-9.+-]+);\s*base64,\s*([A-Za-z0-9+/=\s]+?)\s*\)`)

	// HTML <img> tag with an inline data URI.
	htmlInlineImagePattern = regexp.MustCompile(
		`<img[^>]*src\s*=\s*["']data:image/([a-zA-Z0-9.+-]+);\s*base64,\s*([A-Za-z0-9+/=\s]+?)["'][^>]*/?>`)

	// Bare data URIs, including payloads broken up by whitespace.
	looseInlineImagePattern = regexp.MustCompile(
		`data:image/([a-zA-Z0-9.+-]+);\s*base64,\s*([A-Za-z0-9+/=]+(?:\s+[A-Za-z0-9+/=]+)*)`)

	htmlImgAltPattern = regexp.MustCompile(`alt\s*=\s*["']([^"']*)["']`)

	// Residue patterns removed by the final cleanup pass.
	base64ResiduePattern    = regexp.MustCompile(`[^\s()\[\]]*base64[^\s()\[\]]*`)
	emptyImageTargetPattern = regexp.MustCompile(`!\[[^\]]*\]\(\s*\)`)
)

// textEdit is a span replacement collected during a forward scan and
// applied afterward in descending-offset order.
type textEdit struct {
	start, end  int
	replacement string
}

// applyEdits applies span replacements to content. Edits are applied
// back to front so earlier spans stay valid.
func applyEdits(content string, edits []textEdit) string {
	sort.Slice(edits, func(i, j int) bool { return edits[i].start > edits[j].start })
	for _, e := range edits {
		if e.start < 0 || e.end > len(content) || e.start > e.end {
			continue
		}
		content = content[:e.start] + e.replacement + content[e.end:]
	}
	return content
}

// base64Resolver materializes inline base64 image data as files,
// replacing each occurrence with a Markdown image reference or
// relocating it to the document's header region.
type base64Resolver struct {
	store  *ImageStore
	logger *zap.Logger
}

type inlineMatch struct {
	start, end int
	alt        string
	imageType  string
	payload    string
}

// resolve scans content for inline base64 images, writes each valid
// payload into the document folder, and returns the rewritten content
// plus the records created. Undecodable or undersized payloads are
// removed outright. Running resolve on content without base64 data is
// a no-op.
func (r *base64Resolver) resolve(content string, fr *folderRef) (string, []ImageRecord) {
	matches := findInlineImages(content)
	if len(matches) == 0 {
		return content, nil
	}

	lines := strings.Split(content, "\n")
	headingLines := markHeadingLines(lines)
	firstBody := firstSubstantialLine(lines)

	var edits []textEdit
	var records []ImageRecord
	var headerRecords []ImageRecord

	for i, m := range matches {
		data, err := base64.StdEncoding.DecodeString(stripWhitespace(m.payload))
		if err != nil || len(data) < minInlineImageBytes {
			edits = append(edits, textEdit{start: m.start, end: m.end})
			continue
		}

		folder, err := fr.get()
		if err != nil {
			r.logger.Warn("cannot create folder for inline image", zap.Error(err))
			edits = append(edits, textEdit{start: m.start, end: m.end})
			continue
		}

		name := sanitizeFilename(m.alt)
		if name == "" {
			name = fmt.Sprintf("inline_image_%d", i+1)
		}
		if !strings.Contains(name, ".") {
			name += "." + m.imageType
		}

		record, err := r.store.SaveImage(folder, name, data)
		if err != nil {
			r.logger.Debug("cannot save inline image",
				zap.String("name", name), zap.Error(err))
			edits = append(edits, textEdit{start: m.start, end: m.end})
			continue
		}
		records = append(records, record)

		lineIdx := lineIndexOf(content, m.start)
		if isHeaderPosition(lineIdx, headingLines, firstBody) {
			edits = append(edits, textEdit{start: m.start, end: m.end})
			headerRecords = append(headerRecords, record)
			continue
		}

		ref := fmt.Sprintf("![%s](%s)", record.Filename, record.URL)
		edits = append(edits, textEdit{start: m.start, end: m.end, replacement: ref})
	}

	content = applyEdits(content, edits)
	if len(headerRecords) > 0 {
		content = insertHeaderImages(content, headerRecords)
	}
	return content, records
}

// findInlineImages collects all inline base64 image occurrences in one
// forward scan: Markdown image syntax first, then HTML <img> tags,
// then bare data URIs not covered by either.
func findInlineImages(content string) []inlineMatch {
	var matches []inlineMatch
	covered := func(start, end int) bool {
		for _, m := range matches {
			if start < m.end && end > m.start {
				return true
			}
		}
		return false
	}

	for _, idx := range mdInlineImagePattern.FindAllStringSubmatchIndex(content, -1) {
		matches = append(matches, inlineMatch{
			start:     idx[0],
			end:       idx[1],
			alt:       content[idx[2]:idx[3]],
			imageType: content[idx[4]:idx[5]],
			payload:   content[idx[6]:idx[7]],
		})
	}

	for _, idx := range htmlInlineImagePattern.FindAllStringSubmatchIndex(content, -1) {
		if covered(idx[0], idx[1]) {
			continue
		}
		alt := ""
		if am := htmlImgAltPattern.FindStringSubmatch(content[idx[0]:idx[1]]); am != nil {
			alt = am[1]
		}
		matches = append(matches, inlineMatch{
			start:     idx[0],
			end:       idx[1],
			alt:       alt,
			imageType: content[idx[2]:idx[3]],
			payload:   content[idx[4]:idx[5]],
		})
	}

	for _, idx := range looseInlineImagePattern.FindAllStringSubmatchIndex(content, -1) {
		if covered(idx[0], idx[1]) {
			continue
		}
		matches = append(matches, inlineMatch{
			start:     idx[0],
			end:       idx[1],
			imageType: content[idx[2]:idx[3]],
			payload:   content[idx[4]:idx[5]],
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start < matches[j].start })
	return matches
}

// isHeaderPosition classifies whether a match at the given line
// belongs to the document's header region: within the first lines of
// the document, before the first substantial paragraph, or adjacent to
// a heading.
func isHeaderPosition(lineIdx int, headingLines map[int]bool, firstBody int) bool {
	if lineIdx < headerLineWindow {
		return true
	}
	if firstBody >= 0 && lineIdx < firstBody {
		return true
	}
	for h := range headingLines {
		if lineIdx >= h-2 && lineIdx <= h+2 {
			return true
		}
	}
	return false
}

// markHeadingLines returns the indexes of Markdown heading lines.
func markHeadingLines(lines []string) map[int]bool {
	headings := make(map[int]bool)
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			headings[i] = true
		}
	}
	return headings
}

// firstSubstantialLine returns the index of the first paragraph-like
// line: one with a period and more than 10 words that is neither a
// heading nor an image line. -1 when none exists.
func firstSubstantialLine(lines []string) int {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "![") {
			continue
		}
		if strings.Contains(trimmed, ".") && len(strings.Fields(trimmed)) > 10 {
			return i
		}
	}
	return -1
}

// lineIndexOf returns the 0-based line index containing byte offset.
func lineIndexOf(content string, offset int) int {
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n")
}

// insertHeaderImages places relocated header images directly after the
// first heading, or at the very top when the document has none.
func insertHeaderImages(content string, records []ImageRecord) string {
	var refs strings.Builder
	for _, r := range records {
		refs.WriteString(fmt.Sprintf("![%s](%s)\n\n", r.Filename, r.URL))
	}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			head := strings.Join(lines[:i+1], "\n")
			tail := strings.Join(lines[i+1:], "\n")
			return head + "\n\n" + strings.TrimSuffix(refs.String(), "\n") + strings.TrimPrefix(tail, "\n")
		}
	}
	return refs.String() + content
}

// stripBase64Residue removes any remaining base64 fragments and
// empty-target image syntax left after resolution. This is the final
// guard for the pipeline's output invariant.
func stripBase64Residue(content string) string {
	content = looseInlineImagePattern.ReplaceAllString(content, "")
	content = base64ResiduePattern.ReplaceAllString(content, "")
	content = emptyImageTargetPattern.ReplaceAllString(content, "")
	return content
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
