package enrichaf

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// placementWindow is how many lines around a character-offset
	// target the offset strategy searches for a good anchor.
	placementWindow = 3

	// maxInlinePlacements caps how many images the no-metadata
	// strategy places inline before falling back to the trailing
	// section.
	maxInlinePlacements = 3

	// pageMatchRatio is the minimum share of an image's context words
	// that a line must contain for the page strategy to anchor there.
	pageMatchRatio = 0.3
)

var pageMarkerPattern = regexp.MustCompile(`(?i)^#{0,3}\s*page\s+(\d+)\b`)

// ImagePlacer weaves extracted images into document text. Placement
// strategy depends on what metadata the records carry: character
// offsets for word-processor sources, page numbers for PDFs, and a
// structural fallback for everything else. Every image is placed
// exactly once.
type ImagePlacer struct {
	logger *zap.Logger
}

func NewImagePlacer(logger *zap.Logger) *ImagePlacer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImagePlacer{logger: logger}
}

// Place inserts Markdown image references for every record into
// content and returns the result. Records already referenced in the
// content are skipped.
func (p *ImagePlacer) Place(content string, images []ImageRecord) string {
	if len(images) == 0 {
		return content
	}

	var pending []ImageRecord
	for _, img := range images {
		if strings.Contains(content, img.URL) {
			continue
		}
		pending = append(pending, img)
	}
	if len(pending) == 0 {
		return content
	}

	var withOffset, withPage, rest []ImageRecord
	for _, img := range pending {
		switch {
		case img.HasPosition():
			withOffset = append(withOffset, img)
		case img.PageNumber > 0:
			withPage = append(withPage, img)
		default:
			rest = append(rest, img)
		}
	}

	if len(withOffset) > 0 {
		content = p.placeByOffset(content, withOffset)
	}
	if len(withPage) > 0 {
		content = p.placeByPage(content, withPage)
	}
	if len(rest) > 0 {
		content = p.placeStructural(content, rest)
	}
	return content
}

type lineInsertion struct {
	line int
	img  ImageRecord
}

// placeByOffset anchors each image near the line containing its
// character offset, preferring a heading or paragraph boundary inside
// a small window over the raw offset line.
func (p *ImagePlacer) placeByOffset(content string, images []ImageRecord) string {
	lines := strings.Split(content, "\n")

	// Cumulative byte offset of each line start, matching how offsets
	// were accumulated during extraction.
	starts := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		starts[i] = offset
		offset += len(line) + 1
	}

	var insertions []lineInsertion
	for _, img := range images {
		target := len(lines) - 1
		for i := range starts {
			if starts[i] > img.PositionInContent {
				target = i - 1
				break
			}
		}
		if target < 0 {
			target = 0
		}
		insertions = append(insertions, lineInsertion{
			line: p.anchorNear(lines, target, img),
			img:  img,
		})
	}

	return applyInsertions(lines, insertions)
}

// anchorNear picks the best insertion line in a window around target:
// after a heading, after a blank line that precedes content, at a line
// sharing context words with the image, or the target itself.
func (p *ImagePlacer) anchorNear(lines []string, target int, img ImageRecord) int {
	lo := target - placementWindow
	if lo < 0 {
		lo = 0
	}
	hi := target + placementWindow
	if hi >= len(lines) {
		hi = len(lines) - 1
	}

	ctxWords := contextWords(img.ContentContext)

	blankAnchor, contextAnchor := -1, -1
	for i := lo; i <= hi; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "#") {
			return i
		}
		if blankAnchor < 0 && trimmed == "" && i+1 < len(lines) &&
			strings.TrimSpace(lines[i+1]) != "" {
			blankAnchor = i
		}
		if contextAnchor < 0 && len(ctxWords) > 0 &&
			sharedWordCount(lines[i], ctxWords) >= 2 {
			contextAnchor = i
		}
	}
	if blankAnchor >= 0 {
		return blankAnchor
	}
	if contextAnchor >= 0 {
		return contextAnchor
	}
	return target
}

// placeByPage anchors each image inside the content region belonging
// to its page. Within the region it prefers a line matching the
// image's context words, then the first heading, then the region end.
func (p *ImagePlacer) placeByPage(content string, images []ImageRecord) string {
	lines := strings.Split(content, "\n")
	regions := pageRegions(lines)

	var insertions []lineInsertion
	for _, img := range images {
		start, end := regionForPage(regions, img.PageNumber, len(lines))
		insertions = append(insertions, lineInsertion{
			line: p.anchorInRegion(lines, start, end, img),
			img:  img,
		})
	}
	return applyInsertions(lines, insertions)
}

// pageRegions estimates where each page's text begins. Explicit page
// markers win; otherwise long blank runs after substantial content
// are treated as page breaks.
func pageRegions(lines []string) []int {
	starts := []int{0}

	markers := false
	for i, line := range lines {
		if m := pageMarkerPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if i > 0 {
				starts = append(starts, i)
			}
			markers = true
		}
	}
	if markers {
		return starts
	}

	// No markers: fall back to runs of two or more blank lines after a
	// reasonable amount of content.
	blanks := 0
	sinceBreak := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			continue
		}
		if blanks >= 2 && sinceBreak >= 20 {
			starts = append(starts, i)
			sinceBreak = 0
		}
		blanks = 0
		sinceBreak++
	}
	return starts
}

// regionForPage returns the [start, end) line range of a 1-based page,
// clamped to the last known region.
func regionForPage(starts []int, page, totalLines int) (int, int) {
	idx := page - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(starts) {
		idx = len(starts) - 1
	}
	start := starts[idx]
	end := totalLines
	if idx+1 < len(starts) {
		end = starts[idx+1]
	}
	return start, end
}

// anchorInRegion picks an insertion line inside [start, end).
func (p *ImagePlacer) anchorInRegion(lines []string, start, end int, img ImageRecord) int {
	ctxWords := contextWords(img.ContentContext)

	if len(ctxWords) > 0 {
		for i := start; i < end; i++ {
			shared := sharedWordCount(lines[i], ctxWords)
			if float64(shared) >= pageMatchRatio*float64(len(ctxWords)) && shared > 0 {
				return i
			}
		}
	}
	for i := start; i < end; i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
			return i
		}
	}
	if end > start {
		return end - 1
	}
	return start
}

// placeStructural handles images without positioning metadata: up to
// maxInlinePlacements go after headings and paragraph breaks in
// document order, the remainder into a trailing section.
func (p *ImagePlacer) placeStructural(content string, images []ImageRecord) string {
	lines := strings.Split(content, "\n")

	var anchors []int
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			// The document title makes a poor anchor, and an image
			// between stacked headings separates a heading from its
			// body.
			if i == 0 {
				continue
			}
			if i+1 < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i+1]), "#") {
				continue
			}
			anchors = append(anchors, i)
			continue
		}
		if trimmed == "" && i > 0 && strings.TrimSpace(lines[i-1]) != "" {
			anchors = append(anchors, i)
		}
	}

	inline := len(images)
	if inline > maxInlinePlacements {
		inline = maxInlinePlacements
	}
	if inline > len(anchors) {
		inline = len(anchors)
	}

	var insertions []lineInsertion
	for i := 0; i < inline; i++ {
		insertions = append(insertions, lineInsertion{line: anchors[i], img: images[i]})
	}
	content = applyInsertions(lines, insertions)

	if inline < len(images) {
		content = appendImageSection(content, images[inline:])
	}
	return content
}

// appendImageSection adds the leftover images under a dedicated
// heading at the end of the document.
func appendImageSection(content string, images []ImageRecord) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(content, "\n"))
	b.WriteString("\n\n---\n\n## Extracted Images\n")
	for _, img := range images {
		b.WriteString("\n")
		b.WriteString(markdownImage(img))
		b.WriteString("\n")
	}
	return b.String()
}

// applyInsertions inserts image lines after the given line indexes,
// applied in descending order so earlier indexes stay valid.
func applyInsertions(lines []string, insertions []lineInsertion) string {
	sort.SliceStable(insertions, func(i, j int) bool {
		return insertions[i].line > insertions[j].line
	})
	for _, ins := range insertions {
		at := ins.line + 1
		if at > len(lines) {
			at = len(lines)
		}
		block := []string{"", markdownImage(ins.img), ""}
		lines = append(lines[:at], append(block, lines[at:]...)...)
	}
	return strings.Join(lines, "\n")
}

// markdownImage renders a record as a Markdown image reference with
// the filename stem as alt text.
func markdownImage(img ImageRecord) string {
	alt := img.Filename
	if i := strings.LastIndex(alt, "."); i > 0 {
		alt = alt[:i]
	}
	return fmt.Sprintf("![%s](%s)", alt, img.URL)
}

// contextWords extracts the substantial words of a context snippet.
func contextWords(s string) []string {
	var words []string
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.TrimFunc(f, func(r rune) bool { return !isWordChar(r) })
		if len(f) > 3 {
			words = append(words, f)
		}
	}
	return words
}

// sharedWordCount counts how many of the given words appear in line.
func sharedWordCount(line string, words []string) int {
	lower := strings.ToLower(line)
	n := 0
	for _, w := range words {
		if containsWord(lower, w) {
			n++
		}
	}
	return n
}
