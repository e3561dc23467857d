package enrichaf

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var (
	markdownLinkPattern = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	htmlAnchorPattern   = regexp.MustCompile(`<a\s+[^>]*href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a>`)
	bareURLPattern      = regexp.MustCompile(`(?:https?://|www\.)[^\s<>()\[\]"']+`)
	emailAddrPattern    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	doubledProtoPattern = regexp.MustCompile(`(https?://)(?:https?://)+`)
	rawPDFURIPattern    = regexp.MustCompile(`/URI\s*\(([^)]+)\)`)
	uriSegmentPattern   = regexp.MustCompile(`[A-Za-z]+`)
)

// infrastructureTokens are URI path tokens that never make good link
// terms.
var infrastructureTokens = map[string]bool{
	"http": true, "https": true, "www": true, "com": true, "org": true,
	"net": true, "edu": true, "gov": true, "html": true, "index": true,
	"pages": true, "page": true, "wiki": true, "docs": true, "article": true,
	"articles": true, "content": true, "assets": true, "static": true,
	"about": true,
}

// HyperlinkIntegrator merges PDF link annotations into document text
// and converts literal URLs, emails, and HTML anchors to Markdown
// links. The two dictionaries are deployment-specific content mappings;
// both are pluggable and pre-filled with defaults.
type HyperlinkIntegrator struct {
	// URITermHints maps URI substrings to the literal term that should
	// carry the link in the text.
	URITermHints map[string]string

	// ManualTermLinks is a fallback term → URI dictionary applied when
	// the automated annotation mapping misses.
	ManualTermLinks map[string]string

	logger *zap.Logger
}

// NewHyperlinkIntegrator creates an integrator with the default
// dictionaries.
func NewHyperlinkIntegrator(logger *zap.Logger) *HyperlinkIntegrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HyperlinkIntegrator{
		URITermHints: map[string]string{
			"wiki/George_Washington":           "George Washington",
			"wiki/Abraham_Lincoln":             "Abraham Lincoln",
			"wiki/Thomas_Jefferson":            "Thomas Jefferson",
			"wiki/Alexander_Hamilton":          "Alexander Hamilton",
			"wiki/Benjamin_Franklin":           "Benjamin Franklin",
			"wiki/Declaration_of_Independence": "Declaration of Independence",
			"wiki/Constitution":                "Constitution",
			"wiki/American_Revolution":         "American Revolution",
			"wiki/Civil_War":                   "Civil War",
			"wiki/Reconstruction_era":          "Reconstruction",
		},
		ManualTermLinks: map[string]string{
			"Federalist Papers":         "https://en.wikipedia.org/wiki/The_Federalist_Papers",
			"Bill of Rights":            "https://en.wikipedia.org/wiki/United_States_Bill_of_Rights",
			"Emancipation Proclamation": "https://en.wikipedia.org/wiki/Emancipation_Proclamation",
		},
		logger: logger,
	}
}

// IntegratePDFAnnotations gathers link annotations from the PDF at
// path and weaves them into content as Markdown links on matching
// terms. Non-PDF sources should skip this pass.
func (h *HyperlinkIntegrator) IntegratePDFAnnotations(content, path string) string {
	byPage := h.collectPDFHyperlinks(path, content)
	if len(byPage) == 0 {
		return h.applyManualTerms(content)
	}

	// Deduplicate by URI with first-found-wins across pages in order.
	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	seen := make(map[string]bool)
	var uris []string
	for _, p := range pages {
		for _, rec := range byPage[p] {
			if rec.URI == "" || seen[rec.URI] {
				continue
			}
			seen[rec.URI] = true
			uris = append(uris, rec.URI)
		}
	}

	for _, uri := range uris {
		term := h.termForURI(uri, content)
		if term == "" {
			continue
		}
		content = linkFirstOccurrence(content, term, uri)
	}

	return h.applyManualTerms(content)
}

// collectPDFHyperlinks merges three extraction backends in reliability
// order: page link annotations, a raw /URI byte scan, and literal URLs
// in the text. First extractor wins per URI.
func (h *HyperlinkIntegrator) collectPDFHyperlinks(path, content string) map[int][]HyperlinkRecord {
	byPage := make(map[int][]HyperlinkRecord)
	seen := make(map[string]bool)

	add := func(page int, rec HyperlinkRecord) {
		if rec.URI == "" || seen[rec.URI] {
			return
		}
		seen[rec.URI] = true
		byPage[page] = append(byPage[page], rec)
	}

	for page, recs := range h.annotationHyperlinks(path) {
		for _, rec := range recs {
			add(page, rec)
		}
	}

	if data, err := os.ReadFile(path); err == nil {
		for _, m := range rawPDFURIPattern.FindAllStringSubmatch(string(data), -1) {
			add(0, HyperlinkRecord{URI: strings.TrimSpace(m[1])})
		}
	}

	for _, uri := range bareURLPattern.FindAllString(content, -1) {
		add(0, HyperlinkRecord{URI: strings.TrimRight(uri, ".,;")})
	}

	return byPage
}

// annotationHyperlinks reads Link annotations from each page's Annots
// array. The pdf library panics on some malformed files, so the pass
// is recovered and partial results returned.
func (h *HyperlinkIntegrator) annotationHyperlinks(path string) (byPage map[int][]HyperlinkRecord) {
	byPage = make(map[int][]HyperlinkRecord)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Debug("PDF annotation pass panicked",
				zap.String("path", path), zap.Any("panic", r))
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return byPage
	}
	defer f.Close()

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		annots := page.V.Key("Annots")
		if annots.Kind() != pdf.Array {
			continue
		}
		for i := 0; i < annots.Len(); i++ {
			annot := annots.Index(i)
			if annot.Key("Subtype").Name() != "Link" {
				continue
			}
			uri := annot.Key("A").Key("URI")
			if uri.Kind() != pdf.String {
				continue
			}
			rec := HyperlinkRecord{URI: uri.RawString(), Page: pageNum}
			rect := annot.Key("Rect")
			if rect.Kind() == pdf.Array && rect.Len() == 4 {
				coords := make([]float64, 4)
				for j := 0; j < 4; j++ {
					coords[j] = rect.Index(j).Float64()
				}
				rec.Rect = coords
			}
			byPage[pageNum] = append(byPage[pageNum], rec)
		}
	}
	return byPage
}

// termForURI maps a URI to the literal term that should carry it:
// first by the curated substring dictionary, then by extracting a path
// segment that also occurs as a whole word in the document.
func (h *HyperlinkIntegrator) termForURI(uri, content string) string {
	for hint, term := range h.URITermHints {
		if strings.Contains(uri, hint) {
			return term
		}
	}

	lowerContent := strings.ToLower(content)
	path := uri
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
	}
	if i := strings.Index(path, "/"); i >= 0 {
		path = path[i+1:]
	} else {
		return ""
	}

	for _, token := range uriSegmentPattern.FindAllString(path, -1) {
		if len(token) <= 4 || infrastructureTokens[strings.ToLower(token)] {
			continue
		}
		if containsWord(lowerContent, strings.ToLower(token)) {
			return token
		}
	}
	return ""
}

// applyManualTerms applies the fallback term dictionary: each term's
// first whole-word occurrence outside existing Markdown links is
// wrapped. The text is split on link syntax and only non-link segments
// are scanned.
func (h *HyperlinkIntegrator) applyManualTerms(content string) string {
	terms := make([]string, 0, len(h.ManualTermLinks))
	for term := range h.ManualTermLinks {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	for _, term := range terms {
		uri := h.ManualTermLinks[term]
		linkSpans := markdownLinkPattern.FindAllStringIndex(content, -1)
		if start, end := findWordOutsideSpans(content, term, linkSpans); start >= 0 {
			content = content[:start] + "[" + content[start:end] + "](" + uri + ")" +
				content[end:]
		}
	}
	return content
}

// loweredText is a lowercased copy of a string paired with a byte
// offset map back to the original. Lowercasing can change rune byte
// lengths (U+023A lowers to a longer encoding, for example), so match
// offsets found in the lowered copy cannot index the original directly.
type loweredText struct {
	lower   string
	offsets []int
}

// lowerOffsets lowercases s rune by rune, recording for every lowered
// byte the original offset of the rune it came from. The map carries
// one extra entry so a match ending at the end of the lowered text maps
// to len(s).
func lowerOffsets(s string) loweredText {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)
	for i, r := range s {
		lr := unicode.ToLower(r)
		for j := 0; j < utf8.RuneLen(lr); j++ {
			offsets = append(offsets, i)
		}
		b.WriteRune(lr)
	}
	offsets = append(offsets, len(s))
	return loweredText{lower: b.String(), offsets: offsets}
}

// span maps a [start, end) byte range in the lowered text back to the
// corresponding range in the original.
func (lt loweredText) span(start, end int) (int, int) {
	return lt.offsets[start], lt.offsets[end]
}

// linkFirstOccurrence wraps the first case-insensitive whole-word
// occurrence of term in a Markdown link, skipping occurrences already
// inside link syntax (checked via the immediate bracket context).
func linkFirstOccurrence(content, term, uri string) string {
	lt := lowerOffsets(content)
	lowerTerm := strings.ToLower(term)

	idx := 0
	for {
		i := strings.Index(lt.lower[idx:], lowerTerm)
		if i < 0 {
			return content
		}
		i += idx

		start, end := lt.span(i, i+len(lowerTerm))
		if isWholeWordAt(content, start, end) && !insideLinkContext(content, start, end) {
			return content[:start] + "[" + content[start:end] + "](" + uri + ")" +
				content[end:]
		}
		idx = i + len(lowerTerm)
	}
}

// insideLinkContext checks the immediate bracket context of a match:
// already bracketed, or sitting inside a link target.
func insideLinkContext(content string, start, end int) bool {
	if start > 0 {
		switch content[start-1] {
		case '[', '(', '/':
			return true
		}
	}
	if end+1 < len(content) && content[end] == ']' && content[end+1] == '(' {
		return true
	}
	return false
}

// isWholeWordAt reports whether the span [start, end) sits on word
// boundaries in content.
func isWholeWordAt(content string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(content[:start]); isWordChar(r) {
			return false
		}
	}
	if end < len(content) {
		if r, _ := utf8.DecodeRuneInString(content[end:]); isWordChar(r) {
			return false
		}
	}
	return true
}

// findWordOutsideSpans locates the first case-insensitive whole-word
// occurrence of term that does not overlap any of the given spans.
// Spans and the returned range are byte offsets into content; a miss
// returns (-1, -1).
func findWordOutsideSpans(content, term string, spans [][]int) (int, int) {
	lt := lowerOffsets(content)
	lowerTerm := strings.ToLower(term)

	idx := 0
	for {
		i := strings.Index(lt.lower[idx:], lowerTerm)
		if i < 0 {
			return -1, -1
		}
		i += idx

		start, end := lt.span(i, i+len(lowerTerm))
		overlaps := false
		for _, span := range spans {
			if start < span[1] && end > span[0] {
				overlaps = true
				break
			}
		}
		if !overlaps && isWholeWordAt(content, start, end) {
			return start, end
		}
		idx = i + len(lowerTerm)
	}
}

// ConvertGeneric converts literal link syntax to Markdown: HTML
// anchors, bare http/https/www URLs, and email addresses. URLs and
// emails already inside Markdown links are left alone, and doubled
// protocols produced by malformed input are collapsed.
func (h *HyperlinkIntegrator) ConvertGeneric(content string) string {
	content = htmlAnchorPattern.ReplaceAllString(content, "[$2]($1)")
	content = convertBareURLs(content)
	content = convertEmails(content)
	content = doubledProtoPattern.ReplaceAllString(content, "$1")
	return content
}

// convertBareURLs wraps bare URLs in self-referential Markdown links.
func convertBareURLs(content string) string {
	matches := bareURLPattern.FindAllStringIndex(content, -1)
	var edits []textEdit
	for _, m := range matches {
		if precededByLinkOpening(content, m[0]) {
			continue
		}
		url := strings.TrimRight(content[m[0]:m[1]], ".,;")
		end := m[0] + len(url)

		target := url
		if strings.HasPrefix(url, "www.") {
			target = "https://" + url
		}
		edits = append(edits, textEdit{
			start:       m[0],
			end:         end,
			replacement: "[" + url + "](" + target + ")",
		})
	}
	return applyEdits(content, edits)
}

// convertEmails wraps email addresses in mailto links under the same
// existing-link guard.
func convertEmails(content string) string {
	matches := emailAddrPattern.FindAllStringIndex(content, -1)
	var edits []textEdit
	for _, m := range matches {
		if precededByLinkOpening(content, m[0]) {
			continue
		}
		// Skip addresses inside a mailto target.
		if m[0] >= 7 && content[m[0]-7:m[0]] == "mailto:" {
			continue
		}
		addr := content[m[0]:m[1]]
		edits = append(edits, textEdit{
			start:       m[0],
			end:         m[1],
			replacement: "[" + addr + "](mailto:" + addr + ")",
		})
	}
	return applyEdits(content, edits)
}

// precededByLinkOpening reports whether the character immediately
// before offset opens Markdown link syntax.
func precededByLinkOpening(content string, offset int) bool {
	if offset == 0 {
		return false
	}
	switch content[offset-1] {
	case '[', '(':
		return true
	}
	return false
}
