package enrichaf

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"
)

// contextSnippetLen caps the length of an ImageRecord's ContentContext.
const contextSnippetLen = 200

// pdfcpu names extracted images with the source page embedded, e.g.
// doc_page_3_Im0.png.
var pdfImagePagePattern = regexp.MustCompile(`_page_(\d+)_`)

// extractFromPDF extracts embedded images via pdfcpu into a temporary
// directory, moves them into the document folder under stable names,
// and annotates each record with its source page, an approximate
// position taken from the page's text block layout, and a leading-text
// context snippet.
func (e *ImageExtractor) extractFromPDF(path string, fr *folderRef) ([]ImageRecord, error) {
	tempDir, err := os.MkdirTemp("", "enrichaf_pdf_")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractImagesFile(path, tempDir, nil, conf); err != nil {
		return nil, fmt.Errorf("extract PDF images: %w", err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("list extracted images: %w", err)
	}

	// Stable ordering so per-page image indexes are deterministic.
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && rasterExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	layout := newPDFLayout(path, e.logger)

	var records []ImageRecord
	perPage := make(map[int]int)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(tempDir, name))
		if err != nil {
			e.logger.Debug("skipping unreadable extracted image",
				zap.String("name", name), zap.Error(err))
			continue
		}

		pageNum := pageNumberFromName(name)
		perPage[pageNum]++

		folder, err := fr.get()
		if err != nil {
			return records, err
		}
		stable := fmt.Sprintf("page_%d_img_%d%s",
			pageNum, perPage[pageNum], strings.ToLower(filepath.Ext(name)))
		record, err := e.store.SaveImage(folder, stable, data)
		if err != nil {
			e.logger.Debug("skipping unsavable PDF image",
				zap.String("name", name), zap.Error(err))
			continue
		}

		record.PageNumber = pageNum
		if pageNum > 0 {
			record.PositionX, record.PositionY = layout.approximatePosition(pageNum, perPage[pageNum])
			record.ContentContext = layout.leadingText(pageNum)
		}
		records = append(records, record)
	}
	return records, nil
}

// pageNumberFromName parses the 1-based page number out of a pdfcpu
// image filename. 0 means the page could not be determined.
func pageNumberFromName(name string) int {
	m := pdfImagePagePattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// pdfLayout lazily loads per-page text layout for position and context
// annotation. A page that cannot be read yields zero values; layout
// problems never fail the extraction.
type pdfLayout struct {
	path   string
	logger *zap.Logger

	loaded bool
	pages  map[int]*pdfPageLayout
}

type pdfPageLayout struct {
	// lines are text row positions in content order (top of page
	// first).
	lines []pdfLine
	// leading is the page's leading text, capped at contextSnippetLen.
	leading string
}

type pdfLine struct {
	x, y float64
}

func newPDFLayout(path string, logger *zap.Logger) *pdfLayout {
	return &pdfLayout{path: path, logger: logger, pages: make(map[int]*pdfPageLayout)}
}

// load reads the PDF once. The pdf library panics on some malformed
// files, so the whole pass is recovered.
func (l *pdfLayout) load() {
	if l.loaded {
		return
	}
	l.loaded = true

	defer func() {
		if r := recover(); r != nil {
			l.logger.Debug("PDF layout pass panicked",
				zap.String("path", l.path), zap.Any("panic", r))
		}
	}()

	f, reader, err := pdf.Open(l.path)
	if err != nil {
		l.logger.Debug("cannot open PDF for layout",
			zap.String("path", l.path), zap.Error(err))
		return
	}
	defer f.Close()

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		l.pages[pageNum] = analyzePage(page)
	}
}

// analyzePage groups the page's text into rows by Y coordinate and
// collects the leading text.
func analyzePage(page pdf.Page) *pdfPageLayout {
	const rowTolerance = 3.0

	content := page.Content()
	layout := &pdfPageLayout{}

	var leading strings.Builder
	var rows []pdfLine
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		if leading.Len() < contextSnippetLen {
			leading.WriteString(t.S)
		}

		matched := false
		for i := range rows {
			if abs(rows[i].y-t.Y) <= rowTolerance {
				if t.X < rows[i].x {
					rows[i].x = t.X
				}
				matched = true
				break
			}
		}
		if !matched {
			rows = append(rows, pdfLine{x: t.X, y: t.Y})
		}
	}

	// PDF Y grows upward; content order is top of page first.
	sort.Slice(rows, func(i, j int) bool { return rows[i].y > rows[j].y })
	layout.lines = rows

	layout.leading = strings.TrimSpace(clipSnippet(leading.String()))
	return layout
}

// clipSnippet caps s at contextSnippetLen bytes, backing the cut up to
// a rune boundary so the snippet stays valid UTF-8.
func clipSnippet(s string) string {
	if len(s) <= contextSnippetLen {
		return s
	}
	cut := contextSnippetLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// approximatePosition places the n-th image of a page at the text row
// proportional to its index, approximating where in the page flow the
// image sits.
func (l *pdfLayout) approximatePosition(pageNum, imageIndex int) (float64, float64) {
	l.load()
	page := l.pages[pageNum]
	if page == nil || len(page.lines) == 0 {
		return 0, 0
	}
	idx := imageIndex * len(page.lines) / (imageIndex + 1)
	if idx >= len(page.lines) {
		idx = len(page.lines) - 1
	}
	row := page.lines[idx]
	return row.x, row.y
}

// leadingText returns the page's leading text snippet.
func (l *pdfLayout) leadingText(pageNum int) string {
	l.load()
	if page := l.pages[pageNum]; page != nil {
		return page.leading
	}
	return ""
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
