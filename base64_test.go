package enrichaf

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testStore(t *testing.T) *ImageStore {
	t.Helper()
	cfg := Config{BaseURL: "http://test", ImagesDir: t.TempDir()}
	return NewImageStore(cfg.withDefaults(), zap.NewNop())
}

func testFolderRef(t *testing.T, store *ImageStore) *folderRef {
	t.Helper()
	return &folderRef{store: store, documentName: "test_doc"}
}

// validPayload is base64 for a payload comfortably above the minimum
// image size.
func validPayload() string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xAB}, 150))
}

func TestFindInlineImages(t *testing.T) {
	payload := validPayload()

	tests := []struct {
		name    string
		content string
		count   int
		alt     string
	}{
		{
			"markdown syntax",
			"text ![chart](data:image/png;base64," + payload + ") more",
			1, "chart",
		},
		{
			"html img tag",
			`text <img alt="figure" src="data:image/jpeg;base64,` + payload + `"/> more`,
			1, "figure",
		},
		{
			"bare data uri",
			"text data:image/png;base64," + payload + " more",
			1, "",
		},
		{
			"whitespace split payload",
			"text data:image/png;base64," + payload[:20] + " \n " + payload[20:] + " more",
			1, "",
		},
		{
			"no images",
			"plain text without any embedded data",
			0, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := findInlineImages(tt.content)
			if len(matches) != tt.count {
				t.Fatalf("findInlineImages found %d matches, want %d", len(matches), tt.count)
			}
			if tt.count > 0 && matches[0].alt != tt.alt {
				t.Errorf("alt = %q, want %q", matches[0].alt, tt.alt)
			}
		})
	}
}

func TestResolve_ReplacesBodyImage(t *testing.T) {
	store := testStore(t)
	r := &base64Resolver{store: store, logger: zap.NewNop()}

	content := "This introductory paragraph contains well over ten words and ends with a period.\n" +
		"\n" +
		"Some more text.\n" +
		"\n" +
		"More body text here.\n" +
		"\n" +
		"![chart](data:image/png;base64," + validPayload() + ")"

	got, records := r.resolve(content, testFolderRef(t, store))

	if len(records) != 1 {
		t.Fatalf("resolve created %d records, want 1", len(records))
	}
	if strings.Contains(got, "base64") {
		t.Errorf("base64 data left in content:\n%s", got)
	}
	if !strings.Contains(got, "![chart.png]("+records[0].URL+")") {
		t.Errorf("content missing image reference to %s:\n%s", records[0].URL, got)
	}
}

func TestResolve_RelocatesHeaderImage(t *testing.T) {
	store := testStore(t)
	r := &base64Resolver{store: store, logger: zap.NewNop()}

	content := "![logo](data:image/png;base64," + validPayload() + ")\n" +
		"\n" +
		"# Course Syllabus\n" +
		"\n" +
		"This introductory paragraph contains well over ten words and ends with a period."

	got, records := r.resolve(content, testFolderRef(t, store))

	if len(records) != 1 {
		t.Fatalf("resolve created %d records, want 1", len(records))
	}
	if strings.Contains(got, "base64") {
		t.Errorf("base64 data left in content:\n%s", got)
	}

	headingIdx := strings.Index(got, "# Course Syllabus")
	imageIdx := strings.Index(got, "![logo.png](")
	if headingIdx < 0 || imageIdx < 0 {
		t.Fatalf("heading or relocated image missing:\n%s", got)
	}
	if imageIdx < headingIdx {
		t.Errorf("header image not moved below the first heading:\n%s", got)
	}
}

func TestResolve_RoundTripPreservesBytes(t *testing.T) {
	store := testStore(t)
	r := &base64Resolver{store: store, logger: zap.NewNop()}
	fr := testFolderRef(t, store)

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test PNG: %v", err)
	}
	original := buf.Bytes()
	content := "This introductory paragraph contains well over ten words and ends with a period.\n" +
		"\n" +
		"Some more text.\n" +
		"\n" +
		"More body text here.\n" +
		"\n" +
		"![photo](data:image/png;base64," + base64.StdEncoding.EncodeToString(original) + ")"

	got, records := r.resolve(content, fr)

	if len(records) != 1 {
		t.Fatalf("resolve created %d records, want 1", len(records))
	}
	if strings.Contains(got, "base64") {
		t.Errorf("base64 residue in content:\n%s", got)
	}

	saved, err := os.ReadFile(filepath.Join(fr.folder.Path, records[0].Filename))
	if err != nil {
		t.Fatalf("reading materialized image: %v", err)
	}
	if !bytes.Equal(saved, original) {
		t.Error("materialized image bytes differ from the encoded original")
	}
	if records[0].Width != 16 || records[0].Height != 16 {
		t.Errorf("dimensions = %dx%d, want 16x16", records[0].Width, records[0].Height)
	}
}

func TestResolve_RemovesUndersizedPayload(t *testing.T) {
	store := testStore(t)
	r := &base64Resolver{store: store, logger: zap.NewNop()}

	tiny := base64.StdEncoding.EncodeToString([]byte("too small"))
	content := "Before ![tiny](data:image/png;base64," + tiny + ") after."

	got, records := r.resolve(content, testFolderRef(t, store))

	if len(records) != 0 {
		t.Fatalf("undersized payload produced %d records, want 0", len(records))
	}
	if strings.Contains(got, "base64") || strings.Contains(got, "![") {
		t.Errorf("undersized image not removed:\n%s", got)
	}
}

func TestResolve_NoopWithoutBase64(t *testing.T) {
	store := testStore(t)
	r := &base64Resolver{store: store, logger: zap.NewNop()}

	content := "# Heading\n\nPlain text with a normal ![image](http://test/images/x/y.png) reference."
	got, records := r.resolve(content, testFolderRef(t, store))

	if got != content {
		t.Errorf("content changed without base64 present:\ngot  %q\nwant %q", got, content)
	}
	if len(records) != 0 {
		t.Errorf("resolve created %d records, want 0", len(records))
	}
}

func TestApplyEdits(t *testing.T) {
	content := "aaa bbb ccc"
	edits := []textEdit{
		{start: 0, end: 3, replacement: "xxx"},
		{start: 8, end: 11, replacement: "zzz"},
		{start: 4, end: 7},
	}

	if got := applyEdits(content, edits); got != "xxx  zzz" {
		t.Errorf("applyEdits = %q, want %q", got, "xxx  zzz")
	}
}

func TestStripBase64Residue(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bare residue token", "text data:image/png;base64,AAAA text"},
		{"partial token", "left base64,brokenfragment right"},
		{"empty image target", "text ![broken]() text"},
		{"mixed residue", "![x](  ) plus stray;base64 token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripBase64Residue(tt.content)
			if strings.Contains(got, "base64") {
				t.Errorf("base64 residue survived: %q", got)
			}
			if emptyImageTargetPattern.MatchString(got) {
				t.Errorf("empty image target survived: %q", got)
			}
		})
	}
}
