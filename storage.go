package enrichaf

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	// Register decoders for the raster formats found inside documents.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
)

// DocumentFolder is a uniquely named directory holding all images for
// one conversion job. Created lazily on first image write and deleted
// wholesale by the retention sweeper.
type DocumentFolder struct {
	// Name is the directory name ({sanitized-name}_{8-hex-suffix}).
	Name string

	// Path is the absolute or root-relative directory path.
	Path string
}

// ImageStore owns the image-storage root. It creates per-document
// folders and writes image files, converting non-PNG rasters to PNG.
// When the configured root cannot be created due to permissions, the
// store falls back to an OS temp location and keeps using it for the
// lifetime of the store.
type ImageStore struct {
	baseURL string
	logger  *zap.Logger

	mu   sync.Mutex
	root string
}

// NewImageStore creates a store rooted at cfg.ImagesDir serving URLs
// under cfg.BaseURL. The root directory is not created until first use.
func NewImageStore(cfg Config, logger *zap.Logger) *ImageStore {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageStore{
		baseURL: cfg.BaseURL,
		logger:  logger,
		root:    cfg.ImagesDir,
	}
}

// Root returns the directory currently used as the image-storage root.
func (s *ImageStore) Root() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.root
}

// ensureRoot creates the storage root, falling back to a temp location
// on permission failure. The fallback sticks: once switched, all later
// calls use the temp root.
func (s *ImageStore) ensureRoot() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err == nil {
		return s.root, nil
	} else if !os.IsPermission(err) {
		return "", fmt.Errorf("create images root %s: %w", s.root, err)
	}

	fallback := filepath.Join(os.TempDir(), "enrichaf_static", "images")
	if err := os.MkdirAll(fallback, 0o755); err != nil {
		return "", fmt.Errorf("create fallback images root %s: %w", fallback, err)
	}
	s.logger.Warn("cannot create images root, using temporary location",
		zap.String("configured", s.root),
		zap.String("fallback", fallback))
	s.root = fallback
	return s.root, nil
}

// CreateDocumentFolder creates a new uniquely named folder for the
// given logical document name.
func (s *ImageStore) CreateDocumentFolder(documentName string) (*DocumentFolder, error) {
	root, err := s.ensureRoot()
	if err != nil {
		return nil, err
	}

	name := sanitizeDocumentName(documentName) + "_" + uuid.NewString()[:8]
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create document folder %s: %w", path, err)
	}
	return &DocumentFolder{Name: name, Path: path}, nil
}

// SaveImage writes image data into the folder under the given filename
// and returns its record. Raster formats other than PNG are converted
// to PNG (the original write is removed); SVG is preserved as-is.
// Filenames are made collision-safe within the folder.
func (s *ImageStore) SaveImage(folder *DocumentFolder, filename string, data []byte) (ImageRecord, error) {
	filename = sanitizeFilename(filename)
	if filename == "" {
		filename = "image"
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".svg":
		filename = uniqueFilename(folder.Path, filename)
		if err := os.WriteFile(filepath.Join(folder.Path, filename), data, 0o644); err != nil {
			return ImageRecord{}, fmt.Errorf("save image %s: %w", filename, err)
		}
		return s.newRecord(folder, filename, 0, 0), nil

	case ".png":
		filename = uniqueFilename(folder.Path, filename)
		if err := os.WriteFile(filepath.Join(folder.Path, filename), data, 0o644); err != nil {
			return ImageRecord{}, fmt.Errorf("save image %s: %w", filename, err)
		}
		w, h := probeDimensions(data)
		return s.newRecord(folder, filename, w, h), nil

	default:
		return s.saveConverted(folder, filename, data)
	}
}

// saveConverted writes the original payload, re-encodes it as PNG, and
// removes the pre-conversion file. If decoding fails the original file
// is kept with unknown dimensions.
func (s *ImageStore) saveConverted(folder *DocumentFolder, filename string, data []byte) (ImageRecord, error) {
	original := uniqueFilename(folder.Path, filename)
	originalPath := filepath.Join(folder.Path, original)
	if err := os.WriteFile(originalPath, data, 0o644); err != nil {
		return ImageRecord{}, fmt.Errorf("save image %s: %w", original, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.logger.Debug("keeping image in original format, decode failed",
			zap.String("filename", original), zap.Error(err))
		return s.newRecord(folder, original, 0, 0), nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return s.newRecord(folder, original, 0, 0), nil
	}

	stem := strings.TrimSuffix(original, filepath.Ext(original))
	pngName := uniqueFilename(folder.Path, stem+".png")
	if err := os.WriteFile(filepath.Join(folder.Path, pngName), buf.Bytes(), 0o644); err != nil {
		return ImageRecord{}, fmt.Errorf("save converted image %s: %w", pngName, err)
	}
	if err := os.Remove(originalPath); err != nil {
		s.logger.Debug("cannot remove pre-conversion file",
			zap.String("path", originalPath), zap.Error(err))
	}

	bounds := img.Bounds()
	return s.newRecord(folder, pngName, bounds.Dx(), bounds.Dy()), nil
}

func (s *ImageStore) newRecord(folder *DocumentFolder, filename string, width, height int) ImageRecord {
	return ImageRecord{
		Filename:          filename,
		URL:               s.baseURL + "/images/" + folder.Name + "/" + filename,
		Width:             width,
		Height:            height,
		PositionInContent: -1,
	}
}

// probeDimensions returns the pixel dimensions of an encoded image, or
// zeros when the header cannot be parsed.
func probeDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// sanitizeDocumentName lowercases a document name and reduces it to
// [a-z0-9_], replacing spaces and hyphens with underscores. Unicode
// letters are NFKD-decomposed first so accented names keep their base
// letters.
func sanitizeDocumentName(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		case r == ' ', r == '-', r == '_':
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "document"
	}
	return out
}

// sanitizeFilename keeps alphanumerics, spaces, hyphens, underscores
// and dots, dropping everything else.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) ||
			r == ' ' || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// uniqueFilename returns a filename that does not collide with an
// existing file in dir, appending _2, _3, ... before the extension as
// needed.
func uniqueFilename(dir, name string) string {
	if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}
