package enrichaf

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// ImageExtractor extracts embedded images from document containers
// into per-document folders. Dispatch is by file extension; each
// format handler is independent and a failure to read or save a single
// image is skipped, never propagated.
type ImageExtractor struct {
	store  *ImageStore
	logger *zap.Logger
}

// NewImageExtractor creates an extractor writing through the given
// store.
func NewImageExtractor(store *ImageStore, logger *zap.Logger) *ImageExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageExtractor{store: store, logger: logger}
}

// rasterExtensions is the set of embedded raster formats copied out of
// ZIP-based containers.
var rasterExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// ExtractImages extracts the embedded images of the file at path into
// a new document folder named after documentName. Unrecognized
// extensions produce an empty result without error. The folder is
// created lazily on the first image write; a nil folder means no image
// was extracted.
func (e *ImageExtractor) ExtractImages(path, documentName string) ([]ImageRecord, *DocumentFolder, error) {
	fr := &folderRef{store: e.store, documentName: documentName}
	records, err := e.extractInto(path, fr)
	return records, fr.folder, err
}

// extractInto runs format dispatch against an existing folder ref so a
// conversion job shares one document folder across stages.
func (e *ImageExtractor) extractInto(path string, fr *folderRef) ([]ImageRecord, error) {
	var records []ImageRecord
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		records, err = e.extractFromPDF(path, fr)
	case ".docx", ".doc":
		records, err = e.extractFromDocx(path, fr)
	case ".pptx", ".ppt":
		records, err = e.extractFromZipMedia(path, fr, "ppt/media/", false)
	case ".xlsx", ".xls":
		records, err = e.extractFromZipMedia(path, fr, "xl/media/", false)
	case ".odt", ".ods", ".odp":
		records, err = e.extractFromZipMedia(path, fr, "Pictures/", false)
	case ".html", ".htm", ".xml":
		records, err = e.extractFromHTML(path, fr)
	case ".zip":
		records, err = e.extractFromZipMedia(path, fr, "", true)
	default:
		return nil, nil
	}

	if err != nil {
		e.logger.Warn("image extraction failed",
			zap.String("path", path), zap.Error(err))
		return records, nil
	}
	return records, nil
}

// folderRef creates the document folder on first use so empty
// extractions leave no directory behind.
type folderRef struct {
	store        *ImageStore
	documentName string
	folder       *DocumentFolder
}

func (fr *folderRef) get() (*DocumentFolder, error) {
	if fr.folder == nil {
		folder, err := fr.store.CreateDocumentFolder(fr.documentName)
		if err != nil {
			return nil, err
		}
		fr.folder = folder
	}
	return fr.folder, nil
}

// extractFromZipMedia copies image entries out of a ZIP container.
// prefix narrows the scan to a media directory (ppt/media/, xl/media/,
// Pictures/); an empty prefix with includeSVG scans the whole archive,
// used for generic archives.
func (e *ImageExtractor) extractFromZipMedia(path string, fr *folderRef, prefix string, includeSVG bool) ([]ImageRecord, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	var records []ImageRecord
	for _, f := range zr.File {
		if prefix != "" && !strings.HasPrefix(f.Name, prefix) {
			continue
		}
		name := filepath.Base(f.Name)
		ext := strings.ToLower(filepath.Ext(name))
		if !rasterExtensions[ext] && !(includeSVG && ext == ".svg") {
			continue
		}

		data, err := readZipEntry(f)
		if err != nil {
			e.logger.Debug("skipping unreadable archive entry",
				zap.String("entry", f.Name), zap.Error(err))
			continue
		}

		folder, err := fr.get()
		if err != nil {
			return records, err
		}
		record, err := e.store.SaveImage(folder, name, data)
		if err != nil {
			e.logger.Debug("skipping unsavable image",
				zap.String("entry", f.Name), zap.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// extractFromHTML materializes base64 data-URI images referenced by
// <img> tags in an HTML or XML file.
func (e *ImageExtractor) extractFromHTML(path string, fr *folderRef) ([]ImageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var records []ImageRecord
	doc.Find("img").Each(func(i int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || !strings.HasPrefix(src, "data:image/") {
			return
		}

		imageType, payload, ok := splitDataURI(src)
		if !ok {
			return
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			e.logger.Debug("skipping undecodable embedded image",
				zap.Int("index", i), zap.Error(err))
			return
		}

		folder, err := fr.get()
		if err != nil {
			return
		}
		name := fmt.Sprintf("embedded_image_%d.%s", len(records)+1, imageType)
		record, err := e.store.SaveImage(folder, name, data)
		if err != nil {
			e.logger.Debug("skipping unsavable embedded image",
				zap.Int("index", i), zap.Error(err))
			return
		}
		records = append(records, record)
	})
	return records, nil
}

// splitDataURI splits a data:image/<type>;base64,<payload> URI into
// its type and payload.
func splitDataURI(uri string) (imageType, payload string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:image/")
	if !found {
		return "", "", false
	}
	imageType, rest, found = strings.Cut(rest, ";base64,")
	if !found || imageType == "" || rest == "" {
		return "", "", false
	}
	// Some emitters split the payload with whitespace.
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, rest)
	return imageType, payload, true
}

// readZipEntry reads the full contents of one archive entry.
func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
