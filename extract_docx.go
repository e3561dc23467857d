package enrichaf

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// docxDrawingRef is a drawing reference found while walking
// word/document.xml: which relationship it points to, and where in the
// accumulated paragraph text it occurred.
type docxDrawingRef struct {
	relID     string
	paraIndex int
	offset    int
}

// extractFromDocx walks the document's paragraphs to locate drawing
// references, giving each image a character offset into the raw text
// and a surrounding-paragraph context snippet. Identical image
// payloads referenced more than once are extracted once. When the
// paragraph walk matches nothing, a flat relationship scan extracts
// the media without positional metadata.
func (e *ImageExtractor) extractFromDocx(path string, fr *folderRef) ([]ImageRecord, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open DOCX archive: %w", err)
	}
	defer zr.Close()

	docXML, err := readArchiveFile(&zr.Reader, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("read document.xml: %w", err)
	}

	rels := parseDocxRelationships(&zr.Reader)
	paragraphs, refs := walkDocxParagraphs(docXML)

	records := e.saveDocxDrawings(&zr.Reader, fr, paragraphs, refs, rels)
	if len(records) > 0 {
		return records, nil
	}
	return e.saveDocxMediaFlat(&zr.Reader, fr)
}

// saveDocxDrawings materializes the images behind the collected
// drawing references.
func (e *ImageExtractor) saveDocxDrawings(zr *zip.Reader, fr *folderRef,
	paragraphs []string, refs []docxDrawingRef, rels map[string]string) []ImageRecord {

	seen := make(map[[32]byte]bool)
	var records []ImageRecord
	for _, ref := range refs {
		target, ok := rels[ref.relID]
		if !ok {
			continue
		}
		data, err := readArchiveFile(zr, "word/"+target)
		if err != nil {
			e.logger.Debug("skipping unreadable DOCX media",
				zap.String("target", target), zap.Error(err))
			continue
		}

		hash := sha256.Sum256(data)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		folder, err := fr.get()
		if err != nil {
			return records
		}
		record, err := e.store.SaveImage(folder, filepath.Base(target), data)
		if err != nil {
			e.logger.Debug("skipping unsavable DOCX image",
				zap.String("target", target), zap.Error(err))
			continue
		}

		record.PositionInContent = ref.offset
		record.ContentContext = paragraphContext(paragraphs, ref.paraIndex)
		records = append(records, record)
	}
	return records
}

// saveDocxMediaFlat extracts all word/media entries without positional
// metadata.
func (e *ImageExtractor) saveDocxMediaFlat(zr *zip.Reader, fr *folderRef) ([]ImageRecord, error) {
	var records []ImageRecord
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "word/media/") {
			continue
		}
		if !rasterExtensions[strings.ToLower(filepath.Ext(f.Name))] {
			continue
		}
		data, err := readZipEntry(f)
		if err != nil {
			e.logger.Debug("skipping unreadable DOCX media",
				zap.String("entry", f.Name), zap.Error(err))
			continue
		}
		folder, err := fr.get()
		if err != nil {
			return records, err
		}
		record, err := e.store.SaveImage(folder, filepath.Base(f.Name), data)
		if err != nil {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// walkDocxParagraphs streams word/document.xml, collecting paragraph
// text and the drawing references embedded in it. The offset of a
// reference is the cumulative character count of all text before it.
func walkDocxParagraphs(data []byte) ([]string, []docxDrawingRef) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var paragraphs []string
	var refs []docxDrawingRef

	var inParagraph, inRun bool
	var currentText strings.Builder
	var totalOffset int

	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				currentText.Reset()
			case "r":
				if inParagraph {
					inRun = true
				}
			case "tab":
				if inRun {
					currentText.WriteString("\t")
				}
			case "br":
				if inRun {
					currentText.WriteString("\n")
				}
			case "blip":
				// DrawingML image reference: <a:blip r:embed="rIdN"/>
				for _, attr := range t.Attr {
					if attr.Name.Local == "embed" && attr.Value != "" {
						refs = append(refs, docxDrawingRef{
							relID:     attr.Value,
							paraIndex: len(paragraphs),
							offset:    totalOffset + currentText.Len(),
						})
					}
				}
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inParagraph {
					text := strings.TrimSpace(currentText.String())
					paragraphs = append(paragraphs, text)
					totalOffset += len(text) + 1 // paragraph separator
					inParagraph = false
				}
			case "r":
				inRun = false
			}

		case xml.CharData:
			if inRun {
				currentText.Write(t)
			}
		}
	}

	return paragraphs, refs
}

// parseDocxRelationships maps relationship IDs to their image targets
// from word/_rels/document.xml.rels.
func parseDocxRelationships(zr *zip.Reader) map[string]string {
	rels := make(map[string]string)

	data, err := readArchiveFile(zr, "word/_rels/document.xml.rels")
	if err != nil {
		return rels
	}

	var doc struct {
		Relationships []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return rels
	}

	for _, rel := range doc.Relationships {
		if strings.Contains(rel.Target, "media/") {
			rels[rel.ID] = strings.TrimPrefix(rel.Target, "/word/")
		}
	}
	return rels
}

// paragraphContext joins the two paragraphs on either side of index
// into a context snippet, capped at contextSnippetLen.
func paragraphContext(paragraphs []string, index int) string {
	start := index - 2
	if start < 0 {
		start = 0
	}
	end := index + 3
	if end > len(paragraphs) {
		end = len(paragraphs)
	}

	var parts []string
	for _, p := range paragraphs[start:end] {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.TrimSpace(clipSnippet(strings.Join(parts, " ")))
}

// readArchiveFile reads a named file from a ZIP archive.
func readArchiveFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readZipEntry(f)
		}
	}
	return nil, fmt.Errorf("file %s not found in archive", name)
}
