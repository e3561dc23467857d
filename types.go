// Package enrichaf turns raw extracted document text and extracted
// embedded images into a single coherent Markdown document. It
// repositions images, promotes title-shaped lines to headings,
// integrates hyperlink annotations, resolves inline base64 image data
// to files, and optionally splits content into page sections. A
// retention sweeper reclaims per-document image folders on a daily
// schedule.
//
// Raw text extraction from the source container is not done here; it is
// supplied by a TextExtractor collaborator.
package enrichaf

import "context"

// ImageRecord represents one image extracted from a document or
// materialized from inline base64 data. Records are created during
// extraction and read-only afterward; they are removed from disk when
// their owning document folder is swept.
type ImageRecord struct {
	// Filename is unique within the owning document folder.
	Filename string `json:"filename"`

	// URL is the public retrieval path for the image
	// ({baseURL}/images/{folder}/{filename}).
	URL string `json:"url"`

	// Width and Height are pixel dimensions. 0 means unknown (vector
	// formats, failed probes).
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// PageNumber is the 1-based source page (PDF only). 0 means unset.
	PageNumber int `json:"page_number,omitempty"`

	// PositionX and PositionY are approximate page-space coordinates
	// (PDF only); only meaningful when PageNumber > 0.
	PositionX float64 `json:"position_x,omitempty"`
	PositionY float64 `json:"position_y,omitempty"`

	// PositionInContent is a character offset into the raw text (DOCX
	// only). -1 means unset.
	PositionInContent int `json:"position_in_content,omitempty"`

	// ContentContext is a short text snippet (at most 200 characters)
	// surrounding the image's source location, used to match the image
	// to a spot in the linearized output.
	ContentContext string `json:"content_context,omitempty"`
}

// HasPosition reports whether the record carries a DOCX character
// offset.
func (r *ImageRecord) HasPosition() bool {
	return r.PositionInContent >= 0
}

// HyperlinkRecord is a link annotation gathered from a PDF page.
type HyperlinkRecord struct {
	URI string `json:"uri"`

	// Page is the 1-based source page. 0 means unknown.
	Page int `json:"page,omitempty"`

	// Rect is the annotation bounding box [x0 y0 x1 y1], nil when the
	// extraction backend does not supply one.
	Rect []float64 `json:"rect,omitempty"`
}

// EnrichedDocument is the pipeline output: the final Markdown content
// plus every image record referenced by it. After the pipeline
// completes, Content contains no residual base64 data URIs and no
// image syntax with an empty target.
type EnrichedDocument struct {
	Filename string        `json:"filename"`
	Content  string        `json:"content"`
	Images   []ImageRecord `json:"images"`
}

// TextExtractor supplies the raw text/Markdown rendition of a source
// file. It is the external conversion collaborator; implementations
// typically wrap a general-purpose conversion library or service.
type TextExtractor interface {
	// ExtractText returns the plain-text/Markdown content of the file
	// at path.
	ExtractText(ctx context.Context, path string) (string, error)
}

// TextExtractorFunc adapts a function to the TextExtractor interface.
type TextExtractorFunc func(ctx context.Context, path string) (string, error)

// ExtractText calls f.
func (f TextExtractorFunc) ExtractText(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}
