package enrichaf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Pipeline turns a source document into enriched Markdown: raw text
// plus extracted images in, one coherent document out. The raw text
// extraction itself is delegated to the configured TextExtractor;
// everything after that is the ordered transform chain.
type Pipeline struct {
	cfg       Config
	logger    *zap.Logger
	store     *ImageStore
	extractor *ImageExtractor
	resolver  *base64Resolver
	links     *HyperlinkIntegrator
	placer    *ImagePlacer
	paginator *Paginator
	text      TextExtractor
}

// NewPipeline wires a pipeline from config. extractor may be nil, in
// which case source files are read verbatim as text.
func NewPipeline(cfg Config, extractor TextExtractor, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	if extractor == nil {
		extractor = TextExtractorFunc(readFileText)
	}

	store := NewImageStore(cfg, logger)
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		extractor: NewImageExtractor(store, logger),
		resolver:  &base64Resolver{store: store, logger: logger},
		links:     NewHyperlinkIntegrator(logger),
		placer:    NewImagePlacer(logger),
		paginator: NewPaginator(logger),
		text:      extractor,
	}
}

// Store exposes the pipeline's image store, shared with the retention
// sweeper and the static file server.
func (p *Pipeline) Store() *ImageStore {
	return p.store
}

// Convert runs the full enrichment chain on the file at filePath.
// documentName defaults to the file's base name without extension.
// createPages controls whether the result is split into page sections;
// when false the content passes through pagination untouched.
func (p *Pipeline) Convert(ctx context.Context, filePath, documentName string, createPages bool) (*EnrichedDocument, error) {
	if documentName == "" {
		documentName = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}
	isPDF := strings.EqualFold(filepath.Ext(filePath), ".pdf")

	content, err := p.text.ExtractText(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("extract text from %s: %w", filePath, err)
	}

	log := p.logger.With(zap.String("document", documentName))
	fr := &folderRef{store: p.store, documentName: documentName}

	// Inline base64 first so image extraction and placement work on
	// clean text.
	content, inlineRecords := p.resolver.resolve(content, fr)

	extracted, err := p.extractor.extractInto(filePath, fr)
	if err != nil {
		log.Warn("image extraction incomplete", zap.Error(err))
	}

	content = normalizeHeadings(content)

	if isPDF {
		content = p.links.IntegratePDFAnnotations(content, filePath)
	} else {
		content = p.links.applyManualTerms(content)
	}
	content = p.links.ConvertGeneric(content)

	content = p.placer.Place(content, extracted)

	// The text extractor itself may emit inline base64; catch it now
	// that the content is otherwise final.
	content, lateRecords := p.resolver.resolve(content, fr)
	content = stripBase64Residue(content)

	if createPages {
		content = p.paginator.Paginate(content, isPDF)
	}

	if issues := validateMarkdown(content, log); issues > 0 {
		log.Warn("enriched output failed validation", zap.Int("issues", issues))
	}

	images := make([]ImageRecord, 0, len(inlineRecords)+len(extracted)+len(lateRecords))
	images = append(images, inlineRecords...)
	images = append(images, extracted...)
	images = append(images, lateRecords...)

	log.Info("document enriched",
		zap.Int("images", len(images)),
		zap.Bool("paginated", createPages))

	return &EnrichedDocument{
		Filename: filepath.Base(filePath),
		Content:  content,
		Images:   images,
	}, nil
}

// readFileText is the fallback text extractor: the file's bytes as-is.
func readFileText(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
