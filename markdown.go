package enrichaf

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

// validateMarkdown parses the final content and reports image nodes
// with empty or base64 destinations. These indicate an incomplete
// cleanup pass upstream; the content is still returned to the caller,
// this is a guard, not a gate.
func validateMarkdown(content string, logger *zap.Logger) int {
	md := goldmark.New()
	source := []byte(content)
	doc := md.Parser().Parse(text.NewReader(source))

	issues := 0
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		dest := string(img.Destination)
		switch {
		case strings.TrimSpace(dest) == "":
			issues++
			logger.Warn("image with empty destination in enriched output")
		case strings.Contains(dest, "base64"):
			issues++
			logger.Warn("unresolved base64 image in enriched output",
				zap.Int("destination_length", len(dest)))
		}
		return ast.WalkContinue, nil
	})
	return issues
}
