package httphandler

import (
	"bytes"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	htmlSanitizer = bluemonday.UGCPolicy()
)

// renderDescription converts a pull request body written in GitHub-flavored
// markdown to sanitized HTML. Raw HTML in the body is passed through the
// renderer and then stripped by the sanitizer.
func renderDescription(body string) string {
	if body == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(body), &buf); err != nil {
		return htmlSanitizer.Sanitize(body)
	}

	return htmlSanitizer.Sanitize(buf.String())
}
