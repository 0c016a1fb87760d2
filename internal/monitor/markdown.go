package monitor

import (
	"bytes"

	"github.com/yuin/goldmark"
)

// renderDescription converts a repository's optional Markdown description
// to HTML for the dashboard. Empty input renders to "" rather than an
// error; a malformed description is surfaced as a visible placeholder
// rather than failing the whole /api/repos response.
func renderDescription(md string) string {
	if md == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "<em>description failed to render</em>"
	}
	return buf.String()
}
