// Package citation turns the raw grounding sources of an answer into a deduplicated,
// presentation-ready list.
package citation

import (
	"fmt"
	"strings"

	"vision-assist/gemini"
)

const untitledSource = "Untitled Source"

// Citation is a unique (title, uri) pair.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Dedupe keeps the first occurrence of every URI, in source order. Sources without a URI are
// dropped and a missing title becomes "Untitled Source". The result is never nil.
func Dedupe(sources []gemini.Attribution) []Citation {
	citations := make([]Citation, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))

	for _, attribution := range sources {
		if attribution.Web == nil || attribution.Web.URI == nil || *attribution.Web.URI == "" {
			continue
		}
		uri := *attribution.Web.URI
		if _, ok := seen[uri]; ok {
			continue
		}

		title := untitledSource
		if attribution.Web.Title != nil {
			title = *attribution.Web.Title
		}

		citations = append(citations, Citation{Title: title, URI: uri})
		seen[uri] = struct{}{}
	}

	return citations
}

// Markdown renders the deduplicated sources as a numbered link list inside the source-log
// banner, or "" when there is nothing to cite.
func Markdown(sources []gemini.Attribution) string {
	citations := Dedupe(sources)
	if len(citations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n---\n**SOURCE LOG:**\n")
	for i, c := range citations {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, c.Title, c.URI)
	}
	b.WriteString("---\n")
	return b.String()
}
