// Package stages holds the wire shapes and helpers shared by the pipeline
// stage packages underneath it. Each subpackage implements one
// pipeline.Stage; this package carries what they exchange through the object
// store.
package stages

import (
	"fmt"
	"strings"

	"github.com/vellum-io/vellum/pkg/docid"
)

// Manifest is the splitter's fan-out record. It is written after every page
// object so its presence implies all pages exist.
type Manifest struct {
	DocumentID string `json:"documentId"`
	Pages      int    `json:"pages"`
}

// DocumentText is the combined per-document output. Pages are ordered by
// page number and each already carries its "## Page N" header.
type DocumentText struct {
	DocumentID string   `json:"documentId"`
	Type       string   `json:"type"`
	PageCount  int      `json:"pageCount"`
	Pages      []string `json:"pages"`
}

// PageMarkdown wraps extracted page text in the per-page Markdown frame.
func PageMarkdown(page int, text string) string {
	return fmt.Sprintf("## Page %d\n\n%s\n", page, text)
}

// Match reports whether an object belongs to a stage watching the given
// bucket and prefix. With extensions given, the key must also end in one of
// them (case-insensitive, without dot).
func Match(bucket, key, wantBucket, prefix string, exts ...string) bool {
	if bucket != wantBucket || !strings.HasPrefix(key, prefix) {
		return false
	}
	if len(exts) == 0 {
		return true
	}
	ext := docid.Ext(key)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
