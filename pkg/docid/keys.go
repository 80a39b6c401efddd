package docid

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/vellum-io/vellum/pkg/kind"
)

// Page filenames are zero-padded to three digits so lexicographic order over
// keys equals numeric page order.
var pagePattern = regexp.MustCompile(`^page_(\d{3})\.([a-z0-9]+)$`)

// PageKey builds the object key for one page of a document under a prefix,
// e.g. PageKey("pdf-pages/", "a", 3, "pdf") == "pdf-pages/a/page_003.pdf".
func PageKey(prefix, id string, page int, ext string) string {
	return fmt.Sprintf("%s%s/page_%03d.%s", prefix, id, page, ext)
}

// ManifestKey builds the manifest key for a document under a prefix.
func ManifestKey(prefix, id string) string {
	return prefix + id + "/manifest.json"
}

// DocKey builds the per-document output key under a prefix, e.g.
// DocKey("text-docs/", "a", "json") == "text-docs/a.json".
func DocKey(prefix, id, ext string) string {
	return prefix + id + "." + ext
}

// ParsePageKey splits a page object key into document ID and page number.
// The key must be prefix + "{id}/page_NNN.{ext}" with a single-segment ID.
func ParsePageKey(key, prefix string) (string, int, error) {
	rel, ok := strings.CutPrefix(key, prefix)
	if !ok {
		return "", 0, fmt.Errorf("key %q outside prefix %q: %w", key, prefix, kind.ErrInputInvalid)
	}

	dir, file := path.Split(rel)
	id := strings.TrimSuffix(dir, "/")
	if id == "" || strings.Contains(id, "/") {
		return "", 0, fmt.Errorf("page key %q has no single-segment document id: %w", key, kind.ErrInputInvalid)
	}

	m := pagePattern.FindStringSubmatch(file)
	if m == nil {
		return "", 0, fmt.Errorf("page key %q does not match page_NNN naming: %w", key, kind.ErrInputInvalid)
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return "", 0, fmt.Errorf("page key %q has invalid page number: %w", key, kind.ErrInputInvalid)
	}
	return id, page, nil
}
