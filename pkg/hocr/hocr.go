// Package hocr parses hOCR output into positioned words and builds the
// character-offset index the redactor uses to map entity spans back onto
// page coordinates.
package hocr

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/vellum-io/vellum/pkg/kind"
)

// Word is one recognized word with its pixel bounding box [x1, y1, x2, y2].
type Word struct {
	BBox [4]int `json:"bbox"`
	Text string `json:"text"`
}

// Page holds the words of one page in reading order.
type Page struct {
	Number int    `json:"pageNumber"`
	Words  []Word `json:"words"`
}

// Document is the per-document collection of hOCR pages. DocumentID is set
// by the combine stage when it assembles per-page sidecars; Parse leaves it
// empty.
type Document struct {
	DocumentID string `json:"documentId,omitempty"`
	Pages      []Page `json:"pages"`
}

// PageFile is the per-page sidecar the OCR stage writes next to the page
// text. The page number lives in the object key, not the payload.
type PageFile struct {
	Words []Word `json:"words"`
}

// Parse decodes hOCR HTML. Words come from span.ocrx_word elements; the
// bounding box from the bbox property of the title attribute. Pages follow
// div.ocr_page order; documents without page divs parse as a single page.
func Parse(data []byte) (*Document, error) {
	root, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse hocr html: %v: %w", err, kind.ErrParse)
	}

	doc := &Document{}
	pageDivs := root.Find("div.ocr_page")
	if pageDivs.Length() == 0 {
		words := collectWords(root.Selection)
		if len(words) > 0 {
			doc.Pages = append(doc.Pages, Page{Number: 1, Words: words})
		}
		return doc, nil
	}

	pageDivs.Each(func(i int, sel *goquery.Selection) {
		doc.Pages = append(doc.Pages, Page{
			Number: i + 1,
			Words:  collectWords(sel),
		})
	})
	return doc, nil
}

func collectWords(sel *goquery.Selection) []Word {
	var words []Word
	sel.Find("span.ocrx_word").Each(func(_ int, w *goquery.Selection) {
		text := strings.TrimSpace(w.Text())
		if text == "" {
			return
		}
		title, _ := w.Attr("title")
		bbox, ok := parseBBox(title)
		if !ok {
			return
		}
		words = append(words, Word{BBox: bbox, Text: text})
	})
	return words
}

// parseBBox extracts the bbox property from an hOCR title attribute, e.g.
// `bbox 100 50 180 80; x_wconf 93`.
func parseBBox(title string) ([4]int, bool) {
	for _, prop := range strings.Split(title, ";") {
		fields := strings.Fields(strings.TrimSpace(prop))
		if len(fields) != 5 || fields[0] != "bbox" {
			continue
		}
		var bbox [4]int
		for i, f := range fields[1:] {
			n, err := strconv.Atoi(f)
			if err != nil {
				return bbox, false
			}
			bbox[i] = n
		}
		return bbox, true
	}
	return [4]int{}, false
}
