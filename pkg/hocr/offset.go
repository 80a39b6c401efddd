package hocr

import "strings"

// WordRef is one word located on a page.
type WordRef struct {
	Page int
	Word Word
}

type span struct {
	start int
	end   int
	ref   WordRef
}

// OffsetIndex maps character offsets of the canonical document text back to
// word boxes. The canonical text is built by walking the document in order:
// each word consumes len(text)+1 offsets (text plus one separator) and each
// page break consumes one extra newline.
type OffsetIndex struct {
	spans []span
	text  string
}

// NewOffsetIndex builds the index for a document.
func NewOffsetIndex(doc *Document) *OffsetIndex {
	idx := &OffsetIndex{}
	var sb strings.Builder
	off := 0

	for p, page := range doc.Pages {
		if p > 0 {
			sb.WriteString("\n")
			off++
		}
		for w, word := range page.Words {
			if w > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(word.Text)
			idx.spans = append(idx.spans, span{
				start: off,
				end:   off + len(word.Text),
				ref:   WordRef{Page: page.Number, Word: word},
			})
			off += len(word.Text) + 1
		}
		// Trailing separator of the last word doubles as the page newline.
		sb.WriteString("\n")
	}

	idx.text = strings.TrimRight(sb.String(), "\n")
	return idx
}

// Text returns the canonical document text the offsets refer to.
func (x *OffsetIndex) Text() string {
	return x.text
}

// Find returns every word overlapping the character span [start, end).
func (x *OffsetIndex) Find(start, end int) []WordRef {
	if end <= start {
		return nil
	}
	var refs []WordRef
	for _, s := range x.spans {
		if s.start >= end {
			break
		}
		if s.end > start {
			refs = append(refs, s.ref)
		}
	}
	return refs
}
