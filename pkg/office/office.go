// Package office extracts plain text from Office Open XML documents. Word
// documents yield a single page, presentations one page per slide, and
// workbooks one page per sheet rendered as a Markdown table. Page numbers
// follow document order and are 1-based, matching the PDF pipeline.
package office

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/vellum-io/vellum/pkg/kind"
	"github.com/vellum-io/vellum/pkg/layout"
)

// Extract dispatches on the lowercased file extension (without dot) and
// returns one string per page.
func Extract(data []byte, ext string) ([]string, error) {
	switch strings.ToLower(ext) {
	case "docx":
		text, err := ExtractDOCX(data)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	case "pptx":
		return ExtractPPTX(data)
	case "xlsx":
		return ExtractXLSX(data)
	default:
		return nil, fmt.Errorf("unsupported office extension %q: %w", ext, kind.ErrInputInvalid)
	}
}

// ExtractDOCX returns the document body of a Word file as paragraphs joined
// by blank lines.
func ExtractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening docx archive: %v: %w", err, kind.ErrParse)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("docx missing word/document.xml: %w", kind.ErrParse)
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("opening word/document.xml: %v: %w", err, kind.ErrParse)
	}
	defer rc.Close()

	paragraphs, err := paragraphsFromXML(rc)
	if err != nil {
		return "", fmt.Errorf("decoding word/document.xml: %v: %w", err, kind.ErrParse)
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// ExtractPPTX returns one string per slide, ordered by slide number. Slides
// without text yield empty pages so page numbers stay aligned with the deck.
func ExtractPPTX(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pptx archive: %v: %w", err, kind.ErrParse)
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: n, file: f})
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("pptx has no slides: %w", kind.ErrParse)
	}
	// Archive entry order is not slide order.
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make([]string, 0, len(slides))
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("opening slide %d: %v: %w", s.num, err, kind.ErrParse)
		}
		paragraphs, err := paragraphsFromXML(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding slide %d: %v: %w", s.num, err, kind.ErrParse)
		}
		pages = append(pages, strings.Join(paragraphs, "\n\n"))
	}
	return pages, nil
}

// ExtractXLSX returns one string per sheet: the sheet name as a heading
// followed by the cell grid as a Markdown table. Empty cells render as empty
// strings so rows keep their width.
func ExtractXLSX(data []byte) ([]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening xlsx workbook: %v: %w", err, kind.ErrParse)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	pages := make([]string, 0, len(sheets))
	for _, name := range sheets {
		rows, err := wb.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %v: %w", name, err, kind.ErrParse)
		}

		var page strings.Builder
		fmt.Fprintf(&page, "### %s", name)
		if len(rows) > 0 {
			page.WriteString("\n\n")
			page.WriteString(layout.MarkdownTable(rows))
		}
		pages = append(pages, page.String())
	}
	return pages, nil
}

// paragraphsFromXML walks an OOXML part and collects the character data of
// every <t> run, grouped into paragraphs by <p> elements. Matching on the
// local name covers both WordprocessingML (w:) and DrawingML (a:) namespaces.
func paragraphsFromXML(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			paragraphs = append(paragraphs, s)
		}
		current.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				flush()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	flush()
	return paragraphs, nil
}
