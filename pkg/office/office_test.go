package office

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vellum-io/vellum/pkg/kind"
)

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.name)
		require.NoError(t, err)
		_, err = f.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const docxBody = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Greeting</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
    <w:p/>
  </w:body>
</w:document>`

func slideBody(text string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree>
    <p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>
  </p:spTree></p:cSld>
</p:sld>`
}

func TestExtractDOCX(t *testing.T) {
	t.Run("paragraphs joined by blank lines", func(t *testing.T) {
		data := buildZip(t, []zipEntry{{"word/document.xml", docxBody}})

		text, err := ExtractDOCX(data)
		require.NoError(t, err)
		assert.Equal(t, "Greeting\n\nSecond paragraph", text)
	})

	t.Run("not a zip", func(t *testing.T) {
		_, err := ExtractDOCX([]byte("plain text"))
		require.ErrorIs(t, err, kind.ErrParse)
	})

	t.Run("archive without document part", func(t *testing.T) {
		data := buildZip(t, []zipEntry{{"word/styles.xml", "<styles/>"}})

		_, err := ExtractDOCX(data)
		require.ErrorIs(t, err, kind.ErrParse)
	})
}

func TestExtractPPTX(t *testing.T) {
	t.Run("slides ordered numerically", func(t *testing.T) {
		// Archive entry order deliberately scrambled: slide10 would sort
		// before slide2 lexicographically.
		data := buildZip(t, []zipEntry{
			{"ppt/slides/slide10.xml", slideBody("Closing")},
			{"ppt/slides/slide1.xml", slideBody("Opening")},
			{"ppt/slides/slide2.xml", slideBody("Agenda")},
			{"ppt/slides/_rels/slide1.xml.rels", "<rels/>"},
			{"ppt/notesSlides/notesSlide1.xml", slideBody("speaker notes")},
		})

		pages, err := ExtractPPTX(data)
		require.NoError(t, err)
		require.Len(t, pages, 3)
		assert.Equal(t, "Opening", pages[0])
		assert.Equal(t, "Agenda", pages[1])
		assert.Equal(t, "Closing", pages[2])
	})

	t.Run("no slides", func(t *testing.T) {
		data := buildZip(t, []zipEntry{{"ppt/presentation.xml", "<p/>"}})

		_, err := ExtractPPTX(data)
		require.ErrorIs(t, err, kind.ErrParse)
	})
}

func TestExtractXLSX(t *testing.T) {
	t.Run("sheet per page as markdown table", func(t *testing.T) {
		wb := excelize.NewFile()
		require.NoError(t, wb.SetCellValue("Sheet1", "A1", "Name"))
		require.NoError(t, wb.SetCellValue("Sheet1", "B1", "Dose"))
		require.NoError(t, wb.SetCellValue("Sheet1", "A2", "Jane"))
		require.NoError(t, wb.SetCellValue("Sheet1", "A3", "Bob"))
		require.NoError(t, wb.SetCellValue("Sheet1", "B3", "50"))
		_, err := wb.NewSheet("Costs")
		require.NoError(t, err)
		require.NoError(t, wb.SetCellValue("Costs", "A1", "Total"))
		require.NoError(t, wb.SetCellValue("Costs", "A2", "120"))
		buf, err := wb.WriteToBuffer()
		require.NoError(t, err)

		pages, err := ExtractXLSX(buf.Bytes())
		require.NoError(t, err)
		require.Len(t, pages, 2)

		assert.Equal(t, "### Sheet1\n\n"+
			"| Name | Dose |\n"+
			"| --- | --- |\n"+
			"| Jane |  |\n"+
			"| Bob | 50 |", pages[0])
		assert.Equal(t, "### Costs\n\n"+
			"| Total |\n"+
			"| --- |\n"+
			"| 120 |", pages[1])
	})

	t.Run("empty sheet keeps its page", func(t *testing.T) {
		wb := excelize.NewFile()
		buf, err := wb.WriteToBuffer()
		require.NoError(t, err)

		pages, err := ExtractXLSX(buf.Bytes())
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, "### Sheet1", pages[0])
	})

	t.Run("not a workbook", func(t *testing.T) {
		_, err := ExtractXLSX([]byte("junk"))
		require.ErrorIs(t, err, kind.ErrParse)
	})
}

func TestExtract(t *testing.T) {
	t.Run("dispatches by extension case-insensitively", func(t *testing.T) {
		data := buildZip(t, []zipEntry{{"word/document.xml", docxBody}})

		pages, err := Extract(data, "DOCX")
		require.NoError(t, err)
		require.Len(t, pages, 1)
		assert.Equal(t, "Greeting\n\nSecond paragraph", pages[0])
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := Extract([]byte("x"), "pdf")
		require.ErrorIs(t, err, kind.ErrInputInvalid)
	})
}
