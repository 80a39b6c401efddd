package hocr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHOCR = `<!DOCTYPE html>
<html>
<body>
  <div class='ocr_page' id='page_1' title='image "p1.png"; bbox 0 0 1000 1400'>
    <span class='ocr_line' title='bbox 80 90 400 120'>
      <span class='ocrx_word' title='bbox 80 90 160 120; x_wconf 95'>Patient</span>
      <span class='ocrx_word' title='bbox 170 90 250 120; x_wconf 93'>name:</span>
      <span class='ocrx_word' title='bbox 260 90 340 120; x_wconf 91'>Jane</span>
    </span>
  </div>
  <div class='ocr_page' id='page_2' title='image "p2.png"; bbox 0 0 1000 1400'>
    <span class='ocrx_word' title='bbox 80 90 200 120; x_wconf 88'>Diagnosis</span>
  </div>
</body>
</html>`

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(sampleHOCR))
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)

	p1 := doc.Pages[0]
	assert.Equal(t, 1, p1.Number)
	require.Len(t, p1.Words, 3)
	assert.Equal(t, "Patient", p1.Words[0].Text)
	assert.Equal(t, [4]int{80, 90, 160, 120}, p1.Words[0].BBox)
	assert.Equal(t, "name:", p1.Words[1].Text)
	assert.Equal(t, "Jane", p1.Words[2].Text)

	p2 := doc.Pages[1]
	assert.Equal(t, 2, p2.Number)
	require.Len(t, p2.Words, 1)
	assert.Equal(t, "Diagnosis", p2.Words[0].Text)
}

func TestParse_NoPageDiv(t *testing.T) {
	html := `<html><body>
	  <span class='ocrx_word' title='bbox 1 2 3 4'>solo</span>
	</body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, 1, doc.Pages[0].Number)
	assert.Equal(t, "solo", doc.Pages[0].Words[0].Text)
}

func TestParse_SkipsWordsWithoutBBox(t *testing.T) {
	html := `<html><body><div class='ocr_page'>
	  <span class='ocrx_word' title='x_wconf 90'>nobox</span>
	  <span class='ocrx_word' title='bbox 1 2 3 4'>boxed</span>
	  <span class='ocrx_word' title='bbox 1 2 3 4'>  </span>
	</div></body></html>`
	doc, err := Parse([]byte(html))
	require.NoError(t, err)
	require.Len(t, doc.Pages[0].Words, 1)
	assert.Equal(t, "boxed", doc.Pages[0].Words[0].Text)
}

func TestParseBBox(t *testing.T) {
	bbox, ok := parseBBox("bbox 100 50 180 80; x_wconf 93")
	assert.True(t, ok)
	assert.Equal(t, [4]int{100, 50, 180, 80}, bbox)

	_, ok = parseBBox("x_wconf 93")
	assert.False(t, ok)

	_, ok = parseBBox("bbox a b c d")
	assert.False(t, ok)
}

func TestOffsetIndex_Text(t *testing.T) {
	doc, err := Parse([]byte(sampleHOCR))
	require.NoError(t, err)

	idx := NewOffsetIndex(doc)
	// Words joined by spaces, pages separated by a blank line.
	assert.Equal(t, "Patient name: Jane\n\nDiagnosis", idx.Text())
}

func TestOffsetIndex_Find(t *testing.T) {
	doc, err := Parse([]byte(sampleHOCR))
	require.NoError(t, err)
	idx := NewOffsetIndex(doc)
	text := idx.Text()

	t.Run("single word span", func(t *testing.T) {
		start := strings.Index(text, "Jane")
		refs := idx.Find(start, start+len("Jane"))
		require.Len(t, refs, 1)
		assert.Equal(t, 1, refs[0].Page)
		assert.Equal(t, "Jane", refs[0].Word.Text)
		assert.Equal(t, [4]int{260, 90, 340, 120}, refs[0].Word.BBox)
	})

	t.Run("span covering two words", func(t *testing.T) {
		start := strings.Index(text, "name: Jane")
		refs := idx.Find(start, start+len("name: Jane"))
		require.Len(t, refs, 2)
		assert.Equal(t, "name:", refs[0].Word.Text)
		assert.Equal(t, "Jane", refs[1].Word.Text)
	})

	t.Run("partial word overlap still matches", func(t *testing.T) {
		start := strings.Index(text, "Jane")
		refs := idx.Find(start+1, start+3)
		require.Len(t, refs, 1)
		assert.Equal(t, "Jane", refs[0].Word.Text)
	})

	t.Run("span on a later page", func(t *testing.T) {
		start := strings.Index(text, "Diagnosis")
		refs := idx.Find(start, start+len("Diagnosis"))
		require.Len(t, refs, 1)
		assert.Equal(t, 2, refs[0].Page)
	})

	t.Run("separator-only span matches nothing", func(t *testing.T) {
		start := strings.Index(text, "\n\n")
		refs := idx.Find(start, start+2)
		assert.Empty(t, refs)
	})

	t.Run("empty span", func(t *testing.T) {
		assert.Empty(t, idx.Find(5, 5))
	})
}
