package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageMarkdown(t *testing.T) {
	assert.Equal(t, "## Page 1\n\nHello World\n", PageMarkdown(1, "Hello World"))
	assert.Equal(t, "## Page 12\n\n\n", PageMarkdown(12, ""))
}

func TestMatchHelper(t *testing.T) {
	assert.True(t, Match("b", "raw/a.pdf", "b", "raw/"))
	assert.True(t, Match("b", "raw/a.PDF", "b", "raw/", "pdf"))
	assert.True(t, Match("b", "office-docs/x.docx", "b", "office-docs/", "docx", "pptx"))
	assert.False(t, Match("b", "raw/a.pdf", "b", "raw/", "docx"))
	assert.False(t, Match("b", "raw/README", "b", "raw/", "pdf"))
	assert.False(t, Match("other", "raw/a.pdf", "b", "raw/"))
	assert.False(t, Match("b", "curated/a.pdf", "b", "raw/"))
}
