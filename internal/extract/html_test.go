package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToMarkdown(t *testing.T) {
	out := HTMLToMarkdown("<h1>Title</h1><p>Body with <strong>bold</strong> text.</p>", "")
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "**bold**")
}

func TestHTMLToMarkdownEmptyInput(t *testing.T) {
	assert.Equal(t, "", HTMLToMarkdown("", ""))
}

func TestStripHTML(t *testing.T) {
	out := StripHTML("<div>Hello&nbsp;<span>world</span></div>")
	assert.Contains(t, out, "Hello")
	assert.Contains(t, out, "world")
	assert.NotContains(t, out, "<")
}
