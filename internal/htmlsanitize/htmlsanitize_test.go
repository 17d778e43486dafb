package htmlsanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_AllowedInline(t *testing.T) {
	assert.Equal(t, "<b>hi</b>", Sanitize("<b>hi</b>"))
}

func TestSanitize_UnknownTagDropsButKeepsContent(t *testing.T) {
	assert.Equal(t, "hi", Sanitize("<span>hi</span>"))
}

func TestSanitize_AnchorRequiresHref(t *testing.T) {
	assert.Equal(t, `<a href="https://example.test">go</a>`, Sanitize(`<a href="https://example.test">go</a>`))
	assert.Equal(t, "go", Sanitize("<a>go</a>"))
}

func TestSanitize_BlockTagsGetTrailingNewline(t *testing.T) {
	assert.Equal(t, "<pre>code</pre>\nnext", Sanitize("<pre>code</pre>next"))
}

func TestSanitize_ParagraphNotRenderedButGetsNewline(t *testing.T) {
	assert.Equal(t, "one\ntwo", Sanitize("<p>one</p>two"))
}

func TestSanitize_BrIsVoid(t *testing.T) {
	assert.Equal(t, "onetwo", Sanitize("one<br>two"))
}

func TestSanitize_MismatchedTagsRolledBack(t *testing.T) {
	assert.Equal(t, "x", Sanitize("<b><i>x</b>"))
}

func TestSanitize_NbspBecomesSpace(t *testing.T) {
	assert.Equal(t, "a b", Sanitize("a&nbsp;b"))
}

func TestSanitize_DataEscaped(t *testing.T) {
	assert.Equal(t, "5 &lt; 10 &amp; 3 &gt; 1", Sanitize("5 < 10 & 3 > 1"))
}
