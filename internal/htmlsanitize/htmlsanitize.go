// Package htmlsanitize restricts user-authored HTML to the subset
// Telegram's Bot API accepts for parse_mode=HTML, by streaming tokens
// through an allow-list and dropping anything else.
//
// Unknown tags are dropped but their content is kept. An opening tag
// that is never matched by its closing tag (or whose closing tag
// never arrives before the document ends) is rolled back entirely:
// the exact byte range its own markup occupied is excised from the
// output, using the same start/end offsets recorded when it was
// written. This mirrors a hand-rolled HTML parser's stack-of-offsets
// technique rather than a true DOM tree.
package htmlsanitize

import (
	"strings"

	"golang.org/x/net/html"
)

var allowedTags = map[string]bool{
	"b": true, "strong": true, "i": true, "em": true, "u": true,
	"ins": true, "s": true, "strike": true, "del": true,
	"tg-spoiler": true, "a": true, "code": true,
	"pre": true, "blockquote": true,
}

// blockTags get a trailing newline after their closing tag, whether
// or not they are themselves passed through (p is not in allowedTags
// but still receives the newline).
var blockTags = map[string]bool{"p": true, "blockquote": true, "pre": true}

var voidTags = map[string]bool{"br": true}

type openTag struct {
	tag        string
	start, end int
}

// Sanitize runs the allow-list sanitizer over input and returns
// Telegram-safe HTML.
func Sanitize(input string) string {
	input = strings.ReplaceAll(input, "&nbsp;", " ")

	z := html.NewTokenizer(strings.NewReader(input))
	buf := make([]byte, 0, len(input))
	var stack []openTag

	startTag := func(tag string, attrs []html.Attribute) {
		if voidTags[tag] {
			return
		}

		oldLen := len(buf)

		switch {
		case tag == "a":
			href := attrFind(attrs, "href")
			if href == "" {
				return
			}
			buf = append(buf, []byte(`<a href="`+html.EscapeString(href)+`">`)...)
		case allowedTags[tag]:
			buf = append(buf, []byte("<"+tag+">")...)
		}

		stack = append(stack, openTag{tag, oldLen, len(buf)})
	}

	endTag := func(tag string) {
		if voidTags[tag] {
			return
		}
		if len(stack) == 0 || stack[len(stack)-1].tag != tag {
			return
		}
		stack = stack[:len(stack)-1]

		if allowedTags[tag] {
			buf = append(buf, []byte("</"+tag+">")...)
		}
		if blockTags[tag] {
			buf = append(buf, '\n')
		}
	}

tokenLoop:
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			break tokenLoop
		case html.StartTagToken:
			tok := z.Token()
			startTag(tok.Data, tok.Attr)
		case html.EndTagToken:
			tok := z.Token()
			endTag(tok.Data)
		case html.SelfClosingTagToken:
			tok := z.Token()
			startTag(tok.Data, tok.Attr)
			endTag(tok.Data)
		case html.TextToken, html.CommentToken, html.DoctypeToken:
			if tt == html.TextToken {
				buf = append(buf, []byte(html.EscapeString(string(z.Text())))...)
			}
		}
	}

	for len(stack) > 0 {
		last := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		buf = append(buf[:last.start], buf[last.end:]...)
	}

	return strings.TrimSuffix(string(buf), "\n")
}

func attrFind(attrs []html.Attribute, key string) string {
	for _, a := range attrs {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
