package pipeline

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StripMarkup removes HTML tags from s and returns the visible text.
// Block elements become line breaks, entities are decoded, whitespace inside a
// line is collapsed and blank lines are dropped. A '<' that does not open a
// known element, end tag or comment is kept as text.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(escapeStrayBrackets(s)))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseWhitespace(b.String())
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tag := tagAtom(z)
			if tag == atom.Script || tag == atom.Style {
				skip++
			}
			if isBreak(tag) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			tag := tagAtom(z)
			if (tag == atom.Script || tag == atom.Style) && skip > 0 {
				skip--
			}
			if isBreak(tag) {
				b.WriteByte('\n')
			}
		}
	}
}

// escapeStrayBrackets rewrites every '<' that does not open markup as "&lt;",
// which the tokenizer turns back into a literal '<'.
func escapeStrayBrackets(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '<' && !opensMarkup(s[i+1:]) {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// opensMarkup reports whether rest, the text after a '<', is a comment or a
// start or end tag of a known HTML element closed by '>'.
func opensMarkup(rest string) bool {
	end := strings.IndexByte(rest, '>')
	if end < 0 {
		return false
	}
	if strings.HasPrefix(rest, "!") {
		return true
	}
	if next := strings.IndexByte(rest, '<'); next >= 0 && next < end {
		return false
	}

	tag := strings.TrimPrefix(rest[:end], "/")
	n := 0
	for n < len(tag) && isTagNameByte(tag[n]) {
		n++
	}
	if n == 0 {
		return false
	}
	if n < len(tag) {
		switch tag[n] {
		case ' ', '\t', '\n', '\r', '\f', '/':
		default:
			return false
		}
	}
	return atom.Lookup([]byte(strings.ToLower(tag[:n]))) != 0
}

func isTagNameByte(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9'
}

func tagAtom(z *html.Tokenizer) atom.Atom {
	name, _ := z.TagName()
	return atom.Lookup(name)
}

func isBreak(tag atom.Atom) bool {
	switch tag {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Table,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote, atom.Pre, atom.Hr:
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
