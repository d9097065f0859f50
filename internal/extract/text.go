package extract

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text returns the concatenated text nodes below n. Script, style and
// template contents and comments are not text.
func Text(n *html.Node) string {
	var b strings.Builder
	appendText(&b, n)
	return b.String()
}

func appendText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if skipsText(n.DataAtom) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		appendText(b, c)
	}
}

// StripTags parses src as HTML and returns its text content.
func StripTags(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}
	return Text(doc)
}

func skipsText(a atom.Atom) bool {
	switch a {
	case atom.Script, atom.Style, atom.Template:
		return true
	}
	return false
}

// isVoid reports whether a is an element that never has content.
func isVoid(a atom.Atom) bool {
	switch a {
	case atom.Area, atom.Base, atom.Br, atom.Col, atom.Embed, atom.Hr, atom.Img,
		atom.Input, atom.Link, atom.Meta, atom.Param, atom.Source, atom.Track, atom.Wbr:
		return true
	}
	return false
}

// hasClass reports whether attrs carry a class attribute containing the
// token class.
func hasClass(attrs []html.Attribute, class string) bool {
	for _, a := range attrs {
		if a.Namespace != "" || a.Key != "class" {
			continue
		}
		for _, tok := range strings.Fields(a.Val) {
			if tok == class {
				return true
			}
		}
	}
	return false
}

type openElement struct {
	name    string
	skip    bool
	matches []*strings.Builder
}

// collectByClass tokenizes src and returns, for the elements carrying
// classA and classB, their text in start tag order. Elements open and close
// as the tags appear in the source: an end tag closes the nearest open
// element of the same name and anything opened after it, a stray end tag is
// ignored, and elements still open at the end are closed. Matches nested in
// other matches are collected on their own and as part of the outer text.
func collectByClass(src, classA, classB string) (a, b []*strings.Builder) {
	z := html.NewTokenizer(strings.NewReader(src))
	var stack []openElement
	skipping := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if !errors.Is(z.Err(), io.EOF) {
				return nil, nil
			}
			return a, b

		case html.TextToken:
			if skipping > 0 {
				continue
			}
			text := string(z.Text())
			for _, el := range stack {
				for _, m := range el.matches {
					m.WriteString(text)
				}
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			el := openElement{name: tok.Data, skip: skipsText(tok.DataAtom)}
			if hasClass(tok.Attr, classA) {
				m := &strings.Builder{}
				a = append(a, m)
				el.matches = append(el.matches, m)
			}
			if hasClass(tok.Attr, classB) {
				m := &strings.Builder{}
				b = append(b, m)
				el.matches = append(el.matches, m)
			}
			if tok.Type == html.SelfClosingTagToken || isVoid(tok.DataAtom) {
				continue
			}
			stack = append(stack, el)
			if el.skip {
				skipping++
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name != string(name) {
					continue
				}
				for _, el := range stack[i:] {
					if el.skip {
						skipping--
					}
				}
				stack = stack[:i]
				break
			}
		}
	}
}
