package devserver

import (
	"bytes"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// withBanner returns doc with an alert inserted at the top of its body
// listing msgs. It is used to mark a last-good page whose source no longer
// compiles.
func withBanner(doc []byte, msgs []string) ([]byte, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	body := findElement(root, atom.Body)
	if body == nil {
		return doc, nil
	}

	banner := element(atom.Div,
		html.Attribute{Key: "class", Val: "td-banner td-banner-error"},
		html.Attribute{Key: "role", Val: "alert"})
	strong := element(atom.Strong)
	strong.AppendChild(&html.Node{Type: html.TextNode, Data: "This page failed to rebuild. Showing the last good version."})
	banner.AppendChild(strong)
	list := element(atom.Ul)
	for _, m := range msgs {
		li := element(atom.Li)
		li.AppendChild(&html.Node{Type: html.TextNode, Data: m})
		list.AppendChild(li)
	}
	banner.AppendChild(list)
	body.InsertBefore(banner, body.FirstChild)

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: a.String(), DataAtom: a, Attr: attrs}
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
