package compiler

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

var stateKey = parser.NewContextKey()

// compileState carries per-page inputs into the AST pass and collects what
// it finds.
type compileState struct {
	source string
	cfg    *config.Config

	title    string
	headings []Heading
	links    []LinkRef
	assets   []string
}

// linkTransformer rewrites links to content files into page URLs and
// records headings and image references.
type linkTransformer struct{}

func (linkTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	st, _ := pc.Get(stateKey).(*compileState)
	if st == nil {
		return
	}
	src := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			h := Heading{Level: node.Level, Text: nodeText(node, src)}
			if v, ok := node.AttributeString("id"); ok {
				if id, ok := v.([]byte); ok {
					h.ID = string(id)
				}
			}
			st.headings = append(st.headings, h)
			if node.Level == 1 && st.title == "" {
				st.title = h.Text
			}
		case *ast.Link:
			if dest, ref, ok := rewriteLink(string(node.Destination), st); ok {
				node.Destination = []byte(dest)
				st.links = append(st.links, ref)
			}
		case *ast.Image:
			if d := string(node.Destination); !route.IsExternal(d) {
				st.assets = append(st.assets, d)
			}
		}
		return ast.WalkContinue, nil
	})
}

// rewriteLink maps a relative link to a content file onto the target page's
// final URL, keeping query and fragment.
func rewriteLink(dest string, st *compileState) (string, LinkRef, bool) {
	if route.IsExternal(dest) {
		return "", LinkRef{}, false
	}
	u, err := url.Parse(dest)
	if err != nil || !route.IsContentFile(u.Path) {
		return "", LinkRef{}, false
	}

	var target string
	if strings.HasPrefix(u.Path, "/") {
		target = strings.TrimPrefix(path.Clean(u.Path), "/")
	} else {
		target = path.Join(path.Dir(st.source), u.Path)
	}
	if target == ".." || strings.HasPrefix(target, "../") {
		return "", LinkRef{}, false
	}
	r, err := route.FromSource(target)
	if err != nil {
		return "", LinkRef{}, false
	}

	out := r.URL(st.cfg.BaseURL, st.cfg.Output.Style)
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		out += "#" + u.EscapedFragment()
	}
	return out, LinkRef{Dest: dest, Target: target, Route: r, Fragment: u.Fragment}, true
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
