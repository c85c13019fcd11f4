package assets

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

var refAttrs = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"source[src]", "src"},
	{"video[src]", "src"},
	{"audio[src]", "src"},
	{"script[src]", "src"},
	{"link[href]", "href"},
	{"a[href]", "href"},
}

// Rewrite resolves the asset references in an HTML fragment compiled from
// sourceRel and points resolved ones at their published URL. Unresolved
// references are left as written and reported, once per reference.
func (p *Pipeline) Rewrite(fragment, sourceRel string) (string, []Location, []error) {
	if !strings.Contains(fragment, "src=") && !strings.Contains(fragment, "href=") {
		return fragment, nil, nil
	}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), body)
	if err != nil {
		return fragment, nil, []error{errors.AssetError(sourceRel, "parse compiled HTML").WithCause(err).Build()}
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}
	doc := goquery.NewDocumentFromNode(body)

	var (
		locs    []Location
		errs    []error
		changed bool
	)
	reported := map[string]bool{}
	for _, ra := range refAttrs {
		doc.Find(ra.selector).Each(func(_ int, s *goquery.Selection) {
			ref, _ := s.Attr(ra.attr)
			ref = strings.TrimSpace(ref)
			if route.IsExternal(ref) {
				return
			}
			if goquery.NodeName(s) == "a" && !isAssetLink(ref) {
				return
			}
			loc, rerr := p.Resolve(ref, sourceRel)
			if rerr != nil {
				if !reported[ref] {
					reported[ref] = true
					errs = append(errs, rerr)
				}
				return
			}
			if loc.URL != ref {
				s.SetAttr(ra.attr, loc.URL)
				changed = true
			}
			locs = append(locs, loc)
		})
	}
	if !changed {
		return fragment, locs, errs
	}

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return fragment, locs, append(errs, errors.AssetError(sourceRel, "render rewritten HTML").WithCause(err).Build())
		}
	}
	return buf.String(), locs, errs
}

// isAssetLink reports anchors that download a file rather than open a page.
func isAssetLink(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	base := path.Base(u.Path)
	switch strings.ToLower(path.Ext(base)) {
	case "", ".html", ".htm":
		return false
	}
	return content.Classify(base, nil) == content.KindAsset
}
