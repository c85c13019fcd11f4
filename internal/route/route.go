// Package route derives canonical page routes from source paths.
//
// Derivation is a fixed, ordered table of rules applied to a slash separated
// path relative to the content root. Each rule is a pure string transform so
// the table can be tested rule by rule and explained for diagnostics.
package route

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/config"
)

// Route is a canonical page route: lowercase, slash separated, no leading or
// trailing slash. The root page has the empty route.
type Route string

// Root is the route of the site's top-level index page.
const Root Route = ""

// ContentExtensions are the file extensions treated as pages.
var ContentExtensions = []string{".md", ".markdown", ".mdown", ".mkd"}

// ErrOutsideRoot is returned for absolute paths or paths escaping the root.
var ErrOutsideRoot = errors.New("path is outside the content root")

// Rule is one step of route derivation.
type Rule struct {
	Name  string
	Apply func(string) string
}

// Rules is the derivation table, applied in order.
var Rules = []Rule{
	{Name: "strip-extension", Apply: stripExtension},
	{Name: "index", Apply: collapseIndex},
	{Name: "lowercase", Apply: strings.ToLower},
	{Name: "slug", Apply: slugPath},
}

// Step records the result of one rule for Explain.
type Step struct {
	Rule   string
	Result string
}

// FromSource derives the route for a content file path relative to the
// content root.
func FromSource(rel string) (Route, error) {
	steps, err := Explain(rel)
	if err != nil {
		return "", err
	}
	return Route(steps[len(steps)-1].Result), nil
}

// MustFromSource is FromSource for paths known to be clean.
func MustFromSource(rel string) Route {
	r, err := FromSource(rel)
	if err != nil {
		panic(err)
	}
	return r
}

// Explain returns the intermediate result of every rule, starting with the
// cleaned input.
func Explain(rel string) ([]Step, error) {
	cleaned, err := clean(rel)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(Rules)+1)
	steps = append(steps, Step{Rule: "clean", Result: cleaned})
	cur := cleaned
	for _, r := range Rules {
		cur = r.Apply(cur)
		steps = append(steps, Step{Rule: r.Name, Result: cur})
	}
	return steps, nil
}

func clean(rel string) (string, error) {
	p := strings.ReplaceAll(rel, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	p = path.Clean(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return p, nil
}

// IsContentFile reports whether name has a content extension.
func IsContentFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range ContentExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func stripExtension(p string) string {
	if IsContentFile(p) {
		return strings.TrimSuffix(p, path.Ext(p))
	}
	return p
}

func collapseIndex(p string) string {
	dir, base := path.Split(p)
	switch strings.ToLower(base) {
	case "index", "readme", "_index":
		return strings.TrimSuffix(dir, "/")
	}
	return p
}

func slugPath(p string) string {
	if p == "" || p == "." {
		return ""
	}
	segs := strings.Split(p, "/")
	out := segs[:0]
	for _, s := range segs {
		if s = Slug(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "/")
}

// Slug turns one path segment into its URL form: whitespace and underscores
// become dashes, characters outside [a-z0-9._-] are dropped and dash runs
// collapse.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
			lastDash = false
		case r == '-' || r == '_' || r == ' ' || r == '\t':
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Parent returns the enclosing route, or Root.
func (r Route) Parent() Route {
	i := strings.LastIndexByte(string(r), '/')
	if i < 0 {
		return Root
	}
	return r[:i]
}

// Segments returns the route split on slashes; the root has none.
func (r Route) Segments() []string {
	if r == Root {
		return nil
	}
	return strings.Split(string(r), "/")
}

// Depth is the number of segments.
func (r Route) Depth() int { return len(r.Segments()) }

// OutputPath is the file the page is written to, relative to the output dir.
func (r Route) OutputPath(style config.OutputStyle) string {
	if r == Root {
		return "index.html"
	}
	if style == config.StyleFile {
		return string(r) + ".html"
	}
	return string(r) + "/index.html"
}

// URL is the link to the page under base (which ends in a slash).
func (r Route) URL(base string, style config.OutputStyle) string {
	if base == "" {
		base = "/"
	}
	if r == Root {
		return base
	}
	if style == config.StyleFile {
		return base + string(r) + ".html"
	}
	return base + string(r) + "/"
}

// FromURLPath maps a request path, already stripped of the base path, to
// the route it would name under either output style. Callers check that the
// route exists.
func FromURLPath(p string) Route {
	p = strings.Trim(p, "/")
	switch {
	case p == "" || p == "index.html":
		return Root
	case strings.HasSuffix(p, "/index.html"):
		return Route(strings.TrimSuffix(p, "/index.html"))
	case strings.HasSuffix(p, ".html"):
		return Route(strings.TrimSuffix(p, ".html"))
	}
	return Route(p)
}

// IsExternal reports references that point outside the site: URLs with a
// scheme or host, protocol-relative URLs and pure fragments.
func IsExternal(ref string) bool {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return true
	}
	if i := strings.IndexAny(ref, ":/?#"); i > 0 && ref[i] == ':' {
		return true
	}
	return false
}
