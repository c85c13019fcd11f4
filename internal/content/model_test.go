package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

func scan(t *testing.T, root string, cfg *config.Config) *Model {
	t.Helper()
	m, err := Scan(t.Context(), root, cfg, Options{})
	require.NoError(t, err)
	return m
}

func routes(pages []*Page) []route.Route {
	out := make([]route.Route, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Route)
	}
	return out
}

func TestScan_OrdersSiblingsByOrderThenPath(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.md":          "# Welcome\n",
		"guide/setup.md":    "---\norder: 2\n---\n# Setup\n",
		"guide/intro.md":    "---\norder: 1\n---\n# Intro\n",
		"guide/zebra.md":    "# Zebra\n",
		"guide/appendix.md": "# Appendix\n",
		"api/index.md":      "---\ntitle: API\norder: 5\n---\n",
		"img/logo.png":      "png",
	})
	m := scan(t, root, config.Default(root))

	guide := m.Tree().Root.Children[1]
	require.Equal(t, route.Route("guide"), guide.Route)
	require.Equal(t, "Guide", guide.Title)
	require.Nil(t, guide.Page)
	require.Equal(t, []route.Route{"guide/intro", "guide/setup", "guide/appendix", "guide/zebra"},
		[]route.Route{guide.Children[0].Route, guide.Children[1].Route, guide.Children[2].Route, guide.Children[3].Route})

	// "api" has an explicit order so it sorts before the unordered "guide" group.
	require.Equal(t, route.Route("api"), m.Tree().Root.Children[0].Route)
	require.Equal(t, "API", m.Tree().Root.Children[0].Title)

	require.Equal(t,
		[]route.Route{"", "api", "guide/intro", "guide/setup", "guide/appendix", "guide/zebra"},
		routes(m.Tree().Pages()))

	prev, next := m.Tree().PrevNext("guide/setup")
	require.Equal(t, route.Route("guide/intro"), prev.Route)
	require.Equal(t, route.Route("guide/appendix"), next.Route)

	require.Len(t, m.Assets(), 1)
	require.Equal(t, "img/logo.png", m.Assets()[0].Rel)
}

func TestScan_RouteCollisionIsContentError(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"guide/index.md":  "# Guide\n",
		"guide/README.md": "# Readme\n",
		"other.md":        "# Other\n",
	})
	m, err := Scan(t.Context(), root, config.Default(root), Options{})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryContent))
	require.ErrorContains(t, err, "duplicate route")

	require.NotNil(t, m)
	require.True(t, m.HasRoute("other"))
	require.True(t, m.HasRoute("guide"))
}

func TestScan_UnterminatedFrontMatterReportedAndOthersScanned(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":       "---\ntitle: Broken\n# no closing delimiter\n",
		"b.md":       "# Fine\n",
		"c/d.md":     "---\norder: nope\n---\n",
		"c/index.md": "# C\n",
	})
	m, err := Scan(t.Context(), root, config.Default(root), Options{})
	require.Error(t, err)

	errs := errors.Flatten(err)
	require.Len(t, errs, 2)
	var paths []string
	for _, e := range errs {
		ce, ok := errors.AsClassified(e)
		require.True(t, ok)
		require.Equal(t, errors.CategoryContent, ce.Category())
		paths = append(paths, ce.Path())
	}
	require.ElementsMatch(t, []string{"a.md", "c/d.md"}, paths)
	require.ErrorContains(t, err, "unterminated front-matter block")

	require.True(t, m.HasRoute("b"))
	require.True(t, m.HasRoute("c"))
	require.False(t, m.HasRoute("a"))
}

func TestScan_UnreadableRootIsIOError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	_, err := Scan(t.Context(), missing, config.Default(missing), Options{})
	require.True(t, errors.HasCategory(err, errors.CategoryIO))
}

func TestScan_SkipsIgnoredAndExcluded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"doc.md":              "# Doc\n",
		".hidden/x.md":        "# x\n",
		"notes.md~":           "backup",
		"node_modules/p/r.md": "# r\n",
		"drafts/wip.md":       "# wip\n",
		"build/index.html":    "<html>",
		"teadocs.yaml":        "title: T\n",
	})
	cfg := config.Default(root)
	cfg.Ignore = []string{"drafts"}
	m, err := Scan(t.Context(), root, cfg, Options{Exclude: []string{filepath.Join(root, "build")}})
	require.NoError(t, err)

	require.Equal(t, []route.Route{"doc"}, routes(m.Pages()))
	require.Empty(t, m.Assets())
	src, ok := m.Source("teadocs.yaml")
	require.True(t, ok)
	require.Equal(t, KindConfig, src.Kind)
}

func TestScan_Drafts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"live.md":  "# Live\n",
		"draft.md": "---\ndraft: true\n---\n# Draft\n",
	})
	m := scan(t, root, config.Default(root))
	require.False(t, m.HasRoute("draft"))

	cfg := config.Default(root)
	cfg.Drafts = true
	m = scan(t, root, cfg)
	require.True(t, m.HasRoute("draft"))
}

func TestUpdate_ModifiedBodyRecompilesOnlyThatPage(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"guide/intro.md": "---\norder: 1\n---\n# Intro\n\nv1\n",
		"guide/setup.md": "---\norder: 2\n---\n# Setup\n",
	})
	m := scan(t, root, config.Default(root))
	before, _ := m.Page("guide/setup")
	oldTree := m.Tree()

	writeTree(t, root, map[string]string{"guide/intro.md": "---\norder: 1\n---\n# Intro\n\nv2\n"})
	res, err := m.Update(filepath.Join(root, "guide", "intro.md"), Modified)
	require.NoError(t, err)
	require.Equal(t, []route.Route{"guide/intro"}, res.Compiled)
	require.False(t, res.NavChanged)

	after, _ := m.Page("guide/setup")
	require.Same(t, before, after)
	require.NotSame(t, oldTree, m.Tree())
}

func TestUpdate_UnchangedContentAffectsNothing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "# A\n"})
	m := scan(t, root, config.Default(root))

	writeTree(t, root, map[string]string{"a.md": "# A\n"})
	res, err := m.Update("a.md", Modified)
	require.NoError(t, err)
	require.True(t, res.Empty())
}

func TestUpdate_TitleChangeChangesNav(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "# A\n"})
	m := scan(t, root, config.Default(root))

	writeTree(t, root, map[string]string{"a.md": "# Renamed\n"})
	res, err := m.Update("a.md", Modified)
	require.NoError(t, err)
	require.True(t, res.NavChanged)
	require.Equal(t, "Renamed", m.Tree().Root.Children[0].Title)
}

func TestUpdate_AddRemoveAndAssets(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "# A\n"})
	m := scan(t, root, config.Default(root))

	writeTree(t, root, map[string]string{"sub/b.md": "# B\n", "sub/pic.png": "png"})
	res, err := m.Update(filepath.Join(root, "sub"), Added)
	require.NoError(t, err)
	require.Equal(t, []route.Route{"sub/b"}, res.Compiled)
	require.Equal(t, []string{"sub/pic.png"}, res.Assets)
	require.True(t, res.NavChanged)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "sub")))
	res, err = m.Update(filepath.Join(root, "sub"), Removed)
	require.NoError(t, err)
	require.Equal(t, []route.Route{"sub/b"}, res.Removed)
	require.Equal(t, []string{"sub/pic.png"}, res.Assets)
	require.False(t, m.HasRoute("sub/b"))
}

func TestUpdate_InvalidContentLeavesModelUntouched(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "---\ntitle: Good\n---\nbody\n"})
	m := scan(t, root, config.Default(root))
	good, _ := m.Page("a")

	writeTree(t, root, map[string]string{"a.md": "---\ntitle: Bad\nbody\n"})
	_, err := m.Update("a.md", Modified)
	require.True(t, errors.HasCategory(err, errors.CategoryContent))

	still, ok := m.Page("a")
	require.True(t, ok)
	require.Same(t, good, still)
}

func TestUpdate_CollisionRejected(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"guide/index.md": "# Guide\n"})
	m := scan(t, root, config.Default(root))

	writeTree(t, root, map[string]string{"guide/README.md": "# Readme\n"})
	_, err := m.Update("guide/README.md", Added)
	require.ErrorContains(t, err, "duplicate route")
	p, _ := m.Page("guide")
	require.Equal(t, "guide/index.md", p.Source)
}

func TestUpdate_ConfigFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"teadocs.yaml": "title: A\n", "a.md": "# A\n"})
	m := scan(t, root, config.Default(root))

	writeTree(t, root, map[string]string{"teadocs.yaml": "title: B\n"})
	res, err := m.Update("teadocs.yaml", Modified)
	require.NoError(t, err)
	require.True(t, res.ConfigChanged)
}

func TestNavOverrides(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.md":       "# Home\n",
		"api/index.md":   "# API\n",
		"guide/intro.md": "# Intro\n",
		"faq.md":         "# FAQ\n",
	})
	cfg := config.Default(root)
	cfg.Nav = []config.NavItem{
		{Title: "Start Here", Route: "guide/intro"},
		{Title: "Source", URL: "https://example.com/src"},
		{Route: "missing/page"},
	}
	m := scan(t, root, cfg)

	top := m.Tree().Root.Children
	require.Equal(t, "Start Here", top[0].Title)
	require.Equal(t, route.Route("guide/intro"), top[0].Page.Route)
	require.True(t, top[1].IsExternal())
	// Unmentioned top-level nodes follow in their normal order.
	require.Equal(t, route.Route("api"), top[2].Route)
	require.Equal(t, route.Route("faq"), top[3].Route)
	// The guide group lost its only child to the override.
	require.Equal(t, route.Route("guide"), top[4].Route)
	require.Empty(t, top[4].Children)

	require.Len(t, m.NavWarnings(), 1)
	r, _ := m.NavWarnings()[0].Context().GetString(errors.KeyRoute)
	require.Equal(t, "missing/page", r)
}

func TestTrail(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/b/c.md": "# C\n"})
	m := scan(t, root, config.Default(root))

	trail := m.Tree().Trail("a/b/c")
	require.Len(t, trail, 3)
	require.Equal(t, route.Route("a"), trail[0].Route)
	require.Equal(t, route.Route("a/b/c"), trail[2].Page.Route)
	require.Nil(t, m.Tree().Trail("nope"))
}

func TestDiff(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.md": "# A\n", "b.md": "# B\n"})
	m := scan(t, root, config.Default(root))

	writeTree(t, root, map[string]string{"a.md": "# A2\n", "c.md": "# C\n"})
	require.NoError(t, os.Remove(filepath.Join(root, "b.md")))

	changes, err := m.Diff(t.Context())
	require.NoError(t, err)
	require.Equal(t, []Change{
		{Path: "a.md", Kind: Modified},
		{Path: "b.md", Kind: Removed},
		{Path: "c.md", Kind: Added},
	}, changes)
}

func TestDeriveTitle(t *testing.T) {
	require.Equal(t, "Getting Started", DeriveTitle("getting-started"))
	require.Equal(t, "Api Reference", DeriveTitle("api_reference"))
	require.Equal(t, "", DeriveTitle("--"))
}

func TestPageTitles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"explicit.md":              "---\ntitle: From Meta\n---\n# Heading\n",
		"heading.md":               "```\n# not this\n```\n# Real Heading\n",
		"Getting Started/index.md": "no heading here\n",
	})
	m := scan(t, root, config.Default(root))

	p, _ := m.Page("explicit")
	require.Equal(t, "From Meta", p.Title)
	p, _ = m.Page("heading")
	require.Equal(t, "Real Heading", p.Title)
	p, _ = m.Page("getting-started")
	require.Equal(t, "Getting Started", p.Title)
}
