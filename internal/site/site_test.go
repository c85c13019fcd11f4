package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/compiler"
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/render"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

type fixture struct {
	cfg   *config.Config
	model *content.Model
	comp  *compiler.Compiler
	asm   *Assembler
}

func newFixture(t *testing.T, theme config.Theme) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, body := range map[string]string{
		"index.md":       "# Home\n",
		"guide/intro.md": "---\norder: 1\n---\n# Intro\n\n## Install\n\n### Deps\n\n#### Deep\n",
		"guide/setup.md": "---\norder: 2\n---\n# Setup\n",
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	cfg := config.Default(root)
	cfg.Title = "Docs"
	cfg.Theme = theme
	m, err := content.Scan(t.Context(), root, cfg, content.Options{})
	require.NoError(t, err)
	r, err := render.Select(cfg)
	require.NoError(t, err)
	return &fixture{cfg: cfg, model: m, comp: compiler.New(compiler.Options{}), asm: New(r, Head{Stylesheets: []string{"/site.css"}})}
}

func (f *fixture) assemble(t *testing.T, r route.Route, opts Options) *Artifact {
	t.Helper()
	page, ok := f.model.Page(r)
	require.True(t, ok)
	body, err := f.comp.Compile(t.Context(), compiler.FromPage(page), f.cfg)
	require.NoError(t, err)
	art, err := f.asm.Assemble(page, body, f.model.Tree(), f.cfg, opts)
	require.NoError(t, err)
	return art
}

func TestAssemble(t *testing.T) {
	f := newFixture(t, config.ThemeDefault)
	art := f.assemble(t, "guide/intro", Options{})

	require.Equal(t, "guide/intro/index.html", art.OutputPath)
	require.Equal(t, "/guide/intro/", art.URL)
	require.Equal(t, 200, art.Status)
	html := string(art.HTML)
	require.Contains(t, html, `<a href="/guide/intro/" aria-current="page">Intro</a>`)
	require.Contains(t, html, `rel="prev" href="/"`)
	require.Contains(t, html, `rel="next" href="/guide/setup/"`)
	require.Contains(t, html, `<a href="#install">Install</a>`)
	require.Contains(t, html, `<a href="#deps">Deps</a>`)
	require.NotContains(t, html, `<a href="#deep">`)
	require.Contains(t, html, `<link rel="stylesheet" href="/site.css">`)
	require.NotContains(t, html, LiveReloadScript)
	require.Len(t, art.Hash, 64)

	again := f.assemble(t, "guide/intro", Options{})
	require.Equal(t, art.HTML, again.HTML)
}

func TestAssemble_Options(t *testing.T) {
	f := newFixture(t, config.ThemeMinimal)
	rewritten := "<p>rewritten</p>"
	art := f.assemble(t, "guide/setup", Options{
		LiveReload: true,
		Warnings:   []string{"missing asset img/x.png"},
		Content:    &rewritten,
		Assets:     []string{"img/a.png"},
	})
	html := string(art.HTML)
	require.Contains(t, html, `<script src="/__teadocs/livereload.js" data-route="guide/setup" defer></script>`)
	require.Contains(t, html, "missing asset img/x.png")
	require.Contains(t, html, "<p>rewritten</p>")
	require.Equal(t, []string{"img/a.png"}, art.Assets)
}

func TestAssemble_FileStyle(t *testing.T) {
	f := newFixture(t, config.ThemeDefault)
	f.cfg.Output.Style = config.StyleFile
	art := f.assemble(t, "guide/setup", Options{})
	require.Equal(t, "guide/setup.html", art.OutputPath)
	require.Contains(t, string(art.HTML), `href="/guide/intro.html"`)

	home := f.assemble(t, route.Root, Options{})
	require.Equal(t, "index.html", home.OutputPath)
}

func TestNavView(t *testing.T) {
	f := newFixture(t, config.ThemeDefault)
	nav := NavView(f.model.Tree(), "guide/setup", f.cfg)
	require.Len(t, nav, 2)
	require.Equal(t, "Home", nav[0].Title)
	require.False(t, nav[0].Active)
	require.Equal(t, "Guide", nav[1].Title)
	require.True(t, nav[1].Open)
	require.Empty(t, nav[1].URL)
	require.True(t, nav[1].Children[1].Active)

	other := NavView(f.model.Tree(), "guide/intro", f.cfg)
	require.Equal(t, len(nav[1].Children), len(other[1].Children))
	require.Equal(t, nav[1].Children[0].URL, other[1].Children[0].URL)

	crumbs := Breadcrumbs(f.model.Tree(), "guide/setup", f.cfg)
	require.Equal(t, []render.Link{{Title: "Guide"}, {Title: "Setup", URL: "/guide/setup/"}}, crumbs)
}

func TestNotFoundAndFailure(t *testing.T) {
	f := newFixture(t, config.ThemeDefault)
	nf, err := f.asm.NotFound(f.model.Tree(), f.cfg, Options{})
	require.NoError(t, err)
	require.Equal(t, 404, nf.Status)
	require.Equal(t, NotFoundOutput, nf.OutputPath)
	require.Contains(t, string(nf.HTML), "Page not found")

	cause := errors.CompileError("guide/intro.md", "undefined variable <x>").WithLine(3).Build()
	fail, err := f.asm.Failure("guide/intro", "Intro", cause, f.model.Tree(), f.cfg, Options{LiveReload: true})
	require.NoError(t, err)
	require.Equal(t, 500, fail.Status)
	require.Contains(t, string(fail.HTML), "guide/intro.md:3: undefined variable &lt;x&gt;")
	require.Contains(t, string(fail.HTML), LiveReloadScript)
}
