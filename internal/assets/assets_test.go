package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

func setup(t *testing.T, files map[string]string) (string, *config.Config) {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	cfg := config.Default(root)
	cfg.Assets.Dirs = []string{"static"}
	return root, cfg
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func TestResolve_LookupOrder(t *testing.T) {
	root, cfg := setup(t, map[string]string{
		"guide/img/a.png":  "A",
		"img/b.png":        "B",
		"static/css/s.css": "body{}",
		"static/img/b.png": "shadowed",
	})
	p := New(root, cfg)

	loc, err := p.Resolve("img/a.png", "guide/intro.md")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "guide", "img", "a.png"), loc.Source)
	require.Equal(t, "guide/img/a.png", loc.Output)
	require.Equal(t, "/guide/img/a.png", loc.URL)

	loc, err = p.Resolve("/img/b.png", "guide/intro.md")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "img", "b.png"), loc.Source)

	loc, err = p.Resolve("/css/s.css?v=1#x", "index.md")
	require.NoError(t, err)
	require.Equal(t, "css/s.css", loc.Output)
	require.Equal(t, "/css/s.css?v=1#x", loc.URL)

	loc, err = p.Resolve("https://example.com/x.png", "index.md")
	require.NoError(t, err)
	require.True(t, loc.External())
}

func TestResolve_MissingAndEscaping(t *testing.T) {
	root, cfg := setup(t, nil)
	p := New(root, cfg)

	_, err := p.Resolve("img/missing.png", "guide/intro.md")
	require.ErrorIs(t, err, ErrMissing)
	ce, ok := errors.AsClassified(err)
	require.True(t, ok)
	require.Equal(t, errors.CategoryAsset, ce.Category())
	require.Equal(t, "guide/intro.md", ce.Path())

	_, err = p.Resolve("../../etc/passwd", "guide/intro.md")
	require.True(t, errors.HasCategory(err, errors.CategoryAsset))
}

func TestFingerprint(t *testing.T) {
	root, cfg := setup(t, map[string]string{"img/logo.png": "logo-bytes", "static/.hidden": "x"})
	cfg.Assets.Fingerprint = true
	cfg.BaseURL = "/docs/"
	p := New(root, cfg)

	loc, err := p.Resolve("/img/logo.png", "index.md")
	require.NoError(t, err)
	want := "img/logo." + shortHash("logo-bytes") + ".png"
	require.Equal(t, want, loc.Output)
	require.Equal(t, "/docs/"+want, loc.URL)

	again, err := New(root, cfg).Resolve("img/logo.png", "index.md")
	require.NoError(t, err)
	require.Equal(t, loc.Output, again.Output)

	require.Equal(t, "LICENSE.abcd1234", Fingerprinted("LICENSE", "abcd1234"))
}

func TestMinifyCSS(t *testing.T) {
	in := "/* header */\nbody {\n  color : red ;\n  font-family: \"Open  Sans\", serif;\n}\n\na:hover > b { margin: calc(1px + 2px) }\n@media (max-width: 10px) and (min-width: 1px) { p { x: y; } }\n"
	require.Equal(t,
		`body{color:red;font-family:"Open  Sans",serif}a:hover>b{margin:calc(1px + 2px)}@media (max-width:10px) and (min-width:1px){p{x:y}}`,
		string(MinifyCSS([]byte(in))))
}

func TestOpenAndEmit(t *testing.T) {
	root, cfg := setup(t, map[string]string{"static/site.css": "a { b: c; }", "img/x.png": "\x89PNG"})
	cfg.Assets.Minify = true
	p := New(root, cfg)
	out := t.TempDir()

	css, err := p.Resolve("/site.css", "index.md")
	require.NoError(t, err)
	require.NoError(t, p.Emit(css, out))
	data, err := os.ReadFile(filepath.Join(out, "site.css"))
	require.NoError(t, err)
	require.Equal(t, "a{b:c}", string(data))

	png, err := p.Resolve("img/x.png", "index.md")
	require.NoError(t, err)
	data, err = p.Open(png)
	require.NoError(t, err)
	require.Equal(t, "\x89PNG", string(data))
}

func TestRewrite(t *testing.T) {
	root, cfg := setup(t, map[string]string{"guide/img/a.png": "A", "files/manual.pdf": "%PDF"})
	p := New(root, cfg)

	html := `<p><img src="img/a.png" alt="a"> <img src="img/missing.png"> <img src="img/missing.png">` +
		` <a href="/docs/guide/setup/">page</a> <a href="../files/manual.pdf">pdf</a> <a href="https://x.y/z.png">ext</a></p>`
	out, locs, errs := p.Rewrite(html, "guide/intro.md")

	require.Contains(t, out, `<img src="/guide/img/a.png" alt="a"/>`)
	require.Contains(t, out, `<img src="img/missing.png"/>`)
	require.Contains(t, out, `<a href="/docs/guide/setup/">page</a>`)
	require.Contains(t, out, `<a href="/files/manual.pdf">pdf</a>`)
	require.Contains(t, out, `<a href="https://x.y/z.png">ext</a>`)
	require.Len(t, locs, 2)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrMissing)

	plain := "<p>no refs</p>"
	out, locs, errs = p.Rewrite(plain, "a.md")
	require.Equal(t, plain, out)
	require.Empty(t, locs)
	require.Empty(t, errs)
}

func TestCatalogAndHeadAssets(t *testing.T) {
	root, cfg := setup(t, map[string]string{
		"static/css/site.css": "x",
		"static/js/app.js":    "y",
		"img/a.png":           "a",
		"docs.md":             "# d",
	})
	cfg.Assets.Stylesheets = []string{"css/site.css", "https://cdn.example.com/x.css"}
	cfg.Assets.Scripts = []string{"/js/missing.js"}
	p := New(root, cfg)

	m, err := content.Scan(t.Context(), root, cfg, content.Options{})
	require.NoError(t, err)
	locs, err := p.Catalog(m.Assets())
	require.NoError(t, err)
	var outputs []string
	for _, l := range locs {
		outputs = append(outputs, l.Output)
	}
	require.Equal(t, []string{"css/site.css", "img/a.png", "js/app.js"}, outputs)

	styles, scripts, err := p.HeadAssets()
	require.Error(t, err)
	require.Len(t, styles, 2)
	require.Equal(t, "/css/site.css", styles[0].URL)
	require.True(t, styles[1].External())
	require.Empty(t, scripts)
}
