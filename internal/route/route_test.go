package route

import (
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/config"
)

func TestFromSource(t *testing.T) {
	cases := []struct {
		in   string
		want Route
	}{
		{"index.md", Root},
		{"README.md", Root},
		{"guide/intro.md", "guide/intro"},
		{"guide/index.md", "guide"},
		{"guide/README.markdown", "guide"},
		{"Guide/Getting Started.md", "guide/getting-started"},
		{"api/auth_tokens.md", "api/auth-tokens"},
		{"./guide/../guide/setup.md", "guide/setup"},
		{`guide\windows.md`, "guide/windows"},
		{"notes/v1.2.md", "notes/v1.2"},
		{"faq (old).md", "faq-old"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := FromSource(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestFromSource_RejectsOutsideRoot(t *testing.T) {
	for _, in := range []string{"", "/etc/passwd.md", "../x.md", "a/../../x.md", "C:/x.md"} {
		_, err := FromSource(in)
		require.ErrorIs(t, err, ErrOutsideRoot, in)
	}
}

func TestRulesIndividually(t *testing.T) {
	require.Equal(t, "guide/intro", stripExtension("guide/intro.md"))
	require.Equal(t, "guide/logo.png", stripExtension("guide/logo.png"))
	require.Equal(t, "guide", collapseIndex("guide/Index"))
	require.Equal(t, "", collapseIndex("readme"))
	require.Equal(t, "guide/indexes", collapseIndex("guide/indexes"))
	require.Equal(t, "a-b/c", slugPath("a__b/c"))
	require.Equal(t, "", Slug("!!!"))
}

func TestExplain(t *testing.T) {
	steps, err := Explain("Guide/README.md")
	require.NoError(t, err)
	require.Len(t, steps, len(Rules)+1)
	require.Equal(t, "clean", steps[0].Rule)
	require.Equal(t, "Guide/README", steps[1].Result)
	require.Equal(t, "Guide", steps[2].Result)
	require.Equal(t, "guide", steps[len(steps)-1].Result)
}

func TestOutputPathAndURL(t *testing.T) {
	r := Route("guide/intro")
	require.Equal(t, "guide/intro/index.html", r.OutputPath(config.StyleDirectory))
	require.Equal(t, "guide/intro.html", r.OutputPath(config.StyleFile))
	require.Equal(t, "index.html", Root.OutputPath(config.StyleFile))

	require.Equal(t, "/docs/guide/intro/", r.URL("/docs/", config.StyleDirectory))
	require.Equal(t, "/guide/intro.html", r.URL("/", config.StyleFile))
	require.Equal(t, "/docs/", Root.URL("/docs/", config.StyleDirectory))
}

func TestRouteHelpers(t *testing.T) {
	r := Route("guide/intro")
	require.Equal(t, Route("guide"), r.Parent())
	require.Equal(t, Root, Route("guide").Parent())
	require.Equal(t, 2, r.Depth())
	require.Empty(t, Root.Segments())
}

func TestFromURLPath(t *testing.T) {
	cases := map[string]Route{
		"/":                       Root,
		"/index.html":             Root,
		"/guide/intro/":           "guide/intro",
		"/guide/intro/index.html": "guide/intro",
		"/guide/intro.html":       "guide/intro",
		"/guide/intro":            "guide/intro",
	}
	for in, want := range cases {
		require.Equal(t, want, FromURLPath(in), in)
	}
}

func TestIsExternal(t *testing.T) {
	for ref, want := range map[string]bool{
		"https://example.com/x.png": true,
		"mailto:a@b.c":              true,
		"data:image/png;base64,AA":  true,
		"//cdn.example.com/a.js":    true,
		"#section":                  true,
		"":                          true,
		"img/logo.png":              false,
		"/img/logo.png":             false,
		"../setup.md#auth":          false,
		"a/b:c.png":                 false,
	} {
		require.Equal(t, want, IsExternal(ref), ref)
	}
}
