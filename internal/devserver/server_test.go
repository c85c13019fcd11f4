package devserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

type harness struct {
	root string
	srv  *Server
	http *httptest.Server
}

func writeFile(t *testing.T, root, rel, body string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newHarness(t *testing.T, files map[string]string, tweak func(*config.Config)) *harness {
	t.Helper()
	root := t.TempDir()
	for rel, body := range files {
		writeFile(t, root, rel, body)
	}
	cfg := config.Default(root)
	cfg.Dev.Debounce = 40 * time.Millisecond
	cfg.Dev.MaxDelay = time.Second
	if tweak != nil {
		tweak(cfg)
	}
	s, err := New(t.Context(), cfg, Options{ReloadInterval: time.Millisecond})
	require.NoError(t, err)
	stop := s.start(t.Context())
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hs.Close()
		s.hub.Shutdown()
		stop()
		require.NoError(t, s.Close())
	})
	return &harness{root: root, srv: s, http: hs}
}

func (h *harness) get(t *testing.T, p string) (int, string) {
	t.Helper()
	resp, err := http.Get(h.http.URL + p)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// waitGen waits until a snapshot newer than gen is published and the
// worker is idle again.
func (h *harness) waitGen(t *testing.T, gen uint64) *snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.srv.snap.Load().gen > gen && h.srv.State() != StateRebuilding
	}, 3*time.Second, 5*time.Millisecond)
	return h.srv.snap.Load()
}

var guideFiles = map[string]string{
	"index.md":       "# Home\n",
	"guide/intro.md": "---\ntitle: Intro\norder: 1\n---\nFirst draft.\n",
	"guide/setup.md": "---\ntitle: Setup\norder: 2\n---\nInstall it.\n",
	"img/logo.png":   "png",
}

func TestServer_ColdGenerationAndNotFound(t *testing.T) {
	h := newHarness(t, guideFiles, nil)
	require.Empty(t, h.srv.snap.Load().pages)

	code, body := h.get(t, "/guide/intro/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "First draft.")
	require.Contains(t, body, `src="/__teadocs/livereload.js" data-route="guide/intro"`)
	require.Len(t, h.srv.snap.Load().pages, 1)

	code, body = h.get(t, "/nope/")
	require.Equal(t, http.StatusNotFound, code)
	require.Contains(t, body, "Page not found")

	code, body = h.get(t, "/img/logo.png")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "png", body)

	code, body = h.get(t, "/__teadocs/livereload.js")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "EventSource('/__teadocs/livereload')")

	code, _ = h.get(t, "/__teadocs/healthz")
	require.Equal(t, http.StatusOK, code)
}

func TestServer_SingleChangeRegeneratesOnlyThatPage(t *testing.T) {
	h := newHarness(t, guideFiles, nil)
	h.get(t, "/guide/intro/")
	h.get(t, "/guide/setup/")

	before := h.srv.snap.Load()
	setup := before.pages[route.Route("guide/setup")]
	intro := before.pages[route.Route("guide/intro")]
	compiles := h.srv.comp.Stats().Compiles
	sent := h.srv.hub.Sent()

	p := writeFile(t, h.root, "guide/intro.md", "---\ntitle: Intro\norder: 1\n---\nSecond draft.\n")
	h.srv.OnFileChange(p)
	h.srv.OnFileChange("guide/intro.md")

	after := h.waitGen(t, before.gen)
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, after.gen, h.srv.snap.Load().gen, "one pass for one burst")

	require.Same(t, setup, after.pages[route.Route("guide/setup")])
	require.NotSame(t, intro, after.pages[route.Route("guide/intro")])
	require.Contains(t, string(after.pages[route.Route("guide/intro")].body), "Second draft.")
	require.Equal(t, compiles+1, h.srv.comp.Stats().Compiles)
	require.Equal(t, sent+1, h.srv.hub.Sent())
}

func TestServer_NavigationChangeReassemblesAll(t *testing.T) {
	h := newHarness(t, guideFiles, nil)
	h.get(t, "/guide/intro/")
	h.get(t, "/guide/setup/")
	before := h.srv.snap.Load()
	compiles := h.srv.comp.Stats().Compiles

	p := writeFile(t, h.root, "guide/setup.md", "---\ntitle: Installation\norder: 2\n---\nInstall it.\n")
	h.srv.OnFileChange(p)
	after := h.waitGen(t, before.gen)

	require.Equal(t, compiles+1, h.srv.comp.Stats().Compiles)
	require.NotSame(t, before.pages["guide/intro"], after.pages["guide/intro"])
	require.Contains(t, string(after.pages["guide/intro"].body), "Installation")
}

func TestServer_CompileErrorKeepsLastGood(t *testing.T) {
	h := newHarness(t, guideFiles, nil)
	h.get(t, "/guide/intro/")
	before := h.srv.snap.Load()

	p := writeFile(t, h.root, "guide/intro.md", "---\ntitle: Intro\norder: 1\n---\nBroken {{ page.missing }}\n")
	h.srv.OnFileChange(p)
	h.waitGen(t, before.gen)

	code, body := h.get(t, "/guide/intro/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "First draft.")
	require.Contains(t, body, "td-banner-error")
	require.Contains(t, body, "undefined variable")

	st := h.srv.Status()
	require.Len(t, st.Errors, 1)

	// A page that never compiled gets an error page.
	cold := writeFile(t, h.root, "guide/bad.md", "# Bad\n\n{{ site.nope }}\n")
	gen := h.srv.snap.Load().gen
	h.srv.OnFileChange(cold)
	h.waitGen(t, gen)
	code, body = h.get(t, "/guide/bad/")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Contains(t, body, "This page failed to build")

	// Fixing the source clears the banner.
	gen = h.srv.snap.Load().gen
	writeFile(t, h.root, "guide/intro.md", "---\ntitle: Intro\norder: 1\n---\nFixed.\n")
	h.srv.OnFileChange(p)
	h.waitGen(t, gen)
	_, body = h.get(t, "/guide/intro/")
	require.Contains(t, body, "Fixed.")
	require.NotContains(t, body, "td-banner-error")
}

func TestServer_RemovedPage(t *testing.T) {
	h := newHarness(t, guideFiles, nil)
	code, _ := h.get(t, "/guide/setup/")
	require.Equal(t, http.StatusOK, code)
	gen := h.srv.snap.Load().gen

	require.NoError(t, os.Remove(filepath.Join(h.root, "guide", "setup.md")))
	h.srv.OnFileChange("guide/setup.md")
	h.waitGen(t, gen)

	code, _ = h.get(t, "/guide/setup/")
	require.Equal(t, http.StatusNotFound, code)
}

func TestServer_ContentErrorReported(t *testing.T) {
	h := newHarness(t, guideFiles, nil)
	code, _ := h.get(t, "/guide/intro/")
	require.Equal(t, http.StatusOK, code)
	gen := h.srv.snap.Load().gen

	events := connect(t, h.http.URL+"/__teadocs/livereload")
	require.Eventually(t, func() bool { return h.srv.hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	p := writeFile(t, h.root, "guide/intro.md", "---\ntitle: Intro\n")
	h.srv.OnFileChange(p)
	gen = h.waitGen(t, gen).gen

	ev := nextEvent(t, events)
	require.Equal(t, StatusError, ev.Status)
	require.Equal(t, []string{"guide/intro"}, ev.Routes)

	resp, err := http.Get(h.http.URL + "/__teadocs/status")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	require.Len(t, st.Errors, 1)
	require.Contains(t, st.Errors[0], "guide/intro.md")
	require.Equal(t, 3, st.Pages)

	// The previous version is still served, marked as stale.
	code, body := h.get(t, "/guide/intro/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "First draft.")
	require.Contains(t, body, "td-banner-error")
	require.Contains(t, body, "guide/intro.md")

	writeFile(t, h.root, "guide/intro.md", "---\ntitle: Intro\norder: 1\n---\nSecond draft.\n")
	h.srv.OnFileChange(p)
	h.waitGen(t, gen)

	require.Equal(t, StatusOK, nextEvent(t, events).Status)
	code, body = h.get(t, "/guide/intro/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "Second draft.")
	require.NotContains(t, body, "td-banner-error")
}

func TestServer_QueueOverflowResyncs(t *testing.T) {
	h := newHarness(t, guideFiles, func(c *config.Config) { c.Dev.QueueSize = 1 })
	h.get(t, "/guide/intro/")
	gen := h.srv.snap.Load().gen

	writeFile(t, h.root, "guide/intro.md", "---\ntitle: Intro\norder: 1\n---\nResynced.\n")
	h.srv.overflow.Store(true)
	h.srv.requestResync()
	h.waitGen(t, gen)

	_, body := h.get(t, "/guide/intro/")
	require.Contains(t, body, "Resynced.")
}

func TestServer_ConfigChangeRebuildsAll(t *testing.T) {
	files := map[string]string{
		"teadocs.yaml": "title: First\n",
		"index.md":     "Welcome.\n",
	}
	root := t.TempDir()
	for rel, body := range files {
		writeFile(t, root, rel, body)
	}
	cfg, err := config.Load(root, "")
	require.NoError(t, err)
	cfg.Dev.Debounce = 20 * time.Millisecond
	s, err := New(t.Context(), cfg, Options{ReloadInterval: time.Millisecond})
	require.NoError(t, err)
	stop := s.start(t.Context())
	hs := httptest.NewServer(s.Handler())
	defer func() {
		hs.Close()
		stop()
		_ = s.Close()
	}()
	h := &harness{root: root, srv: s, http: hs}

	_, body := h.get(t, "/")
	require.Contains(t, body, "First")
	gen := s.snap.Load().gen

	p := writeFile(t, root, "teadocs.yaml", "title: Second\n")
	s.OnFileChange(p)
	h.waitGen(t, gen)
	_, body = h.get(t, "/")
	require.Contains(t, body, "Second")
}

func TestServer_ServeAndShutdown(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.md", "# Home\n")
	cfg := config.Default(root)
	cfg.Dev.Debounce = 20 * time.Millisecond
	cfg.Dev.ResyncInterval = time.Hour
	s, err := New(t.Context(), cfg, Options{})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(url + "/__teadocs/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 10*time.Millisecond)

	// The watcher picks up edits on its own.
	gen := s.snap.Load().gen
	writeFile(t, root, "extra.md", "# Extra\n")
	require.Eventually(t, func() bool { return s.snap.Load().gen > gen }, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	_, err = net.DialTimeout("tcp", ln.Addr().String(), 200*time.Millisecond)
	require.Error(t, err)
}

func TestServer_StartBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	port := ln.Addr().(*net.TCPAddr).Port

	root := t.TempDir()
	writeFile(t, root, "index.md", "# Home\n")
	s, err := New(t.Context(), config.Default(root), Options{})
	require.NoError(t, err)

	err = s.Start(t.Context(), "127.0.0.1", port)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryIO))
}

func TestPageRoute(t *testing.T) {
	cases := []struct {
		path, base string
		want       route.Route
		ok         bool
	}{
		{"/", "/", route.Root, true},
		{"/guide/intro/", "/", "guide/intro", true},
		{"/guide/intro.html", "/", "guide/intro", true},
		{"/docs", "/docs/", route.Root, true},
		{"/docs/guide/", "/docs/", "guide", true},
		{"/other/", "/docs/", "", false},
	}
	for _, tc := range cases {
		got, ok := pageRoute(tc.path, tc.base)
		require.Equal(t, tc.ok, ok, tc.path)
		require.Equal(t, tc.want, got, tc.path)
	}
}

func TestExclusions_MatchBuildDestination(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	cfg := config.Default(t.TempDir())
	cfg.Output.Dir = "public"

	out := filepath.Join(wd, "public")
	require.Equal(t, []string{out, out + "_stage", out + ".prev"}, exclusions(cfg))

	abs := filepath.Join(cfg.Root, "site")
	cfg.Output.Dir = abs
	require.Equal(t, []string{abs, abs + "_stage", abs + ".prev"}, exclusions(cfg))
}
