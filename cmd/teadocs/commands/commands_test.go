package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

func newGlobal(t *testing.T) (*Global, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	g := &Global{Stdout: &stdout, Stderr: &stderr}
	(&CLI{}).setupLogging(g, config.LoggingConfig{})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil))) })
	return g, &stdout, &stderr
}

func TestInit_WritesStarter(t *testing.T) {
	g, stdout, _ := newGlobal(t)
	dir := filepath.Join(t.TempDir(), "docs")

	require.NoError(t, (&InitCmd{Dir: dir}).Run(g, &CLI{}))
	require.FileExists(t, filepath.Join(dir, "teadocs.yaml"))
	require.Contains(t, stdout.String(), "initialized successfully")

	err := (&InitCmd{Dir: dir}).Run(g, &CLI{})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryValidation))
	require.Contains(t, stdout.String(), "Initialization failed")

	require.NoError(t, (&InitCmd{Dir: dir, Force: true}).Run(g, &CLI{}))
}

func TestBuild_StarterSite(t *testing.T) {
	g, _, stderr := newGlobal(t)
	dir := t.TempDir()
	require.NoError(t, RunInit(g, dir, false))

	out := filepath.Join(t.TempDir(), "site")
	reportPath := filepath.Join(t.TempDir(), "report.json")
	cmd := &BuildCmd{Dir: dir, Dest: out, Report: reportPath}
	require.NoError(t, cmd.run(t.Context(), g, &CLI{}))

	require.FileExists(t, filepath.Join(out, "index.html"))
	require.Contains(t, stderr.String(), "outcome=success")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(data, &report))
	require.NotEmpty(t, report)
}

func TestBuild_ContentErrorExitCode(t *testing.T) {
	g, _, _ := newGlobal(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide.md"), []byte("# Guide\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "guide"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guide", "index.md"), []byte("# Index\n"), 0o644))

	err := (&BuildCmd{Dir: dir, Dest: filepath.Join(t.TempDir(), "site")}).run(t.Context(), g, &CLI{})
	require.Error(t, err)
	require.Equal(t, 3, errors.NewCLIErrorAdapter(false, g.Logger).ExitCodeFor(err))
}

func TestBuild_CompileErrorIsWarning(t *testing.T) {
	g, _, stderr := newGlobal(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.md"), []byte("# Home\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.md"), []byte("{{ page.missing }}\n"), 0o644))

	out := filepath.Join(t.TempDir(), "site")
	err := (&BuildCmd{Dir: dir, Dest: out}).run(t.Context(), g, &CLI{})
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(out, "index.html"))
	require.NoFileExists(t, filepath.Join(out, "bad", "index.html"))
	require.Contains(t, stderr.String(), "outcome=warning")
	require.Contains(t, stderr.String(), "bad.md")
}

func TestBuild_ExplicitConfigMissing(t *testing.T) {
	g, _, _ := newGlobal(t)
	dir := t.TempDir()

	root := &CLI{Config: filepath.Join(dir, "nope.yaml")}
	err := (&BuildCmd{Dir: dir}).run(t.Context(), g, root)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestDev_BindFailure(t *testing.T) {
	g, _, _ := newGlobal(t)
	dir := t.TempDir()
	require.NoError(t, RunInit(g, dir, false))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	err = (&DevCmd{Dir: dir, Host: "127.0.0.1", Port: port}).run(t.Context(), g, &CLI{})
	require.Error(t, err)
	require.Equal(t, 6, errors.NewCLIErrorAdapter(false, g.Logger).ExitCodeFor(err))
}

func TestSetupLogging(t *testing.T) {
	g, _, stderr := newGlobal(t)

	c := &CLI{LogFormat: "json"}
	logger := c.setupLogging(g, config.LoggingConfig{Level: config.LogLevelError, Format: config.LogFormatText})
	logger.Info("hidden")
	logger.Error("shown")
	require.NotContains(t, stderr.String(), "hidden")
	require.Contains(t, stderr.String(), `"msg":"shown"`)

	stderr.Reset()
	c = &CLI{Verbose: true}
	logger = c.setupLogging(g, config.LoggingConfig{Level: config.LogLevelError})
	logger.Debug("details")
	require.Contains(t, stderr.String(), "msg=details")
}

func TestResolveOutputDir(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	cfg := config.Default(t.TempDir())

	got, err := ResolveOutputDir("", cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(wd, config.DefaultOutputDir), got)

	cfg.Output.Dir = "public"
	got, err = ResolveOutputDir("", cfg)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(wd, "public"), got)

	abs := filepath.Join(t.TempDir(), "dest")
	got, err = ResolveOutputDir(abs, cfg)
	require.NoError(t, err)
	require.Equal(t, abs, got)
}
