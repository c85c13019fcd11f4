package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"validation", ValidationError("bad flag").Build(), 2},
		{"content", ContentError("a.md", "dup").Build(), 3},
		{"compile", CompileError("a.md", "bad").Build(), 4},
		{"asset", AssetError("a.md", "missing").Build(), 5},
		{"io", IOError("bind failed").Build(), 6},
		{"config", ConfigError("bad theme").Build(), 7},
		{"joined uses first classified", stderrors.Join(stderrors.New("x"), ContentError("a.md", "dup").Build()), 3},
		{"joined prefers fatal", stderrors.Join(CompileError("a.md", "undefined").Build(), IOError("disk full").Build()), 6},
		{"joined without fatal", stderrors.Join(CompileError("a.md", "undefined").Build(), AssetError("b.md", "missing").Build()), 4},
		{"unclassified", stderrors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Fatalf("ExitCodeFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())
	err := stderrors.Join(
		ContentError("guide/a.md", "unterminated front-matter block").Build(),
		ContentError("guide/b.md", "duplicate route").Build(),
	)
	out := adapter.FormatError(err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "Error (content): guide/a.md: unterminated front-matter block", lines[0])
	require.Contains(t, lines[1], "guide/b.md")
}

func TestCLIErrorAdapter_Report(t *testing.T) {
	adapter := NewCLIErrorAdapter(true, slog.Default())
	var buf bytes.Buffer
	code := adapter.Report(&buf, IOError("cannot write output").Build())
	require.Equal(t, 6, code)
	require.Contains(t, buf.String(), "[io] cannot write output")
}

func TestHTTPErrorAdapter(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	require.Equal(t, http.StatusNotFound, adapter.StatusCodeFor(NotFoundError("no page").Build()))
	require.Equal(t, http.StatusUnprocessableEntity, adapter.StatusCodeFor(CompileError("a.md", "x").Build()))
	require.Equal(t, http.StatusInternalServerError, adapter.StatusCodeFor(stderrors.New("x")))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing/", nil)
	adapter.WriteErrorResponse(rec, req, NotFoundError("page not found").WithContext(KeyRoute, "missing").Build())

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var payload HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "page not found", payload.Error)
	require.Equal(t, "not_found", payload.Code)
	require.Equal(t, "missing", payload.Details[KeyRoute])
}
