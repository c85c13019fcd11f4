package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field names shared by every package.
const (
	KeyPath       = "path"
	KeyRoute      = "route"
	KeyOutput     = "output"
	KeyRoot       = "root"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyBuildID    = "build_id"
	KeyPages      = "pages"
	KeyAssets     = "assets"
	KeyChange     = "change"
	KeyTheme      = "theme"
	KeyAddr       = "addr"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyClients    = "clients"
	KeyCategory   = "category"
	KeyError      = "error"
)

func Path(p string) slog.Attr     { return slog.String(KeyPath, p) }
func Route(r string) slog.Attr    { return slog.String(KeyRoute, r) }
func Output(o string) slog.Attr   { return slog.String(KeyOutput, o) }
func Root(r string) slog.Attr     { return slog.String(KeyRoot, r) }
func Stage(name string) slog.Attr { return slog.String(KeyStage, name) }
func BuildID(id string) slog.Attr { return slog.String(KeyBuildID, id) }
func Pages(n int) slog.Attr       { return slog.Int(KeyPages, n) }
func Assets(n int) slog.Attr      { return slog.Int(KeyAssets, n) }
func Change(kind string) slog.Attr {
	return slog.String(KeyChange, kind)
}
func Theme(name string) slog.Attr { return slog.String(KeyTheme, name) }
func Addr(a string) slog.Attr     { return slog.String(KeyAddr, a) }
func Method(m string) slog.Attr   { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr   { return slog.Int(KeyStatus, code) }
func Clients(n int) slog.Attr     { return slog.Int(KeyClients, n) }

// Duration reports d in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Microseconds())/1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
