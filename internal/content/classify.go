package content

import (
	"path"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// Kind classifies a file under the content root.
type Kind string

const (
	KindContent Kind = "content"
	KindAsset   Kind = "asset"
	KindConfig  Kind = "config"
	KindIgnored Kind = "ignored"
)

var assetExtensions = map[string]bool{
	// images
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true,
	".webp": true, ".avif": true, ".bmp": true, ".ico": true,
	// documents
	".pdf": true, ".txt": true,
	// media
	".mp4": true, ".webm": true, ".ogv": true, ".mp3": true, ".ogg": true, ".wav": true,
	// data
	".csv": true, ".json": true, ".yaml": true, ".yml": true, ".xml": true,
	// web
	".css": true, ".js": true, ".mjs": true, ".map": true, ".html": true, ".htm": true,
	// fonts
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	// archives
	".zip": true, ".tar": true, ".gz": true,
}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	"node_modules": true,
}

// Classify returns the kind of the file at rel (slash separated, relative to
// the content root).
func Classify(rel string, cfg *config.Config) Kind {
	if IgnoredPath(rel, cfg) {
		return KindIgnored
	}
	if cfg != nil && cfg.IsConfigFile(rel) {
		return KindConfig
	}
	if route.IsContentFile(rel) {
		return KindContent
	}
	if assetExtensions[strings.ToLower(path.Ext(rel))] {
		return KindAsset
	}
	return KindIgnored
}

// IgnoredPath reports whether rel or any of its parent directories is
// excluded: hidden entries, editor temporaries, skipped directories and
// configured ignore patterns.
func IgnoredPath(rel string, cfg *config.Config) bool {
	if rel == "" || rel == "." {
		return false
	}
	segs := strings.Split(rel, "/")
	for i, s := range segs {
		if IgnoredName(s) {
			return true
		}
		if i < len(segs)-1 && skippedDirs[s] {
			return true
		}
	}
	if cfg == nil {
		return false
	}
	for _, p := range cfg.Ignore {
		if matchIgnore(p, rel) {
			return true
		}
	}
	return false
}

// IgnoredDir reports whether a directory should be skipped entirely.
func IgnoredDir(rel string, cfg *config.Config) bool {
	if skippedDirs[path.Base(rel)] {
		return true
	}
	return IgnoredPath(rel, cfg)
}

// IgnoredName reports editor temporaries, hidden files and OS metadata.
func IgnoredName(base string) bool {
	switch {
	case strings.HasPrefix(base, "."),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == "Thumbs.db",
		base == "4913":
		return true
	}
	return false
}

// matchIgnore matches a glob against the full relative path, its base name
// and every parent directory, so "drafts" excludes a whole directory.
func matchIgnore(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	segs := strings.Split(rel, "/")
	for i := range segs {
		if ok, _ := path.Match(pattern, segs[i]); ok {
			return true
		}
		if ok, _ := path.Match(pattern, strings.Join(segs[:i+1], "/")); ok {
			return true
		}
	}
	return false
}
