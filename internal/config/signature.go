package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Signature is a stable hash of every setting that affects generated pages.
// Dev server, logging, notification and cache settings are excluded so
// changing them does not invalidate compiled bodies.
func (c *Config) Signature() string {
	if c == nil {
		return ""
	}
	view := struct {
		Title       string
		Description string
		BaseURL     string
		Theme       Theme
		Strict      bool
		Drafts      bool
		GitInfo     bool
		Style       OutputStyle
		Markdown    MarkdownConfig
		Highlight   bool
		Nav         []NavItem
		Assets      AssetsConfig
		Vars        map[string]string
		Ignore      []string
	}{
		Title:       c.Title,
		Description: c.Description,
		BaseURL:     c.BaseURL,
		Theme:       c.Theme,
		Strict:      c.Strict,
		Drafts:      c.Drafts,
		GitInfo:     c.GitInfo,
		Style:       c.Output.Style,
		Markdown:    MarkdownConfig{UnsafeHTML: c.Markdown.UnsafeHTML, HardWraps: c.Markdown.HardWraps},
		Highlight:   c.Markdown.HighlightEnabled(),
		Nav:         c.Nav,
		Assets:      c.Assets,
		Vars:        c.Vars,
		Ignore:      c.Ignore,
	}
	// encoding/json sorts map keys, which keeps the hash stable.
	b, _ := json.Marshal(view)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
