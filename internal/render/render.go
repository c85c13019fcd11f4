// Package render turns assembled page data into a complete HTML document.
// Each theme is a Renderer; the site picks one from configuration.
package render

import (
	"html/template"
	"io"
	"time"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

// Features describes what a theme shows.
type Features struct {
	Sidebar         bool
	TableOfContents bool
	PrevNext        bool
	LastUpdated     bool
	TopNav          bool
}

// Renderer renders one page.
type Renderer interface {
	Name() string
	Features() Features
	Render(w io.Writer, data *PageData) error
}

// Site is the site-wide part of PageData.
type Site struct {
	Title       string
	Description string
	BaseURL     string
}

// NavItem is one entry of the navigation view. Active marks the current
// page, Open marks groups on the path to it.
type NavItem struct {
	Title    string
	URL      string
	Active   bool
	Open     bool
	External bool
	Children []NavItem
}

// Link is a titled URL.
type Link struct {
	Title string
	URL   string
}

// Heading is one table of contents entry.
type Heading struct {
	Level int
	ID    string
	Text  string
}

// PageData is everything a theme needs to render one page.
type PageData struct {
	Site         Site
	Title        string
	Route        string
	URL          string
	Content      template.HTML
	Nav          []NavItem
	Breadcrumbs  []Link
	TOC          []Heading
	Prev         *Link
	Next         *Link
	LastModified time.Time
	Stylesheets  []string
	Scripts      []string
	// Warnings are shown in a banner above the content.
	Warnings []string
	// BodyEnd is trusted markup appended before </body>, such as the live
	// reload client.
	BodyEnd template.HTML
	// Status is the HTTP status the page stands for; 404 pages use it.
	Status int
}

// Names lists the built-in themes.
func Names() []string {
	return []string{string(config.ThemeDefault), string(config.ThemeMinimal)}
}

// Select returns the renderer for cfg.Theme. An unknown theme is a
// ConfigError.
func Select(cfg *config.Config) (Renderer, error) {
	return New(cfg.Theme)
}

// New returns the named renderer.
func New(theme config.Theme) (Renderer, error) {
	switch theme {
	case config.ThemeDefault, "":
		return newDefault()
	case config.ThemeMinimal:
		return newMinimal()
	}
	return nil, errors.ConfigError("unknown theme").
		WithContext("theme", string(theme)).
		WithContext("valid", Names()).Build()
}
