package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"sync"
	"time"
)

//go:embed themes/*.tmpl themes/*.css
var themeFS embed.FS

type htmlTheme struct {
	name     string
	features Features
	tmpl     *template.Template
}

func (t *htmlTheme) Name() string       { return t.name }
func (t *htmlTheme) Features() Features { return t.features }

// Render executes the theme into a buffer first so w never sees a partial
// document.
func (t *htmlTheme) Render(w io.Writer, data *PageData) error {
	var buf bytes.Buffer
	if err := t.tmpl.ExecuteTemplate(&buf, "page", data); err != nil {
		return fmt.Errorf("render %s theme: %w", t.name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"indent": func(level int) int {
		if level < 2 {
			return 0
		}
		return level - 2
	},
}

func loadTheme(name string, features Features) (*htmlTheme, error) {
	css, err := themeFS.ReadFile("themes/" + name + ".css")
	if err != nil {
		return nil, fmt.Errorf("embedded stylesheet for theme %s: %w", name, err)
	}
	f := template.FuncMap{"themeCSS": func() template.CSS { return template.CSS(css) }}
	for k, v := range funcs {
		f[k] = v
	}
	tmpl, err := template.New(name).Funcs(f).ParseFS(themeFS, "themes/base.tmpl", "themes/"+name+".tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse theme %s: %w", name, err)
	}
	return &htmlTheme{name: name, features: features, tmpl: tmpl}, nil
}

var (
	defaultOnce  sync.Once
	defaultTheme *htmlTheme
	defaultErr   error

	minimalOnce  sync.Once
	minimalTheme *htmlTheme
	minimalErr   error
)

func newDefault() (Renderer, error) {
	defaultOnce.Do(func() {
		defaultTheme, defaultErr = loadTheme("default", Features{
			Sidebar: true, TableOfContents: true, PrevNext: true, LastUpdated: true,
		})
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	return defaultTheme, nil
}

func newMinimal() (Renderer, error) {
	minimalOnce.Do(func() {
		minimalTheme, minimalErr = loadTheme("minimal", Features{TopNav: true})
	})
	if minimalErr != nil {
		return nil, minimalErr
	}
	return minimalTheme, nil
}
