// Package site assembles complete page documents from compiled bodies, the
// site tree and the selected theme.
package site

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"html/template"
	"net/http"

	"git.home.luguber.info/inful/teadocs/internal/compiler"
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/render"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// LiveReloadScript is the path of the live reload client served by the dev
// server.
const LiveReloadScript = "/__teadocs/livereload.js"

// NotFoundOutput is where the 404 page is written.
const NotFoundOutput = "404.html"

// Artifact is one finished page.
type Artifact struct {
	Route      route.Route
	URL        string
	OutputPath string
	HTML       []byte
	// Assets lists the output paths of referenced assets.
	Assets []string
	Links  []compiler.LinkRef
	// Hash is the hex SHA-256 of HTML.
	Hash   string
	Status int
}

// Head holds the resolved head asset URLs injected into every page.
type Head struct {
	Stylesheets []string
	Scripts     []string
}

// Options adjust one assembly.
type Options struct {
	// LiveReload adds the dev server's reload client.
	LiveReload bool
	// Warnings are shown in a banner.
	Warnings []string
	// Content replaces the compiled HTML, typically after asset rewriting.
	Content *string
	// Assets are the output paths the content references.
	Assets []string
}

// Assembler renders pages with one theme. It has no side effects and is
// safe for concurrent use.
type Assembler struct {
	renderer render.Renderer
	head     Head
}

// New returns an Assembler.
func New(r render.Renderer, head Head) *Assembler {
	return &Assembler{renderer: r, head: head}
}

// Renderer returns the theme in use.
func (a *Assembler) Renderer() render.Renderer { return a.renderer }

// Assemble renders page with its compiled body inside the site chrome.
func (a *Assembler) Assemble(page *content.Page, body *compiler.CompiledBody, tree *content.SiteTree, cfg *config.Config, opts Options) (*Artifact, error) {
	htmlBody := body.HTML
	if opts.Content != nil {
		htmlBody = *opts.Content
	}
	data := a.pageData(page.Route, page.Title, tree, cfg, opts)
	data.Content = template.HTML(htmlBody) // #nosec G203 -- compiler output
	data.LastModified = page.LastModified
	for _, h := range body.Headings {
		if h.Level >= 2 && h.Level <= 3 {
			data.TOC = append(data.TOC, render.Heading{Level: h.Level, ID: h.ID, Text: h.Text})
		}
	}
	if prev, next := tree.PrevNext(page.Route); prev != nil || next != nil {
		if prev != nil {
			data.Prev = &render.Link{Title: prev.Title, URL: prev.Route.URL(cfg.BaseURL, cfg.Output.Style)}
		}
		if next != nil {
			data.Next = &render.Link{Title: next.Title, URL: next.Route.URL(cfg.BaseURL, cfg.Output.Style)}
		}
	}

	art, err := a.render(data, page.Route.OutputPath(cfg.Output.Style), http.StatusOK)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryInternal, "render page").
			WithPath(page.Source).WithContext(errors.KeyRoute, string(page.Route)).Build()
	}
	art.Assets = opts.Assets
	art.Links = body.Links
	return art, nil
}

// NotFound renders the themed 404 page.
func (a *Assembler) NotFound(tree *content.SiteTree, cfg *config.Config, opts Options) (*Artifact, error) {
	data := a.pageData("", "Page not found", tree, cfg, opts)
	data.Route = "404"
	data.URL = ""
	data.Breadcrumbs = nil
	data.Content = template.HTML(`<h1>Page not found</h1>
<p>The page you are looking for does not exist. Start from the <a href="` + html.EscapeString(baseURL(cfg)) + `">home page</a>.</p>`) // #nosec G203 -- constant markup
	return a.render(data, NotFoundOutput, http.StatusNotFound)
}

// Failure renders an error page for a route that has no good artifact.
func (a *Assembler) Failure(r route.Route, title string, cause error, tree *content.SiteTree, cfg *config.Config, opts Options) (*Artifact, error) {
	data := a.pageData(r, title, tree, cfg, opts)
	var msgs bytes.Buffer
	for _, e := range errors.Flatten(cause) {
		fmt.Fprintf(&msgs, "<li>%s</li>", html.EscapeString(e.Error()))
	}
	data.Content = template.HTML(`<h1>This page failed to build</h1>
<ul class="td-errors">` + msgs.String() + `</ul>`) // #nosec G203 -- escaped above
	return a.render(data, r.OutputPath(cfg.Output.Style), http.StatusInternalServerError)
}

func (a *Assembler) pageData(r route.Route, title string, tree *content.SiteTree, cfg *config.Config, opts Options) *render.PageData {
	data := &render.PageData{
		Site:        render.Site{Title: cfg.Title, Description: cfg.Description, BaseURL: baseURL(cfg)},
		Title:       title,
		Route:       string(r),
		URL:         r.URL(cfg.BaseURL, cfg.Output.Style),
		Nav:         NavView(tree, r, cfg),
		Breadcrumbs: Breadcrumbs(tree, r, cfg),
		Stylesheets: a.head.Stylesheets,
		Scripts:     a.head.Scripts,
		Warnings:    opts.Warnings,
	}
	if opts.LiveReload {
		data.BodyEnd = LiveReloadTag(r)
	}
	return data
}

func (a *Assembler) render(data *render.PageData, out string, status int) (*Artifact, error) {
	data.Status = status
	var buf bytes.Buffer
	if err := a.renderer.Render(&buf, data); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(buf.Bytes())
	return &Artifact{
		Route:      route.Route(data.Route),
		URL:        data.URL,
		OutputPath: out,
		HTML:       buf.Bytes(),
		Hash:       hex.EncodeToString(sum[:]),
		Status:     status,
	}, nil
}

// LiveReloadTag is the script element that connects a page to the dev
// server. The route lets the client ignore reloads for other pages.
func LiveReloadTag(r route.Route) template.HTML {
	return template.HTML(fmt.Sprintf(`<script src="%s" data-route="%s" defer></script>`, // #nosec G203 -- escaped
		LiveReloadScript, html.EscapeString(string(r))))
}

func baseURL(cfg *config.Config) string {
	if cfg.BaseURL == "" {
		return "/"
	}
	return cfg.BaseURL
}
