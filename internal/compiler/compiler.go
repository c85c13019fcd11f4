// Package compiler turns a page body into an HTML fragment.
//
// Compilation is a pure function of the page source and the configuration:
// the same input always yields byte-identical output, which is what makes
// the result cacheable under a content-derived key.
package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"git.home.luguber.info/inful/teadocs/internal/cache"
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// Version is part of every cache key. Bump it whenever output for an
// unchanged input changes.
const Version = "3"

// Input is everything the compiler reads from a page.
type Input struct {
	Source    string
	Signature string
	Route     route.Route
	Title     string
	Fields    map[string]any
	Body      []byte
	// BodyLine is the file line the body starts on, for error positions.
	BodyLine int
}

// FromPage builds the compiler input for p.
func FromPage(p *content.Page) Input {
	return Input{
		Source:    p.Source,
		Signature: p.Signature,
		Route:     p.Route,
		Title:     p.Title,
		Fields:    p.Fields,
		Body:      p.Body,
		BodyLine:  p.BodyLine,
	}
}

// Heading is one entry of a page's table of contents.
type Heading struct {
	Level int    `json:"level"`
	ID    string `json:"id"`
	Text  string `json:"text"`
}

// LinkRef is a rewritten link to another page.
type LinkRef struct {
	// Dest is the destination as written in the source.
	Dest     string      `json:"dest"`
	Target   string      `json:"target"`
	Route    route.Route `json:"route"`
	Fragment string      `json:"fragment,omitempty"`
}

// CompiledBody is the output of one compilation.
type CompiledBody struct {
	HTML string `json:"html"`
	// Title is the text of the first level-one heading, if any.
	Title      string    `json:"title,omitempty"`
	Headings   []Heading `json:"headings,omitempty"`
	Links      []LinkRef `json:"links,omitempty"`
	Assets     []string  `json:"assets,omitempty"`
	CacheKey   string    `json:"cache_key"`
	CompiledAt time.Time `json:"compiled_at"`
}

// Stats counts compilations against cache hits.
type Stats struct {
	Compiles  int64
	CacheHits int64
}

// Options configures a Compiler.
type Options struct {
	// Cache defaults to an in-memory store.
	Cache  cache.Store
	Logger *slog.Logger
	// Now is the clock used for CompiledAt.
	Now func() time.Time
}

// Compiler compiles page bodies. It is safe for concurrent use.
type Compiler struct {
	cache cache.Store
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	engines  map[engineKey]goldmark.Markdown
	compiles atomic.Int64
	hits     atomic.Int64
}

type engineKey struct {
	unsafe, hardWraps, highlight bool
}

// New returns a Compiler.
func New(opts Options) *Compiler {
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Compiler{
		cache:   opts.Cache,
		log:     opts.Logger,
		now:     opts.Now,
		engines: map[engineKey]goldmark.Markdown{},
	}
}

// CacheKey identifies the compiled output of in under cfg.
func CacheKey(in Input, cfg *config.Config) string {
	h := sha256.New()
	for _, part := range []string{in.Source, in.Signature, cfg.Signature(), Version} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Compile renders in to HTML. Cached output is returned when the key
// matches. Failures are CompileErrors naming the source.
func (c *Compiler) Compile(ctx context.Context, in Input, cfg *config.Config) (*CompiledBody, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := CacheKey(in, cfg)
	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("Compile cache lookup failed", logfields.Path(in.Source), logfields.Error(err))
	} else if ok {
		var body CompiledBody
		if jerr := json.Unmarshal(data, &body); jerr == nil {
			c.hits.Add(1)
			return &body, nil
		}
	}

	body, err := c.compile(in, cfg)
	if err != nil {
		return nil, err
	}
	body.CacheKey = key
	body.CompiledAt = c.now().UTC()
	c.compiles.Add(1)

	if data, jerr := json.Marshal(body); jerr == nil {
		if perr := c.cache.Put(ctx, key, data); perr != nil {
			c.log.Warn("Compile cache store failed", logfields.Path(in.Source), logfields.Error(perr))
		}
	}
	return body, nil
}

func (c *Compiler) compile(in Input, cfg *config.Config) (*CompiledBody, error) {
	if !utf8.Valid(in.Body) {
		return nil, errors.CompileError(in.Source, "invalid UTF-8").
			WithLine(in.BodyLine + invalidUTF8Line(in.Body)).Build()
	}
	src, err := expandVariables(in, cfg)
	if err != nil {
		return nil, err
	}

	st := &compileState{source: in.Source, cfg: cfg}
	pc := parser.NewContext()
	pc.Set(stateKey, st)

	var buf bytes.Buffer
	md := c.engine(cfg)
	if err := md.Convert(src, &buf, parser.WithContext(pc)); err != nil {
		return nil, errors.CompileError(in.Source, "render markdown").WithCause(err).Build()
	}
	return &CompiledBody{
		HTML:     buf.String(),
		Title:    st.title,
		Headings: st.headings,
		Links:    st.links,
		Assets:   st.assets,
	}, nil
}

func (c *Compiler) engine(cfg *config.Config) goldmark.Markdown {
	k := engineKey{
		unsafe:    cfg.Markdown.UnsafeHTML,
		hardWraps: cfg.Markdown.HardWraps,
		highlight: cfg.Markdown.HighlightEnabled(),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if md, ok := c.engines[k]; ok {
		return md
	}

	var rendererOpts []renderer.Option
	if k.unsafe {
		rendererOpts = append(rendererOpts, gmhtml.WithUnsafe())
	}
	if k.hardWraps {
		rendererOpts = append(rendererOpts, gmhtml.WithHardWraps())
	}
	rendererOpts = append(rendererOpts, renderer.WithNodeRenderers(
		util.Prioritized(&codeRenderer{highlight: k.highlight}, 100),
	))

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Footnote, extension.DefinitionList),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithASTTransformers(util.Prioritized(linkTransformer{}, 100)),
		),
		goldmark.WithRendererOptions(rendererOpts...),
	)
	c.engines[k] = md
	return md
}

// Stats returns compile and cache-hit counters.
func (c *Compiler) Stats() Stats {
	return Stats{Compiles: c.compiles.Load(), CacheHits: c.hits.Load()}
}

// Close releases the cache.
func (c *Compiler) Close() error {
	if c.cache == nil {
		return nil
	}
	err := c.cache.Close()
	if stderrors.Is(err, cache.ErrClosed) {
		return nil
	}
	return err
}

func invalidUTF8Line(b []byte) int {
	line := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			return line
		}
		if r == '\n' {
			line++
		}
		b = b[size:]
	}
	return line
}
