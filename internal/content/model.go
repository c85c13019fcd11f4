// Package content tracks the source files under a content root and derives
// pages and the navigation tree from them.
//
// A Model is not safe for concurrent use. The build runs it on one goroutine
// and the dev server confines it to its worker; readers get immutable Page
// and SiteTree values.
package content

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/gitinfo"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// ChangeKind describes a file system change.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// Change is a change to one path relative to the content root.
type Change struct {
	Path string
	Kind ChangeKind
}

// AffectedPages reports what an Update invalidated.
type AffectedPages struct {
	// Compiled lists pages whose body must be recompiled.
	Compiled []route.Route
	// Removed lists routes that no longer exist.
	Removed []route.Route
	// Assets lists asset paths that were added, changed or removed.
	Assets []string
	// NavChanged means the tree changed and every page must be reassembled.
	NavChanged bool
	// ConfigChanged means the configuration file changed; callers reload it
	// and rebuild everything.
	ConfigChanged bool
}

// Empty reports whether nothing was affected.
func (a AffectedPages) Empty() bool {
	return len(a.Compiled) == 0 && len(a.Removed) == 0 && len(a.Assets) == 0 && !a.NavChanged && !a.ConfigChanged
}

func (a *AffectedPages) merge(b AffectedPages) {
	a.Compiled = append(a.Compiled, b.Compiled...)
	a.Removed = append(a.Removed, b.Removed...)
	a.Assets = append(a.Assets, b.Assets...)
	a.NavChanged = a.NavChanged || b.NavChanged
	a.ConfigChanged = a.ConfigChanged || b.ConfigChanged
}

// Options configures a Model.
type Options struct {
	// Exclude lists absolute directories never scanned, such as the output
	// directory when it lies inside the root.
	Exclude []string
	// Git supplies last-modified times when cfg.GitInfo is set.
	Git *gitinfo.Repo
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Model is the in-memory view of the content root.
type Model struct {
	root string
	cfg  *config.Config
	opts Options
	log  *slog.Logger

	sources map[string]*SourceFile
	pages   map[route.Route]*Page
	drafts  map[string]bool
	tree    *SiteTree
	navWarn []*errors.ClassifiedError
}

// Scan walks root and builds a Model. Every malformed file and route
// collision is reported as a ContentError; the scan continues past them and
// the partially populated model is returned together with the joined errors.
// An unreadable root is an IOError and yields a nil model.
func Scan(ctx context.Context, root string, cfg *config.Config, opts Options) (*Model, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryIO, "resolve content root").WithPath(root).Fatal().Build()
	}
	if info, statErr := os.Stat(abs); statErr != nil || !info.IsDir() {
		if statErr == nil {
			statErr = stderrors.New("not a directory")
		}
		return nil, errors.WrapError(statErr, errors.CategoryIO, "content root is not readable").WithPath(abs).Fatal().Build()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Model{
		root:    abs,
		cfg:     cfg,
		opts:    opts,
		log:     opts.Logger,
		sources: map[string]*SourceFile{},
		pages:   map[route.Route]*Page{},
		drafts:  map[string]bool{},
	}

	files, err := m.walk(ctx)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := m.apply(rel); err != nil {
			errs = append(errs, err)
		}
	}
	m.rebuildTree()
	m.log.Debug("Content scanned", logfields.Root(abs), logfields.Pages(len(m.pages)), logfields.Assets(len(m.Assets())))
	return m, stderrors.Join(errs...)
}

// walk lists tracked files below the root in lexical order.
func (m *Model) walk(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(m.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == m.root {
				return err
			}
			m.log.Warn("Skipping unreadable path", logfields.Path(p), logfields.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel := m.rel(p)
		if d.IsDir() {
			if rel != "" && (IgnoredDir(rel, m.cfg) || m.excluded(p)) {
				return fs.SkipDir
			}
			return nil
		}
		if Classify(rel, m.cfg) != KindIgnored {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapError(err, errors.CategoryIO, "walk content root").WithPath(m.root).Fatal().Build()
	}
	return files, nil
}

func (m *Model) excluded(abs string) bool {
	for _, ex := range m.opts.Exclude {
		if ex != "" && (abs == ex || strings.HasPrefix(abs, ex+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

func (m *Model) rel(abs string) string {
	r, err := filepath.Rel(m.root, abs)
	if err != nil || r == "." {
		return ""
	}
	return filepath.ToSlash(r)
}

// Rel converts a path (absolute or relative to the root) to the model's
// slash separated form. ok is false for paths outside the root.
func (m *Model) Rel(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.root, p)
	}
	r, err := filepath.Rel(m.root, filepath.Clean(p))
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "", true
	}
	return filepath.ToSlash(r), true
}

// apply reads rel from disk and records it. It does not rebuild the tree.
func (m *Model) apply(rel string) (AffectedPages, error) {
	abs := filepath.Join(m.root, filepath.FromSlash(rel))
	kind := Classify(rel, m.cfg)
	if kind == KindIgnored || m.excluded(abs) {
		return AffectedPages{}, nil
	}
	src, data, err := m.readSource(rel, abs, kind)
	if err != nil {
		return AffectedPages{}, err
	}
	if old, ok := m.sources[rel]; ok && old.Signature == src.Signature {
		return AffectedPages{}, nil
	}
	switch kind {
	case KindConfig:
		m.sources[rel] = src
		return AffectedPages{ConfigChanged: true}, nil
	case KindAsset:
		m.sources[rel] = src
		return AffectedPages{Assets: []string{rel}}, nil
	}

	page, err := parsePage(src, data, m.cfg)
	if err != nil {
		return AffectedPages{}, err
	}
	prev := m.pageBySource(rel)
	if page.Draft && !m.cfg.Drafts {
		m.sources[rel] = src
		m.drafts[rel] = true
		if prev != nil {
			delete(m.pages, prev.Route)
			return AffectedPages{Removed: []route.Route{prev.Route}, NavChanged: true}, nil
		}
		return AffectedPages{}, nil
	}
	if owner, taken := m.pages[page.Route]; taken && owner.Source != rel {
		return AffectedPages{}, errors.ContentError(rel, "duplicate route").
			WithContext(errors.KeyRoute, string(page.Route)).
			WithContext("conflicts_with", owner.Source).Build()
	}
	if m.cfg.GitInfo && m.opts.Git != nil {
		if t, ok := m.opts.Git.LastModified(abs); ok {
			page.LastModified = t
		}
	}

	m.sources[rel] = src
	delete(m.drafts, rel)
	m.pages[page.Route] = page

	res := AffectedPages{Compiled: []route.Route{page.Route}}
	if prev == nil || prev.navKey() != page.navKey() {
		res.NavChanged = true
	}
	return res, nil
}

func (m *Model) readSource(rel, abs string, kind Kind) (*SourceFile, []byte, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.CategoryIO, "stat source file").WithPath(rel).Fatal().Build()
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.CategoryIO, "read source file").WithPath(rel).Fatal().Build()
	}
	sig := ByteSignature(data)
	if kind == KindContent {
		sig = ContentSignature(data)
	}
	return &SourceFile{Rel: rel, Abs: abs, Kind: kind, Signature: sig, Size: info.Size(), ModTime: info.ModTime()}, data, nil
}

// remove forgets rel and everything below it.
func (m *Model) remove(rel string) AffectedPages {
	var res AffectedPages
	var gone []string
	for p := range m.sources {
		if p == rel || rel == "" || strings.HasPrefix(p, rel+"/") {
			gone = append(gone, p)
		}
	}
	sort.Strings(gone)
	for _, p := range gone {
		src := m.sources[p]
		delete(m.sources, p)
		delete(m.drafts, p)
		switch src.Kind {
		case KindConfig:
			res.ConfigChanged = true
		case KindAsset:
			res.Assets = append(res.Assets, p)
		case KindContent:
			if page := m.pageBySource(p); page != nil {
				delete(m.pages, page.Route)
				res.Removed = append(res.Removed, page.Route)
				res.NavChanged = true
			}
		}
	}
	return res
}

// Update re-scans one path after a change. For a single file the model is
// left untouched when the new content is invalid. A directory is expanded
// and its valid files are applied even when some fail; the failures are
// returned joined.
func (m *Model) Update(p string, kind ChangeKind) (AffectedPages, error) {
	rel, ok := m.Rel(p)
	if !ok || (rel != "" && IgnoredPath(rel, m.cfg)) {
		return AffectedPages{}, nil
	}
	abs := filepath.Join(m.root, filepath.FromSlash(rel))
	if m.excluded(abs) {
		return AffectedPages{}, nil
	}

	var (
		res AffectedPages
		err error
	)
	info, statErr := os.Stat(abs)
	switch {
	case kind == Removed || stderrors.Is(statErr, fs.ErrNotExist):
		res = m.remove(rel)
	case statErr != nil:
		return AffectedPages{}, errors.WrapError(statErr, errors.CategoryIO, "stat changed path").WithPath(rel).Fatal().Build()
	case info.IsDir():
		res, err = m.updateDir(abs)
	default:
		res, err = m.apply(rel)
	}

	if len(res.Compiled) > 0 || len(res.Removed) > 0 || res.NavChanged {
		m.rebuildTree()
	}
	return res, err
}

// updateDir applies every file below a new or changed directory and drops
// tracked files that vanished from it.
func (m *Model) updateDir(abs string) (AffectedPages, error) {
	var (
		res  AffectedPages
		errs []error
	)
	prefix := m.rel(abs)
	seen := map[string]bool{}
	_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel := m.rel(p)
		if d.IsDir() {
			if rel != prefix && (IgnoredDir(rel, m.cfg) || m.excluded(p)) {
				return fs.SkipDir
			}
			return nil
		}
		seen[rel] = true
		r, aerr := m.apply(rel)
		if aerr != nil {
			errs = append(errs, aerr)
			return nil
		}
		res.merge(r)
		return nil
	})
	for rel := range m.sources {
		if (prefix == "" || strings.HasPrefix(rel, prefix+"/")) && !seen[rel] {
			res.merge(m.remove(rel))
		}
	}
	return res, stderrors.Join(errs...)
}

// Diff compares the disk with the model and returns the changes needed to
// reconcile them, in path order.
func (m *Model) Diff(ctx context.Context) ([]Change, error) {
	files, err := m.walk(ctx)
	if err != nil {
		return nil, err
	}
	var changes []Change
	onDisk := make(map[string]bool, len(files))
	for _, rel := range files {
		onDisk[rel] = true
		old, ok := m.sources[rel]
		if !ok {
			changes = append(changes, Change{Path: rel, Kind: Added})
			continue
		}
		abs := filepath.Join(m.root, filepath.FromSlash(rel))
		src, _, err := m.readSource(rel, abs, old.Kind)
		if err != nil || src.Signature != old.Signature {
			changes = append(changes, Change{Path: rel, Kind: Modified})
		}
	}
	for rel := range m.sources {
		if !onDisk[rel] {
			changes = append(changes, Change{Path: rel, Kind: Removed})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

func (m *Model) rebuildTree() {
	pages := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Route < pages[j].Route })
	m.tree, m.navWarn = buildTree(pages, m.cfg)
}

func (m *Model) pageBySource(rel string) *Page {
	r, err := route.FromSource(rel)
	if err != nil {
		return nil
	}
	if p, ok := m.pages[r]; ok && p.Source == rel {
		return p
	}
	return nil
}

// Root is the absolute content root.
func (m *Model) Root() string { return m.root }

// Config is the configuration the model was built with.
func (m *Model) Config() *config.Config { return m.cfg }

// Tree returns the current site tree.
func (m *Model) Tree() *SiteTree { return m.tree }

// NavWarnings returns the problems found while applying navigation overrides.
func (m *Model) NavWarnings() []*errors.ClassifiedError { return m.navWarn }

// Page returns the page at r.
func (m *Model) Page(r route.Route) (*Page, bool) {
	p, ok := m.pages[r]
	return p, ok
}

// PageBySource returns the page built from rel.
func (m *Model) PageBySource(rel string) (*Page, bool) {
	p := m.pageBySource(rel)
	return p, p != nil
}

// Pages returns every page sorted by route.
func (m *Model) Pages() []*Page {
	out := make([]*Page, 0, len(m.pages))
	for _, p := range m.pages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Assets returns tracked asset files sorted by path.
func (m *Model) Assets() []*SourceFile {
	var out []*SourceFile
	for _, s := range m.sources {
		if s.Kind == KindAsset {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out
}

// Source returns the tracked file at rel.
func (m *Model) Source(rel string) (*SourceFile, bool) {
	s, ok := m.sources[rel]
	return s, ok
}

// HasRoute reports whether a page exists at r.
func (m *Model) HasRoute(r route.Route) bool {
	_, ok := m.pages[r]
	return ok
}
