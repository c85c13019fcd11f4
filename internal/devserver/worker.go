package devserver

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/teadocs/internal/compiler"
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/metrics"
	"git.home.luguber.info/inful/teadocs/internal/notify"
	"git.home.luguber.info/inful/teadocs/internal/route"
	"git.home.luguber.info/inful/teadocs/internal/site"
)

// configKey files configuration problems.
const configKey = "(config)"

// work is the single worker loop. It performs every model mutation.
func (s *Server) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.requests:
			s.serveRequest(ctx, req)
		case p := <-s.changes:
			s.pass(ctx, p)
		case <-s.resync:
			s.pass(ctx, "")
		}
	}
}

// generate asks the worker for the entry of a route not in the snapshot.
// A nil entry means the route does not exist.
func (s *Server) generate(ctx context.Context, r route.Route) (*entry, error) {
	req := &genRequest{route: r, reply: make(chan *entry, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStopped
	}
	select {
	case e := <-req.reply:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrStopped
	}
}

func (s *Server) serveRequest(ctx context.Context, req *genRequest) {
	cur := s.snap.Load()
	if e, ok := cur.pages[req.route]; ok {
		req.reply <- e
		return
	}
	page, ok := s.eng.model.Page(req.route)
	if !ok {
		req.reply <- nil
		return
	}
	e := s.compilePage(ctx, s.eng, page, nil)
	next := cur.next()
	next.pages[req.route] = e
	next.problems = s.problemList()
	s.snap.Store(next)
	s.log.Debug("Generated page on first request", logfields.Route(string(req.route)))
	req.reply <- e
}

// pass processes first plus every change already queued behind it. An
// empty first path, or a queue overflow, diffs the whole tree instead.
func (s *Server) pass(ctx context.Context, first string) {
	s.setRebuilding(true)
	defer s.setRebuilding(false)
	start := time.Now()

	paths := map[string]bool{}
	full := s.overflow.Swap(false) || first == ""
	if first != "" {
		paths[first] = true
	}
drain:
	for {
		select {
		case p := <-s.changes:
			paths[p] = true
		case <-s.resync:
			full = true
		default:
			break drain
		}
	}
	if full {
		changes, err := s.eng.model.Diff(ctx)
		if err != nil {
			s.log.Warn("Resync failed", logfields.Error(err))
		}
		for _, c := range changes {
			paths[filepath.Join(s.root, filepath.FromSlash(c.Path))] = true
		}
	}

	ordered := make([]string, 0, len(paths))
	for p := range paths {
		ordered = append(ordered, p)
	}
	sort.Strings(ordered)

	var (
		res      content.AffectedPages
		failed   bool
		reconfig bool
	)
	rejected := map[route.Route]error{}
	for _, p := range ordered {
		if s.isConfigFile(p) {
			reconfig = true
			continue
		}
		rel := s.relKey(p)
		a, err := s.eng.model.Update(p, content.Modified)
		s.setProblems(rel, err)
		if err != nil {
			failed = true
			s.log.Warn("Change rejected", logfields.Path(p), logfields.Error(err))
		}
		if page, ok := s.eng.model.PageBySource(rel); ok {
			if e, cached := s.snap.Load().pages[page.Route]; cached {
				switch {
				case err != nil:
					rejected[page.Route] = err
				case e.err != nil:
					s.dirty[page.Route] = true
				}
			}
		}
		res.Compiled = append(res.Compiled, a.Compiled...)
		res.Removed = append(res.Removed, a.Removed...)
		res.Assets = append(res.Assets, a.Assets...)
		res.NavChanged = res.NavChanged || a.NavChanged
		reconfig = reconfig || a.ConfigChanged
	}
	if reconfig {
		s.reload(ctx, start)
		return
	}
	if res.Empty() && len(s.dirty) == 0 && !failed {
		return
	}
	s.apply(ctx, res, rejected, failed, start)
}

// apply publishes the effect of one pass and notifies clients. Cached pages
// whose source was rejected keep their last good artifact under an error
// banner until a later change is accepted.
func (s *Server) apply(ctx context.Context, res content.AffectedPages, rejected map[route.Route]error, failed bool, start time.Time) {
	eng := s.eng
	next := s.snap.Load().next()
	assetsChanged := len(res.Assets) > 0
	if assetsChanged {
		for _, a := range res.Assets {
			eng.pipe.Forget(filepath.Join(s.root, filepath.FromSlash(a)))
		}
		next.assets = s.catalog(eng)
	}
	if len(res.Compiled) > 0 || len(res.Removed) > 0 || res.NavChanged {
		next.routes = routesOf(eng.model)
	}
	for _, r := range res.Removed {
		delete(next.pages, r)
		delete(s.bodies, r)
		delete(s.dirty, r)
	}

	pending := map[route.Route]bool{}
	for _, r := range res.Compiled {
		pending[r] = true
	}
	for r := range s.dirty {
		pending[r] = true
	}
	var changed []string
	recompiled := map[route.Route]bool{}
	superseded := false
	for _, r := range sortedRoutes(pending) {
		prev, cached := next.pages[r]
		page, ok := eng.model.Page(r)
		if !cached || !ok || rejected[r] != nil {
			delete(s.dirty, r)
			continue
		}
		abs := filepath.Join(s.root, filepath.FromSlash(page.Source))
		gen := s.generation(abs)
		e := s.compilePage(ctx, eng, page, prev)
		if s.generation(abs) != gen {
			s.dirty[r] = true
			superseded = true
			s.log.Debug("Discarded superseded rebuild", logfields.Route(string(r)))
			continue
		}
		delete(s.dirty, r)
		next.pages[r] = e
		recompiled[r] = true
		changed = append(changed, string(r))
		if e.err != nil {
			failed = true
		}
	}
	for _, r := range sortedRoutes(rejected) {
		prev, cached := next.pages[r]
		page, ok := eng.model.Page(r)
		if !cached || !ok {
			continue
		}
		next.pages[r] = s.failed(eng, page, prev, rejected[r])
		changed = append(changed, string(r))
	}

	if res.NavChanged || assetsChanged {
		for _, r := range sortedRoutes(next.pages) {
			if recompiled[r] {
				continue
			}
			page, ok := eng.model.Page(r)
			if !ok {
				delete(next.pages, r)
				continue
			}
			next.pages[r] = s.reassemble(eng, page, next.pages[r])
		}
		next.notFound = s.notFound(eng)
	}
	for _, r := range res.Removed {
		changed = append(changed, string(r))
	}
	next.problems = s.problemList()
	s.snap.Store(next)

	if superseded {
		s.rec.IncRebuild(metrics.RebuildSuperseded)
	}
	s.rec.IncRebuild(metrics.RebuildIncremental)
	s.rec.AddPagesCompiled(len(recompiled))
	s.finishPass(changed, res.NavChanged || assetsChanged, failed, start)
}

// reload rebuilds everything after a configuration change. An invalid
// configuration keeps the current site and reports the error.
func (s *Server) reload(ctx context.Context, start time.Time) {
	cfg, err := config.Load(s.root, s.cfgFile)
	var eng *engine
	if err == nil {
		eng, err = s.load(ctx, cfg)
	}
	if err != nil {
		s.setProblems(configKey, err)
		s.log.Error("Configuration reload failed; keeping previous site", logfields.Error(err))
		next := s.snap.Load().next()
		next.problems = s.problemList()
		s.snap.Store(next)
		s.finishPass(nil, false, true, start)
		return
	}

	cached := sortedRoutes(s.snap.Load().pages)
	s.eng = eng
	s.bodies = map[route.Route]*compiler.CompiledBody{}
	s.dirty = map[route.Route]bool{}
	next := s.fresh(eng, s.snap.Load().gen)
	failed := len(s.problems) > 0
	for _, r := range cached {
		if page, ok := eng.model.Page(r); ok {
			e := s.compilePage(ctx, eng, page, nil)
			failed = failed || e.err != nil
			next.pages[r] = e
		}
	}
	next.problems = s.problemList()
	s.snap.Store(next)
	s.log.Info("Configuration reloaded", logfields.Theme(string(cfg.Theme)), logfields.Pages(len(next.routes)))
	s.rec.IncRebuild(metrics.RebuildFull)
	s.finishPass(nil, true, failed, start)
}

// finishPass broadcasts one reload event and queues one notification.
func (s *Server) finishPass(routes []string, all, failed bool, start time.Time) {
	status := StatusOK
	if failed {
		status = StatusError
	}
	id := uuid.NewString()
	if len(routes) > 0 || all || failed {
		s.hub.Broadcast(ReloadEvent{ID: id, Routes: routes, All: all, Status: status})
		s.rec.IncReloadBroadcast()
	}

	outcome := "success"
	if failed {
		outcome = "failed"
	}
	ev := notify.Event{
		Type:       notify.EventRebuildCompleted,
		BuildID:    id,
		Time:       time.Now().UTC(),
		Outcome:    outcome,
		Pages:      len(routes),
		Routes:     routes,
		Errors:     len(s.problems),
		DurationMS: time.Since(start).Milliseconds(),
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("Dropped rebuild event; publisher busy")
	}
	s.log.Info("Rebuild completed", slog.String("routes", strings.Join(routes, ",")), slog.Bool("all", all),
		slog.String("status", status), logfields.Duration(time.Since(start)))
}

// compilePage compiles and assembles page. On failure the last good
// artifact in prev is kept and marked.
func (s *Server) compilePage(ctx context.Context, eng *engine, page *content.Page, prev *entry) *entry {
	body, err := s.comp.Compile(ctx, compiler.FromPage(page), eng.cfg)
	if err != nil {
		s.setProblems(page.Source, err)
		return s.failed(eng, page, prev, err)
	}
	s.setProblems(page.Source, nil)
	s.bodies[page.Route] = body
	return s.assemble(eng, page, body)
}

func (s *Server) assemble(eng *engine, page *content.Page, body *compiler.CompiledBody) *entry {
	html, locs, aerrs := eng.pipe.Rewrite(body.HTML, page.Source)
	var warnings, outputs []string
	for _, e := range aerrs {
		warnings = append(warnings, e.Error())
	}
	for _, l := range locs {
		if !l.External() {
			outputs = append(outputs, l.Output)
		}
	}
	art, err := eng.asm.Assemble(page, body, eng.model.Tree(), eng.cfg, site.Options{
		LiveReload: eng.cfg.Dev.LiveReloadEnabled(),
		Warnings:   warnings,
		Content:    &html,
		Assets:     outputs,
	})
	if err != nil {
		return s.failed(eng, page, nil, err)
	}
	return &entry{art: art, body: art.HTML, status: art.Status}
}

// reassemble renders a cached page again from its stored body, keeping its
// error state.
func (s *Server) reassemble(eng *engine, page *content.Page, old *entry) *entry {
	body, ok := s.bodies[page.Route]
	if !ok {
		return s.failed(eng, page, nil, old.err)
	}
	e := s.assemble(eng, page, body)
	if old.err != nil {
		return s.failed(eng, page, e, old.err)
	}
	return e
}

func (s *Server) failed(eng *engine, page *content.Page, prev *entry, cause error) *entry {
	var msgs []string
	for _, e := range errors.Flatten(cause) {
		msgs = append(msgs, e.Error())
	}
	if prev != nil && prev.art != nil {
		doc, err := withBanner(prev.art.HTML, msgs)
		if err == nil {
			return &entry{art: prev.art, body: doc, status: http.StatusOK, err: cause}
		}
		s.log.Warn("Failed to mark stale page", logfields.Route(string(page.Route)), logfields.Error(err))
	}
	art, err := eng.asm.Failure(page.Route, page.Title, cause, eng.model.Tree(), eng.cfg,
		site.Options{LiveReload: eng.cfg.Dev.LiveReloadEnabled()})
	if err != nil {
		return &entry{body: []byte(strings.Join(msgs, "\n")), status: http.StatusInternalServerError, err: cause}
	}
	return &entry{body: art.HTML, status: art.Status, err: cause}
}

func (s *Server) isConfigFile(abs string) bool {
	if abs == s.cfgFile || (s.eng.cfg.File != "" && abs == s.eng.cfg.File) {
		return true
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return s.eng.cfg.IsConfigFile(filepath.ToSlash(rel))
}

func (s *Server) relKey(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func sortedRoutes[V any](m map[route.Route]V) []route.Route {
	out := make([]route.Route, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
