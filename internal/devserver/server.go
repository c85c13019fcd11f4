// Package devserver serves a content root from memory and keeps it current
// while the author edits. One worker goroutine owns the content model and
// publishes immutable snapshots that HTTP handlers read concurrently.
package devserver

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/teadocs/internal/assets"
	"git.home.luguber.info/inful/teadocs/internal/cache"
	"git.home.luguber.info/inful/teadocs/internal/compiler"
	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/gitinfo"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
	"git.home.luguber.info/inful/teadocs/internal/metrics"
	"git.home.luguber.info/inful/teadocs/internal/notify"
	"git.home.luguber.info/inful/teadocs/internal/render"
	"git.home.luguber.info/inful/teadocs/internal/route"
	"git.home.luguber.info/inful/teadocs/internal/site"
)

// State is the coarse server state.
type State string

const (
	StateIdle       State = "idle"
	StateServing    State = "serving"
	StateRebuilding State = "rebuilding"
)

// ErrStopped is returned to requests waiting on a worker that has exited.
var ErrStopped = stderrors.New("dev server stopped")

// Options configures a Server.
type Options struct {
	// ConfigFile is an explicit configuration path; it is reloaded when it
	// changes. Empty means the file found in the content root.
	ConfigFile string
	Logger     *slog.Logger
	Metrics    metrics.Recorder
	// Gatherer backs the metrics endpoint when dev.metrics is enabled.
	Gatherer prometheus.Gatherer
	Notifier notify.Notifier
	// Compiler is shared when set. Otherwise the server opens its own over
	// cfg.Cache and closes it on shutdown.
	Compiler *compiler.Compiler
	// ReloadInterval is the minimum gap between reload broadcasts.
	ReloadInterval time.Duration
}

// engine is everything derived from one configuration.
type engine struct {
	cfg   *config.Config
	model *content.Model
	pipe  *assets.Pipeline
	asm   *site.Assembler
}

type genRequest struct {
	route route.Route
	reply chan *entry
}

// Server is the dev server.
type Server struct {
	root     string
	cfgFile  string
	log      *slog.Logger
	rec      metrics.Recorder
	gatherer prometheus.Gatherer
	note     notify.Notifier
	comp     *compiler.Compiler
	ownComp  bool

	snap       atomic.Pointer[snapshot]
	hub        *Hub
	debouncer  *Debouncer
	changes    chan string
	resync     chan struct{}
	requests   chan *genRequest
	events     chan notify.Event
	overflow   atomic.Bool
	rebuilding atomic.Bool
	done       chan struct{}
	closeOnce  sync.Once

	genMu sync.Mutex
	gens  map[string]uint64

	// Owned by the worker goroutine.
	eng      *engine
	bodies   map[route.Route]*compiler.CompiledBody
	problems map[string][]error
	dirty    map[route.Route]bool
}

// New scans the content root and prepares a server. Pages are generated on
// first request. Content errors do not prevent startup; they are reported
// through the status endpoint and error pages.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Server, error) {
	s := &Server{
		root:     cfg.Root,
		cfgFile:  opts.ConfigFile,
		log:      opts.Logger,
		rec:      metrics.OrNoop(opts.Metrics),
		gatherer: opts.Gatherer,
		note:     opts.Notifier,
		comp:     opts.Compiler,
		changes:  make(chan string, cfg.Dev.QueueSize),
		resync:   make(chan struct{}, 1),
		requests: make(chan *genRequest),
		events:   make(chan notify.Event, 16),
		done:     make(chan struct{}),
		gens:     map[string]uint64{},
		bodies:   map[route.Route]*compiler.CompiledBody{},
		problems: map[string][]error{},
		dirty:    map[route.Route]bool{},
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.note == nil {
		s.note = notify.Noop{}
	}
	if s.cfgFile != "" {
		if abs, err := filepath.Abs(s.cfgFile); err == nil {
			s.cfgFile = abs
		}
	}
	interval := opts.ReloadInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	s.hub = NewHub(interval, s.log, s.clientsChanged)
	s.debouncer = NewDebouncer(cfg.Dev.Debounce, cfg.Dev.MaxDelay, s.enqueue)

	if s.comp == nil {
		s.comp = compiler.New(compiler.Options{Cache: cache.NewLayered(s.openCache(cfg)), Logger: s.log})
		s.ownComp = true
	}

	eng, err := s.load(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.eng = eng
	s.snap.Store(s.fresh(eng, 0))
	return s, nil
}

func (s *Server) openCache(cfg *config.Config) cache.Store {
	p := cfg.Cache.Path
	if p == "" {
		return nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(cfg.Root, p)
	}
	st, err := cache.OpenSQLite(p)
	if err != nil {
		s.log.Warn("Persistent compile cache unavailable", logfields.Path(p), logfields.Error(err))
		return nil
	}
	return st
}

// exclusions are the build output directories, never part of the site.
// They resolve the same way `teadocs build` resolves its destination.
func exclusions(cfg *config.Config) []string {
	out, err := cfg.OutputPath("")
	if err != nil {
		return nil
	}
	return config.OutputDirs(out)
}

// load scans the root under cfg. Only an unusable root or theme is fatal.
func (s *Server) load(ctx context.Context, cfg *config.Config) (*engine, error) {
	theme, err := render.Select(cfg)
	if err != nil {
		return nil, err
	}
	var git *gitinfo.Repo
	if cfg.GitInfo {
		if git, err = gitinfo.Open(cfg.Root); err != nil {
			s.log.Warn("Git info unavailable", logfields.Root(cfg.Root), logfields.Error(err))
			git = nil
		}
	}
	model, err := content.Scan(ctx, cfg.Root, cfg, content.Options{Exclude: exclusions(cfg), Git: git, Logger: s.log})
	if model == nil {
		return nil, err
	}
	s.problems = map[string][]error{}
	s.addProblems("", err)
	for _, w := range model.NavWarnings() {
		s.log.Warn("Navigation override ignored", logfields.Error(w))
	}

	pipe := assets.New(model.Root(), cfg)
	styles, scripts, herr := pipe.HeadAssets()
	for _, e := range errors.Flatten(herr) {
		s.log.Warn("Head asset unresolved", logfields.Error(e))
	}
	head := site.Head{}
	for _, l := range styles {
		head.Stylesheets = append(head.Stylesheets, l.URL)
	}
	for _, l := range scripts {
		head.Scripts = append(head.Scripts, l.URL)
	}
	s.log.Info("Content scanned", logfields.Root(model.Root()), logfields.Pages(len(model.Pages())),
		logfields.Assets(len(model.Assets())), logfields.Theme(theme.Name()))
	return &engine{cfg: cfg, model: model, pipe: pipe, asm: site.New(theme, head)}, nil
}

// fresh builds an empty snapshot for eng.
func (s *Server) fresh(eng *engine, gen uint64) *snapshot {
	snap := &snapshot{
		gen:    gen + 1,
		cfg:    eng.cfg,
		pipe:   eng.pipe,
		routes: routesOf(eng.model),
		pages:  map[route.Route]*entry{},
		assets: s.catalog(eng),
	}
	snap.notFound = s.notFound(eng)
	snap.problems = s.problemList()
	return snap
}

func routesOf(m *content.Model) map[route.Route]bool {
	out := map[route.Route]bool{}
	for _, p := range m.Pages() {
		out[p.Route] = true
	}
	return out
}

func (s *Server) catalog(eng *engine) map[string]assets.Location {
	locs, err := eng.pipe.Catalog(eng.model.Assets())
	for _, e := range errors.Flatten(err) {
		s.log.Warn("Asset not published", logfields.Error(e))
	}
	out := make(map[string]assets.Location, len(locs))
	for _, l := range locs {
		out[l.URL] = l
	}
	return out
}

func (s *Server) notFound(eng *engine) []byte {
	art, err := eng.asm.NotFound(eng.model.Tree(), eng.cfg, site.Options{LiveReload: eng.cfg.Dev.LiveReloadEnabled()})
	if err != nil {
		s.log.Error("Failed to render not found page", logfields.Error(err))
		return []byte("404 page not found\n")
	}
	return art.HTML
}

// addProblems records the errors of err under their own path, or under key
// when they carry none.
func (s *Server) addProblems(key string, err error) {
	for _, e := range errors.Flatten(err) {
		k := key
		if ce, ok := errors.AsClassified(e); ok && ce.Path() != "" {
			k = ce.Path()
		}
		s.problems[k] = append(s.problems[k], e)
	}
}

func (s *Server) setProblems(key string, err error) {
	delete(s.problems, key)
	s.addProblems(key, err)
}

func (s *Server) problemList() []string {
	keys := make([]string, 0, len(s.problems))
	for k := range s.problems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := []string{}
	for _, k := range keys {
		for _, e := range s.problems[k] {
			out = append(out, e.Error())
		}
	}
	return out
}

// State reports whether the server is rebuilding, serving connected
// browsers, or idle.
func (s *Server) State() State {
	switch {
	case s.rebuilding.Load():
		return StateRebuilding
	case s.hub.Clients() > 0:
		return StateServing
	}
	return StateIdle
}

func (s *Server) clientsChanged(n int) {
	s.rec.SetLiveReloadClients(n)
	s.rec.SetServerState(string(s.State()))
}

func (s *Server) setRebuilding(on bool) {
	s.rebuilding.Store(on)
	s.rec.SetServerState(string(s.State()))
}

// OnFileChange reports a change to path (absolute, or relative to the
// content root). Bursts for one path are debounced before they reach the
// worker queue.
func (s *Server) OnFileChange(path string) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, filepath.FromSlash(path))
	}
	path = filepath.Clean(path)
	s.genMu.Lock()
	s.gens[path]++
	s.genMu.Unlock()
	s.debouncer.Trigger(path)
}

func (s *Server) generation(path string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[path]
}

// enqueue hands a debounced path to the worker. A full queue degrades to
// one resync of the whole tree.
func (s *Server) enqueue(path string) {
	select {
	case s.changes <- path:
	default:
		s.overflow.Store(true)
		s.requestResync()
		s.log.Warn("Change queue full; scheduling full resync", logfields.Path(path))
	}
}

func (s *Server) requestResync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// start runs the worker and the event publisher. The returned function
// stops them and waits.
func (s *Server) start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer close(s.done)
		s.work(ctx)
	}()
	go func() {
		defer wg.Done()
		s.publishEvents(ctx)
	}()
	return func() {
		s.debouncer.Stop()
		cancel()
		wg.Wait()
	}
}

func (s *Server) publishEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.note.Notify(nctx, ev); err != nil {
				s.log.Warn("Failed to publish rebuild event", logfields.Error(err))
			}
			cancel()
		}
	}
}

// Start binds host:port and serves until ctx is canceled.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		_ = s.Close()
		return errors.WrapError(err, errors.CategoryIO, "bind dev server").
			WithContext("addr", addr).Fatal().Build()
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled or the listener fails. Every
// resource (listener, live-reload clients, watcher, scheduler, cache) is
// released before it returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.log.Warn("Failed to close compile cache", logfields.Error(err))
		}
	}()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := s.snap.Load().cfg
	w, err := newWatcher(s.root, cfg, s.configPath(cfg), exclusions(cfg), s.log)
	if err != nil {
		_ = ln.Close()
		return err
	}
	sched, err := s.schedule(cfg.Dev.ResyncInterval)
	if err != nil {
		_ = w.close()
		_ = ln.Close()
		return err
	}

	stop := s.start(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.run(ctx, s.OnFileChange)
	}()

	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("Dev server listening", logfields.Addr(ln.Addr().String()), logfields.Root(s.root))
	s.rec.SetServerState(string(s.State()))

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	s.log.Info("Shutting down dev server")
	s.hub.Shutdown()
	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP server shutdown error", logfields.Error(err))
	}
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			s.log.Warn("Resync scheduler shutdown error", logfields.Error(err))
		}
	}
	cancel()
	if err := w.close(); err != nil {
		s.log.Warn("File watcher close error", logfields.Error(err))
	}
	wg.Wait()
	stop()

	if serveErr != nil && !stderrors.Is(serveErr, http.ErrServerClosed) {
		return errors.WrapError(serveErr, errors.CategoryIO, "serve dev server").Fatal().Build()
	}
	return nil
}

// Close releases the compile cache when the server owns it.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.ownComp {
			err = s.comp.Close()
		}
	})
	return err
}

func (s *Server) configPath(cfg *config.Config) string {
	if s.cfgFile != "" {
		return s.cfgFile
	}
	return cfg.File
}

func (s *Server) schedule(interval time.Duration) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create resync scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.requestResync),
		gocron.WithName("content-resync"),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule resync: %w", err)
	}
	sched.Start()
	return sched, nil
}
