// Package build runs a one-shot build of a content root into a static
// output tree.
package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

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
	"git.home.luguber.info/inful/teadocs/internal/site"
)

// Options configures a Builder. Zero values select quiet defaults.
type Options struct {
	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Notifier notify.Notifier
	// Compiler is shared when set; otherwise each build opens one backed by
	// cfg.Cache.
	Compiler *compiler.Compiler
	Now      func() time.Time
	NewID    func() string
}

// Builder builds sites.
type Builder struct {
	cfg  *config.Config
	log  *slog.Logger
	rec  metrics.Recorder
	note notify.Notifier
	comp *compiler.Compiler
	now  func() time.Time
	id   func() string
}

// New returns a Builder for cfg.
func New(cfg *config.Config, opts Options) *Builder {
	b := &Builder{
		cfg:  cfg,
		log:  opts.Logger,
		rec:  metrics.OrNoop(opts.Metrics),
		note: opts.Notifier,
		comp: opts.Compiler,
		now:  opts.Now,
		id:   opts.NewID,
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.note == nil {
		b.note = notify.Noop{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.id == nil {
		b.id = uuid.NewString
	}
	return b
}

// run carries the state of one build.
type run struct {
	*Builder
	ctx    context.Context
	log    *slog.Logger
	report *Report
	stage  *staging
	model  *content.Model
	pipe   *assets.Pipeline
	asm    *site.Assembler
	comp   *compiler.Compiler
	// referenced collects assets resolved from pages by output path.
	referenced map[string]assets.Location
}

// Build compiles root into outDir. The returned report is always non-nil.
// The error joins every fatal problem; outDir is left untouched whenever it
// is non-nil.
func (b *Builder) Build(ctx context.Context, root, outDir string) (*Report, error) {
	start := b.now()
	absRoot, rerr := filepath.Abs(root)
	absOut, oerr := filepath.Abs(outDir)
	id := b.id()
	log := b.log.With(logfields.BuildID(id))
	r := &run{
		Builder:    b,
		ctx:        ctx,
		log:        log,
		report:     newReport(id, absRoot, absOut, start),
		referenced: map[string]assets.Location{},
	}

	err := stderrors.Join(rerr, oerr)
	if err == nil {
		err = r.execute(absRoot, absOut)
	} else {
		err = errors.WrapError(err, errors.CategoryIO, "resolve build paths").Fatal().Build()
	}
	r.stage.abort()
	if r.comp != nil && r.comp != b.comp {
		if cerr := r.comp.Close(); cerr != nil {
			log.Warn("Failed to close compile cache", logfields.Error(cerr))
		}
	}

	canceled := err != nil && ctx.Err() != nil
	if canceled {
		err = errors.WrapError(ctx.Err(), errors.CategoryRuntime, "build canceled").Build()
	}
	if err != nil {
		r.recordFatal(err, canceled)
	}
	r.report.finish(b.now(), canceled)
	r.observe()
	r.notify()

	if err != nil {
		log.Error("Build failed", slog.String("outcome", string(r.report.Outcome)), logfields.Error(err))
		return r.report, err
	}
	log.Info("Build completed", logfields.Output(absOut), logfields.Pages(r.report.Pages),
		logfields.Assets(r.report.Assets), logfields.Duration(r.report.Duration()),
		slog.String("outcome", string(r.report.Outcome)))
	return r.report, nil
}

func (r *run) execute(root, out string) error {
	if inside(out, root) {
		return errors.ValidationError("output directory contains the content root").WithPath(out).Build()
	}

	if err := r.timed(StageScan, func() error { return r.scan(root, out) }); err != nil {
		return err
	}
	if err := r.prepare(); err != nil {
		return err
	}

	st, err := beginStaging(out, r.log)
	if err != nil {
		return errors.WrapError(err, errors.CategoryIO, "prepare output").WithPath(out).Fatal().Build()
	}
	r.stage = st

	if err := r.timed(StageCompile, r.pages); err != nil {
		return err
	}
	if err := r.timed(StageAssets, r.assets); err != nil {
		return err
	}
	if err := r.strict(); err != nil {
		return err
	}
	return r.timed(StagePromote, func() error {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		if err := r.stage.promote(); err != nil {
			return errors.WrapError(err, errors.CategoryIO, "promote output").WithPath(out).Fatal().Build()
		}
		return nil
	})
}

func (r *run) timed(stage string, fn func() error) error {
	t := time.Now()
	err := fn()
	d := time.Since(t)
	r.report.StageDurations[stage] = d
	r.rec.ObserveStageDuration(stage, d)
	return err
}

func (r *run) scan(root, out string) error {
	var git *gitinfo.Repo
	if r.cfg.GitInfo {
		repo, err := gitinfo.Open(root)
		if err != nil {
			r.log.Warn("Git info unavailable", logfields.Root(root), logfields.Error(err))
		} else {
			git = repo
		}
	}
	model, err := content.Scan(r.ctx, root, r.cfg, content.Options{
		Exclude: config.OutputDirs(out),
		Git:     git,
		Logger:  r.log,
	})
	if err != nil {
		return err
	}
	r.model = model
	for _, w := range model.NavWarnings() {
		r.report.AddIssue(IssueNavDangling, SeverityWarning, w)
	}
	return nil
}

func (r *run) prepare() error {
	theme, err := render.Select(r.cfg)
	if err != nil {
		return err
	}
	r.pipe = assets.New(r.model.Root(), r.cfg)

	styles, scripts, herr := r.pipe.HeadAssets()
	for _, e := range errors.Flatten(herr) {
		r.report.AddIssue(IssueAssetMissing, SeverityWarning, e)
	}
	r.asm = site.New(theme, site.Head{Stylesheets: urls(styles), Scripts: urls(scripts)})

	r.comp = r.Builder.comp
	if r.comp == nil {
		var backing cache.Store
		if p := r.cfg.Cache.Path; p != "" {
			if !filepath.IsAbs(p) {
				p = filepath.Join(r.model.Root(), p)
			}
			s, err := cache.OpenSQLite(p)
			if err != nil {
				r.log.Warn("Persistent compile cache unavailable", logfields.Path(p), logfields.Error(err))
			} else {
				backing = s
			}
		}
		r.comp = compiler.New(compiler.Options{Cache: cache.NewLayered(backing), Logger: r.log})
	}
	return nil
}

// pages compiles and assembles every page in document order. A page that
// fails to compile is recorded as a warning and left out of the output; the
// rest of the site is still written.
func (r *run) pages() error {
	before := r.comp.Stats()
	tree := r.model.Tree()
	for _, page := range tree.Pages() {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		body, err := r.comp.Compile(r.ctx, compiler.FromPage(page), r.cfg)
		if err != nil {
			if r.ctx.Err() != nil {
				return r.ctx.Err()
			}
			for _, e := range errors.Flatten(err) {
				r.report.AddIssue(IssueCompile, SeverityWarning, e)
			}
			r.log.Warn("Skipping page that failed to compile", logfields.Path(page.Source), logfields.Error(err))
			continue
		}

		html, locs, aerrs := r.pipe.Rewrite(body.HTML, page.Source)
		for _, e := range aerrs {
			r.report.AddIssue(IssueAssetMissing, SeverityWarning, e)
		}
		var outputs []string
		for _, l := range locs {
			if !l.External() {
				r.referenced[l.Output] = l
				outputs = append(outputs, l.Output)
			}
		}
		for _, l := range body.Links {
			if !r.model.HasRoute(l.Route) {
				r.report.AddIssue(IssueBrokenLink, SeverityWarning,
					errors.NewError(errors.CategoryContent, "link to unknown page").
						WithPath(page.Source).WithContext(errors.KeyRef, l.Dest).Warning().Build())
			}
		}

		art, err := r.asm.Assemble(page, body, tree, r.cfg, site.Options{Content: &html, Assets: outputs})
		if err != nil {
			return err
		}
		if err := r.stage.write(art.OutputPath, art.HTML); err != nil {
			return errors.WrapError(err, errors.CategoryIO, "write page").WithPath(art.OutputPath).Fatal().Build()
		}
		r.report.Pages++
	}

	after := r.comp.Stats()
	r.report.Compiled = int(after.Compiles - before.Compiles)
	r.report.CacheHits = int(after.CacheHits - before.CacheHits)

	nf, err := r.asm.NotFound(tree, r.cfg, site.Options{})
	if err != nil {
		return err
	}
	if err := r.stage.write(nf.OutputPath, nf.HTML); err != nil {
		return errors.WrapError(err, errors.CategoryIO, "write page").WithPath(nf.OutputPath).Fatal().Build()
	}
	return nil
}

// assets copies the asset catalog plus any referenced file outside it.
func (r *run) assets() error {
	catalog, err := r.pipe.Catalog(r.model.Assets())
	if err != nil {
		for _, e := range errors.Flatten(err) {
			if errors.HasCategory(e, errors.CategoryIO) {
				return err
			}
			r.report.AddIssue(IssueAssetMissing, SeverityWarning, e)
		}
	}
	seen := map[string]bool{}
	emit := func(loc assets.Location) error {
		if seen[loc.Output] {
			return nil
		}
		seen[loc.Output] = true
		if err := r.pipe.Emit(loc, r.stage.dir); err != nil {
			return err
		}
		r.report.Assets++
		return nil
	}
	for _, loc := range catalog {
		if err := emit(loc); err != nil {
			return err
		}
	}
	for _, loc := range r.referenced {
		if err := emit(loc); err != nil {
			return err
		}
	}
	return nil
}

// strict turns every warning into a failure when the site is strict.
func (r *run) strict() error {
	if !r.cfg.Strict || len(r.report.Warnings) == 0 {
		return nil
	}
	warnings := r.report.Warnings
	r.report.Warnings = nil
	for i := range r.report.Issues {
		r.report.Issues[i].Severity = SeverityError
	}
	r.report.Errors = append(r.report.Errors, warnings...)
	return errors.ValidationError(fmt.Sprintf("strict mode: %d warning(s)", len(warnings))).
		WithCause(stderrors.Join(warnings...)).Build()
}

func (r *run) recordFatal(err error, canceled bool) {
	if canceled {
		r.report.AddIssue(IssueCanceled, SeverityError, err)
		return
	}
	for _, e := range errors.Flatten(err) {
		code := IssueInternal
		switch errors.GetCategory(e) {
		case errors.CategoryContent:
			code = IssueContent
		case errors.CategoryCompile:
			continue // already recorded per page
		case errors.CategoryConfig:
			code = IssueConfig
		case errors.CategoryIO:
			code = IssueIO
		case errors.CategoryValidation:
			if r.cfg.Strict && len(r.report.Errors) > 0 {
				code = IssueStrictViolation
			} else {
				code = IssueConfig
			}
		}
		r.report.AddIssue(code, SeverityError, e)
	}
}

func (r *run) observe() {
	rep := r.report
	r.rec.ObserveBuildDuration(rep.Duration())
	r.rec.IncBuildOutcome(metrics.OutcomeLabel(rep.Outcome))
	r.rec.AddPagesCompiled(rep.Compiled)
	r.rec.AddCacheHits(rep.CacheHits)
}

func (r *run) notify() {
	rep := r.report
	ev := notify.Event{
		Type:       notify.EventBuildCompleted,
		BuildID:    rep.BuildID,
		Time:       rep.End.UTC(),
		Outcome:    string(rep.Outcome),
		Pages:      rep.Pages,
		Errors:     len(rep.Errors),
		Warnings:   len(rep.Warnings),
		DurationMS: rep.Duration().Milliseconds(),
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 5*time.Second)
	defer cancel()
	if err := r.note.Notify(ctx, ev); err != nil {
		r.log.Warn("Failed to publish build event", logfields.Error(err))
	}
}

func urls(locs []assets.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, l.URL)
	}
	return out
}
