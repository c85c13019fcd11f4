// Package assets resolves, fingerprints, transforms and copies the static
// files referenced by pages.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// ErrMissing is the cause of an AssetError for a file that does not exist.
var ErrMissing = stderrors.New("asset not found")

// Location is a resolved asset.
type Location struct {
	// Ref is the reference as written, empty for catalogued files.
	Ref string
	// Source is the absolute source file; empty for external head assets.
	Source string
	// Output is the slash separated path below the output directory.
	Output string
	// URL is the public URL including the base path and any query or
	// fragment carried by Ref.
	URL string
}

// External reports a location that is not served by the site.
func (l Location) External() bool { return l.Source == "" }

type fingerprint struct {
	size    int64
	modTime time.Time
	hash    string
}

// Pipeline resolves asset references for one content root. It is safe for
// concurrent use.
type Pipeline struct {
	root string
	cfg  *config.Config
	dirs []string

	mu     sync.Mutex
	hashes map[string]fingerprint
}

// New returns a pipeline for root (absolute) under cfg.
func New(root string, cfg *config.Config) *Pipeline {
	p := &Pipeline{root: root, cfg: cfg, hashes: map[string]fingerprint{}}
	for _, d := range cfg.Assets.Dirs {
		p.dirs = append(p.dirs, filepath.Join(root, filepath.FromSlash(d)))
	}
	return p
}

// Resolve maps ref, found in the page at sourceRel, to a Location. Page
// relative references are looked up next to the page; root relative ones in
// the content root and then each asset directory. External references come
// back unchanged with External() true. A missing file is an AssetError.
func (p *Pipeline) Resolve(ref, sourceRel string) (Location, error) {
	if route.IsExternal(ref) {
		return Location{Ref: ref, URL: ref}, nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" {
		return Location{}, errors.AssetError(sourceRel, "malformed asset reference").
			WithContext(errors.KeyRef, ref).WithCause(err).Build()
	}

	var candidates []string
	if strings.HasPrefix(u.Path, "/") {
		rel := strings.TrimPrefix(path.Clean(u.Path), "/")
		candidates = append(candidates, filepath.Join(p.root, filepath.FromSlash(rel)))
		for _, d := range p.dirs {
			candidates = append(candidates, filepath.Join(d, filepath.FromSlash(rel)))
		}
	} else {
		rel := path.Join(path.Dir(sourceRel), u.Path)
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return Location{}, errors.AssetError(sourceRel, "asset reference escapes the content root").
				WithContext(errors.KeyRef, ref).Build()
		}
		candidates = append(candidates, filepath.Join(p.root, filepath.FromSlash(rel)))
	}

	for _, abs := range candidates {
		info, statErr := os.Stat(abs)
		if statErr != nil || info.IsDir() {
			continue
		}
		loc, err := p.locate(abs)
		if err != nil {
			return Location{}, errors.WrapError(err, errors.CategoryAsset, "fingerprint asset").
				WithPath(sourceRel).WithContext(errors.KeyRef, ref).Warning().Build()
		}
		loc.Ref = ref
		if u.RawQuery != "" {
			loc.URL += "?" + u.RawQuery
		}
		if u.Fragment != "" {
			loc.URL += "#" + u.EscapedFragment()
		}
		return loc, nil
	}
	return Location{}, errors.AssetError(sourceRel, "missing asset").
		WithContext(errors.KeyRef, ref).WithCause(ErrMissing).Build()
}

// Locate returns the Location of the file at abs.
func (p *Pipeline) Locate(abs string) (Location, error) {
	return p.locate(abs)
}

// locate computes the output path: files inside an asset directory are
// published relative to it, everything else relative to the content root.
func (p *Pipeline) locate(abs string) (Location, error) {
	rel := ""
	for _, d := range p.dirs {
		if r, ok := within(d, abs); ok {
			rel = r
			break
		}
	}
	if rel == "" {
		r, ok := within(p.root, abs)
		if !ok {
			return Location{}, errors.AssetError(abs, "asset outside the content root").Build()
		}
		rel = r
	}

	out := rel
	if p.cfg.Assets.Fingerprint {
		sum, err := p.hash(abs)
		if err != nil {
			return Location{}, err
		}
		out = Fingerprinted(rel, sum)
	}
	return Location{Source: abs, Output: out, URL: p.baseURL() + out}, nil
}

func (p *Pipeline) baseURL() string {
	if p.cfg.BaseURL == "" {
		return "/"
	}
	return p.cfg.BaseURL
}

func within(dir, abs string) (string, bool) {
	r, err := filepath.Rel(dir, abs)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(r), true
}

// InAssetDir reports whether rel (relative to the content root) lies in a
// configured asset directory.
func (p *Pipeline) InAssetDir(rel string) bool {
	abs := filepath.Join(p.root, filepath.FromSlash(rel))
	for _, d := range p.dirs {
		if _, ok := within(d, abs); ok {
			return true
		}
	}
	return false
}

// hash returns the first 8 hex digits of the SHA-256 of the file, cached by
// size and modification time.
func (p *Pipeline) hash(abs string) (string, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	fp, ok := p.hashes[abs]
	p.mu.Unlock()
	if ok && fp.size == info.Size() && fp.modTime.Equal(info.ModTime()) {
		return fp.hash, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	h := hex.EncodeToString(sum[:])[:8]

	p.mu.Lock()
	p.hashes[abs] = fingerprint{size: info.Size(), modTime: info.ModTime(), hash: h}
	p.mu.Unlock()
	return h, nil
}

// Forget drops cached fingerprints for abs so the next lookup rehashes.
func (p *Pipeline) Forget(abs string) {
	p.mu.Lock()
	delete(p.hashes, abs)
	p.mu.Unlock()
}

// Fingerprinted inserts sum before the extension: img/logo.png becomes
// img/logo.<sum>.png.
func Fingerprinted(rel, sum string) string {
	ext := path.Ext(rel)
	base := strings.TrimSuffix(rel, ext)
	if base == "" || strings.HasSuffix(base, "/") {
		return rel + "." + sum
	}
	return base + "." + sum + ext
}

// StaticFiles enumerates every file in the configured asset directories.
// Missing directories are skipped.
func (p *Pipeline) StaticFiles() ([]Location, error) {
	var (
		out  []Location
		errs []error
	)
	for _, d := range p.dirs {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			continue
		}
		err := filepath.WalkDir(d, func(abs string, e fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if abs != d && content.IgnoredName(e.Name()) {
				if e.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if e.IsDir() {
				return nil
			}
			loc, lerr := p.locate(abs)
			if lerr != nil {
				errs = append(errs, lerr)
				return nil
			}
			out = append(out, loc)
			return nil
		})
		if err != nil {
			errs = append(errs, errors.WrapError(err, errors.CategoryIO, "walk asset directory").WithPath(d).Fatal().Build())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Output < out[j].Output })
	return out, stderrors.Join(errs...)
}

// Catalog lists every asset the site publishes: the content assets tracked
// by the model plus the asset directories, keyed by unique output path.
func (p *Pipeline) Catalog(tracked []*content.SourceFile) ([]Location, error) {
	var errs []error
	seen := map[string]bool{}
	var out []Location
	add := func(loc Location) {
		if !seen[loc.Output] {
			seen[loc.Output] = true
			out = append(out, loc)
		}
	}
	static, err := p.StaticFiles()
	if err != nil {
		errs = append(errs, err)
	}
	for _, l := range static {
		add(l)
	}
	for _, src := range tracked {
		if p.InAssetDir(src.Rel) {
			continue
		}
		loc, err := p.locate(src.Abs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		add(loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Output < out[j].Output })
	return out, stderrors.Join(errs...)
}

// HeadAssets resolves the configured stylesheets and scripts. Entries are
// root relative unless they are external URLs.
func (p *Pipeline) HeadAssets() (styles, scripts []Location, err error) {
	var errs []error
	resolve := func(refs []string) []Location {
		var out []Location
		for _, ref := range refs {
			if !route.IsExternal(ref) && !strings.HasPrefix(ref, "/") {
				ref = "/" + ref
			}
			loc, rerr := p.Resolve(ref, p.configName())
			if rerr != nil {
				errs = append(errs, rerr)
				continue
			}
			out = append(out, loc)
		}
		return out
	}
	styles = resolve(p.cfg.Assets.Stylesheets)
	scripts = resolve(p.cfg.Assets.Scripts)
	return styles, scripts, stderrors.Join(errs...)
}

func (p *Pipeline) configName() string {
	if p.cfg.File != "" {
		return filepath.Base(p.cfg.File)
	}
	return config.FileNames[0]
}
