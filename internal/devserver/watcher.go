package devserver

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/content"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
)

// watcher subscribes to every directory under the content root. Newly
// created directories are added as they appear. A configuration file outside
// the root is watched through its directory.
type watcher struct {
	fs      *fsnotify.Watcher
	root    string
	cfg     *config.Config
	cfgFile string
	exclude []string
	log     *slog.Logger
}

func newWatcher(root string, cfg *config.Config, cfgFile string, exclude []string, log *slog.Logger) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryIO, "create file watcher").Fatal().Build()
	}
	w := &watcher{fs: fw, root: root, cfg: cfg, cfgFile: cfgFile, exclude: exclude, log: log}
	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, errors.WrapError(err, errors.CategoryIO, "watch content root").WithPath(root).Fatal().Build()
	}
	if cfgFile != "" {
		if _, inRoot := w.rel(cfgFile); !inRoot {
			if err := fw.Add(filepath.Dir(cfgFile)); err != nil {
				_ = fw.Close()
				return nil, errors.WrapError(err, errors.CategoryIO, "watch configuration file").WithPath(cfgFile).Fatal().Build()
			}
		}
	}
	return w, nil
}

func (w *watcher) rel(abs string) (string, bool) {
	r, err := filepath.Rel(w.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	if r == "." {
		return "", true
	}
	return filepath.ToSlash(r), true
}

func (w *watcher) excluded(abs string) bool {
	for _, e := range w.exclude {
		if abs == e || strings.HasPrefix(abs, e+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree registers dir and every directory below it that is not ignored.
func (w *watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := w.rel(p); p != w.root && (content.IgnoredDir(rel, w.cfg) || w.excluded(p)) {
			return fs.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			if p == dir {
				return err
			}
			w.log.Warn("Failed to watch directory", logfields.Path(p), logfields.Error(err))
		}
		return nil
	})
}

// relevant reports whether an event on abs can affect the site.
func (w *watcher) relevant(abs string) bool {
	if w.cfgFile != "" && abs == w.cfgFile {
		return true
	}
	rel, ok := w.rel(abs)
	if !ok || rel == "" {
		return false
	}
	return !content.IgnoredPath(rel, w.cfg) && !w.excluded(abs)
}

// run forwards relevant events to onChange until ctx is canceled.
func (w *watcher) run(ctx context.Context, onChange func(abs string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.log.Warn("Failed to watch new directory", logfields.Path(ev.Name), logfields.Error(err))
					}
				}
			}
			w.log.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			onChange(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *watcher) close() error { return w.fs.Close() }
