// Package scaffold writes the starter content tree used by `teadocs init`.
package scaffold

import (
	"embed"
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

//go:embed starter
var starter embed.FS

const starterDir = "starter"

// Files lists the starter tree as slash separated paths relative to its root.
func Files() []string {
	var out []string
	_ = fs.WalkDir(starter, starterDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		out = append(out, strings.TrimPrefix(p, starterDir+"/"))
		return nil
	})
	sort.Strings(out)
	return out
}

// Write materializes the starter tree under dir, creating it when needed.
// Existing files are never touched unless force is set; without it a single
// conflict aborts before anything is written. It returns the written paths
// relative to dir.
func Write(dir string, force bool) ([]string, error) {
	files := Files()

	if !force {
		var conflicts []string
		for _, rel := range files {
			_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
			switch {
			case err == nil:
				conflicts = append(conflicts, rel)
			case !stderrors.Is(err, os.ErrNotExist):
				return nil, errors.WrapError(err, errors.CategoryIO, "inspect target").
					WithPath(filepath.Join(dir, rel)).Fatal().Build()
			}
		}
		if len(conflicts) > 0 {
			return nil, errors.ValidationError("refusing to overwrite existing files (use --force)").
				WithPath(dir).WithContext("files", conflicts).Build()
		}
	}

	written := make([]string, 0, len(files))
	for _, rel := range files {
		data, err := starter.ReadFile(path.Join(starterDir, rel))
		if err != nil {
			return written, errors.WrapError(err, errors.CategoryInternal, "read starter file").
				WithPath(rel).Build()
		}
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, errors.WrapError(err, errors.CategoryIO, "create directory").
				WithPath(filepath.Dir(target)).Fatal().Build()
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, errors.WrapError(err, errors.CategoryIO, "write starter file").
				WithPath(target).Fatal().Build()
		}
		written = append(written, rel)
	}
	return written, nil
}
