package build

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
)

// staging writes a build into a sibling directory of the output and swaps it
// in only when the build succeeded, so the output is never half written.
type staging struct {
	out string
	dir string
	log *slog.Logger
}

func stageDir(out string) string  { return out + config.StageSuffix }
func backupDir(out string) string { return out + config.BackupSuffix }

// beginStaging creates an empty staging directory, discarding leftovers of an
// interrupted build.
func beginStaging(out string, log *slog.Logger) (*staging, error) {
	dir := stageDir(out)
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("remove stale staging directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	log.Debug("Initialized staging directory", logfields.Stage(dir), logfields.Output(out))
	return &staging{out: out, dir: dir, log: log}, nil
}

// write stores data at rel (slash separated) inside the staging directory.
func (s *staging) write(rel string, data []byte) error {
	dst := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// promote replaces the output with the staging directory:
//  1. move the existing output to <out>.prev,
//  2. rename staging to the output,
//  3. remove the backup.
//
// If step 2 fails the backup is moved back.
func (s *staging) promote() error {
	prev := backupDir(s.out)
	if err := os.RemoveAll(prev); err != nil {
		return fmt.Errorf("remove previous backup: %w", err)
	}
	hadOutput := false
	if _, err := os.Stat(s.out); err == nil {
		if err := os.Rename(s.out, prev); err != nil {
			return fmt.Errorf("backup existing output: %w", err)
		}
		hadOutput = true
	}
	if err := os.MkdirAll(filepath.Dir(s.out), 0o755); err != nil {
		return fmt.Errorf("create output parent: %w", err)
	}
	if err := os.Rename(s.dir, s.out); err != nil {
		if hadOutput {
			_ = os.Rename(prev, s.out)
		}
		return fmt.Errorf("promote staging: %w", err)
	}
	s.dir = ""
	if err := os.RemoveAll(prev); err != nil {
		s.log.Warn("Failed to remove previous backup", logfields.Path(prev), logfields.Error(err))
	}
	s.log.Debug("Promoted staging directory", logfields.Output(s.out))
	return nil
}

// abort removes the staging directory. It is a no-op after promote.
func (s *staging) abort() {
	if s == nil || s.dir == "" {
		return
	}
	dir := s.dir
	s.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		s.log.Warn("Failed to remove staging directory after abort", logfields.Stage(dir), logfields.Error(err))
		return
	}
	s.log.Debug("Removed staging directory after abort", logfields.Stage(dir))
}

// inside reports whether p is dir or below it.
func inside(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
