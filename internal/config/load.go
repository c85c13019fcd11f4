package config

import (
	"bytes"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/logfields"
)

// Load reads the configuration for the content root. When file is empty the
// first of FileNames present in root is used; a root without a config file
// gets defaults. An explicitly named file must exist.
//
// Loading order: .env files, environment expansion, YAML decode with unknown
// fields rejected, normalization, defaults, validation.
func Load(root, file string) (*Config, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryIO, "resolve content root").
			WithPath(root).Fatal().Build()
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryIO, "content root is not readable").
			WithPath(absRoot).Fatal().Build()
	}
	if !info.IsDir() {
		return nil, errors.IOError("content root is not a directory").WithPath(absRoot).Build()
	}

	for _, loaded := range loadEnvFiles(absRoot) {
		slog.Debug("Loaded environment file", logfields.Path(loaded))
	}

	explicit := file != ""
	if !explicit {
		file = findConfigFile(absRoot)
	} else if !filepath.IsAbs(file) {
		file, _ = filepath.Abs(file)
	}

	cfg := &Config{}
	if file != "" {
		data, err := os.ReadFile(file)
		switch {
		case err == nil:
			if err := decode(data, cfg); err != nil {
				return nil, errors.WrapError(err, errors.CategoryConfig, "invalid configuration file").
					WithPath(file).Fatal().Build()
			}
			cfg.File = file
		case explicit || !stderrors.Is(err, os.ErrNotExist):
			return nil, errors.WrapError(err, errors.CategoryConfig, "configuration file not readable").
				WithPath(file).Fatal().Build()
		}
	}
	cfg.Root = absRoot

	if err := Prepare(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a prepared configuration for root with no file.
func Default(root string) *Config {
	cfg := &Config{Root: root}
	_ = Prepare(cfg)
	return cfg
}

// Prepare normalizes, applies defaults to and validates cfg in place.
func Prepare(cfg *Config) error {
	for _, w := range normalize(cfg) {
		slog.Warn("Configuration normalized", slog.String("detail", w))
	}
	applyDefaults(cfg)
	return Validate(cfg)
}

func findConfigFile(root string) string {
	for _, name := range FileNames {
		p := filepath.Join(root, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func decode(data []byte, cfg *Config) error {
	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// IsConfigFile reports whether rel (relative to the content root) is the
// configuration file of cfg.
func (c *Config) IsConfigFile(rel string) bool {
	if c.File != "" && c.Root != "" {
		if r, err := filepath.Rel(c.Root, c.File); err == nil {
			return filepath.ToSlash(r) == rel
		}
	}
	for _, name := range FileNames {
		if rel == name {
			return true
		}
	}
	return false
}
