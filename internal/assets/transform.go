package assets

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

// Open returns the published bytes of loc: minified for CSS when enabled,
// the source bytes otherwise.
func (p *Pipeline) Open(loc Location) ([]byte, error) {
	if loc.External() {
		return nil, errors.AssetError(loc.Ref, "external asset has no local content").Build()
	}
	data, err := os.ReadFile(loc.Source)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryIO, "read asset").WithPath(loc.Source).Fatal().Build()
	}
	if p.cfg.Assets.Minify && strings.EqualFold(path.Ext(loc.Output), ".css") {
		data = MinifyCSS(data)
	}
	return data, nil
}

// Emit writes loc below outDir.
func (p *Pipeline) Emit(loc Location, outDir string) error {
	data, err := p.Open(loc)
	if err != nil {
		return err
	}
	dst := filepath.Join(outDir, filepath.FromSlash(loc.Output))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.WrapError(err, errors.CategoryIO, "create asset directory").WithPath(dst).Fatal().Build()
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryIO, "write asset").WithPath(dst).Fatal().Build()
	}
	return nil
}

// MinifyCSS removes comments and redundant whitespace. String literals are
// kept intact.
func MinifyCSS(src []byte) []byte {
	out := make([]byte, 0, len(src))
	pendingSpace := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(string(src[i+2:]), "*/")
			if end < 0 {
				i = len(src)
			} else {
				i += 2 + end + 1
			}
			pendingSpace = pendingSpace || len(out) > 0
		case c == '"' || c == '\'':
			if pendingSpace && needsSpace(out, c) {
				out = append(out, ' ')
			}
			pendingSpace = false
			j := i + 1
			for j < len(src) && src[j] != c {
				if src[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(src) {
				j = len(src) - 1
			}
			out = append(out, src[i:j+1]...)
			i = j
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			pendingSpace = len(out) > 0
		default:
			if c == '}' && len(out) > 0 && out[len(out)-1] == ';' {
				out = out[:len(out)-1]
			}
			if pendingSpace && needsSpace(out, c) {
				out = append(out, ' ')
			}
			pendingSpace = false
			out = append(out, c)
		}
	}
	return out
}

// needsSpace reports whether a space between the last output byte and next
// is significant.
func needsSpace(out []byte, next byte) bool {
	if len(out) == 0 {
		return false
	}
	prev := out[len(out)-1]
	return !strings.ContainsRune("{};:,>~(", rune(prev)) && !strings.ContainsRune("{};:,>~)", rune(next))
}
