package compiler

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
)

// expandVariables substitutes {{ page.x }} and {{ site.x }} outside fenced
// code and code spans. "\{{" produces a literal "{{". Every undefined or
// unterminated reference is reported with its line.
func expandVariables(in Input, cfg *config.Config) ([]byte, error) {
	if !bytes.Contains(in.Body, []byte("{{")) {
		return in.Body, nil
	}
	lookup := variableLookup(in, cfg)

	var (
		out   bytes.Buffer
		errs  []error
		fence string
	)
	out.Grow(len(in.Body))
	line := in.BodyLine
	if line < 1 {
		line = 1
	}
	for _, raw := range bytes.SplitAfter(in.Body, []byte("\n")) {
		s := string(raw)
		trimmed := strings.TrimLeft(s, " ")
		if f := fenceOpen(trimmed); f != "" && len(s)-len(trimmed) < 4 {
			switch {
			case fence == "":
				fence = f
			case strings.HasPrefix(trimmed, fence) && strings.TrimSpace(strings.TrimLeft(trimmed, fence[:1])) == "":
				fence = ""
			}
			out.WriteString(s)
		} else if fence != "" {
			out.WriteString(s)
		} else {
			expanded, lineErrs := expandLine(s, lookup)
			out.WriteString(expanded)
			for _, msg := range lineErrs {
				errs = append(errs, errors.CompileError(in.Source, msg.text).
					WithLine(line).WithContext("variable", msg.expr).Build())
			}
		}
		line++
	}
	if len(errs) > 0 {
		return nil, stderrors.Join(errs...)
	}
	return out.Bytes(), nil
}

type varError struct {
	text string
	expr string
}

func expandLine(s string, lookup func(string) (string, bool)) (string, []varError) {
	var (
		b    strings.Builder
		errs []varError
	)
	for i := 0; i < len(s); {
		switch {
		case s[i] == '`':
			n := runLength(s[i:], '`')
			if end := findRun(s[i+n:], n); end >= 0 {
				b.WriteString(s[i : i+n+end+n])
				i += n + end + n
			} else {
				b.WriteString(s[i : i+n])
				i += n
			}
		case strings.HasPrefix(s[i:], `\{{`):
			b.WriteString("{{")
			i += 3
		case strings.HasPrefix(s[i:], "{{"):
			end := strings.Index(s[i+2:], "}}")
			if end < 0 {
				errs = append(errs, varError{text: "unterminated variable reference", expr: strings.TrimSpace(s[i:])})
				b.WriteString(s[i:])
				i = len(s)
				continue
			}
			expr := strings.TrimSpace(s[i+2 : i+2+end])
			if v, ok := lookup(expr); ok {
				b.WriteString(v)
			} else {
				errs = append(errs, varError{text: fmt.Sprintf("undefined variable %q", expr), expr: expr})
			}
			i += 2 + end + 2
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), errs
}

func variableLookup(in Input, cfg *config.Config) func(string) (string, bool) {
	return func(expr string) (string, bool) {
		scope, key, ok := strings.Cut(expr, ".")
		if !ok || key == "" {
			return "", false
		}
		switch scope {
		case "page":
			switch key {
			case "title":
				return in.Title, true
			case "route":
				return string(in.Route), true
			case "url":
				return in.Route.URL(cfg.BaseURL, cfg.Output.Style), true
			case "source":
				return in.Source, true
			}
			return lookupField(in.Fields, key)
		case "site":
			switch key {
			case "title":
				return cfg.Title, true
			case "description":
				return cfg.Description, true
			case "base_url":
				return cfg.BaseURL, true
			}
			v, ok := cfg.Vars[key]
			return v, ok
		}
		return "", false
	}
}

// lookupField resolves a dotted key into nested front-matter maps.
func lookupField(fields map[string]any, key string) (string, bool) {
	var cur any = fields
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case nil:
		return "", true
	case map[string]any:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

func fenceOpen(line string) string {
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, m) {
			return strings.Repeat(m[:1], runLength(line, m[0]))
		}
	}
	return ""
}

func runLength(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

// findRun returns the offset of a backtick run of exactly n in s, or -1.
func findRun(s string, n int) int {
	for i := 0; i < len(s); {
		if s[i] != '`' {
			i++
			continue
		}
		m := runLength(s[i:], '`')
		if m == n {
			return i
		}
		i += m
	}
	return -1
}
