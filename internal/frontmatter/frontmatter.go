// Package frontmatter splits and decodes the YAML block at the top of a
// content file.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front-matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("front-matter start delimiter found but closing delimiter is missing")

// ErrInvalidField indicates a well-known field has the wrong type.
var ErrInvalidField = errors.New("invalid front-matter field")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is a content file split into its parts.
type Document struct {
	Raw      []byte // YAML between the delimiters
	Body     []byte
	Had      bool
	BodyLine int // 1-based line of the first body line in the original file
}

// Split separates `---` delimited YAML front-matter from the Markdown body.
//
// A document that does not start with a delimiter line has no front-matter
// and the whole input is its body. The closing delimiter may be the last line
// of the file with or without a trailing newline.
func Split(content []byte) (Document, error) {
	content = bytes.TrimPrefix(content, utf8BOM)

	first, rest, _ := cutLine(content)
	if !isDelimiter(first) {
		return Document{Body: content, BodyLine: 1}, nil
	}

	start := len(content) - len(rest)
	offset := start
	line := 1
	for len(rest) > 0 {
		l, next, _ := cutLine(rest)
		line++
		if isDelimiter(l) {
			return Document{
				Raw:      content[start:offset],
				Body:     next,
				Had:      true,
				BodyLine: line + 1,
			}, nil
		}
		offset += len(rest) - len(next)
		rest = next
	}
	return Document{}, ErrMissingClosingDelimiter
}

// cutLine returns the first line without its terminator, the remainder and
// whether a terminator was found.
func cutLine(b []byte) (line, rest []byte, found bool) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return b, nil, false
	}
	return b[:i], b[i+1:], true
}

func isDelimiter(line []byte) bool {
	return string(bytes.TrimRight(line, " \t\r")) == "---"
}

// Fields are the decoded front-matter values.
type Fields struct {
	Title    string
	Order    int
	HasOrder bool
	Draft    bool
	// Values holds every key, including the well-known ones above.
	Values map[string]any
}

// Parse decodes raw YAML front-matter. title must be a string, order an
// integer and draft a boolean when present.
func Parse(raw []byte) (Fields, error) {
	f := Fields{Values: map[string]any{}}
	if len(bytes.TrimSpace(raw)) == 0 {
		return f, nil
	}
	var values map[string]any
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return Fields{}, fmt.Errorf("decode yaml: %w", err)
	}
	if values != nil {
		f.Values = values
	}

	if v, ok := f.Values["title"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Fields{}, fmt.Errorf("%w: title must be a string, got %T", ErrInvalidField, v)
		}
		f.Title = s
	}
	if v, ok := f.Values["order"]; ok && v != nil {
		n, ok := asInt(v)
		if !ok {
			return Fields{}, fmt.Errorf("%w: order must be an integer, got %v", ErrInvalidField, v)
		}
		f.Order, f.HasOrder = n, true
	}
	if v, ok := f.Values["draft"]; ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return Fields{}, fmt.Errorf("%w: draft must be a boolean, got %T", ErrInvalidField, v)
		}
		f.Draft = b
	}
	return f, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}
