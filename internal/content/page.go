package content

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/inful/mdfp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/teadocs/internal/config"
	"git.home.luguber.info/inful/teadocs/internal/foundation/errors"
	"git.home.luguber.info/inful/teadocs/internal/frontmatter"
	"git.home.luguber.info/inful/teadocs/internal/route"
)

// SourceFile is one tracked file under the content root.
type SourceFile struct {
	Rel       string // slash separated, relative to the root
	Abs       string
	Kind      Kind
	Signature string
	Size      int64
	ModTime   time.Time
}

// Page is a content file with its parsed metadata. Pages are immutable once
// published by the model; updates replace them.
type Page struct {
	Route     route.Route
	Source    string
	AbsPath   string
	Signature string

	Title    string
	Order    int
	HasOrder bool
	Draft    bool
	// Fields holds every front-matter key.
	Fields map[string]any

	Body     []byte
	BodyLine int

	LastModified time.Time
}

// navKey captures the attributes that influence navigation.
func (p *Page) navKey() string {
	return fmt.Sprintf("%s|%t|%d|%t", p.Title, p.HasOrder, p.Order, p.Draft)
}

// ContentSignature fingerprints a content file from its front-matter and
// body. Whitespace-only changes to the delimiters do not change it.
func ContentSignature(data []byte) string {
	doc, err := frontmatter.Split(data)
	if err != nil {
		return ByteSignature(data)
	}
	return mdfp.CalculateFingerprintFromParts(string(doc.Raw), string(doc.Body))
}

// ByteSignature is the SHA-256 of data.
func ByteSignature(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// parsePage builds a Page from raw file bytes. Malformed front-matter is a
// ContentError naming the file.
func parsePage(src *SourceFile, data []byte, cfg *config.Config) (*Page, error) {
	r, err := route.FromSource(src.Rel)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryContent, "cannot derive route").
			WithPath(src.Rel).Fatal().Build()
	}

	doc, err := frontmatter.Split(data)
	if err != nil {
		msg := "malformed front-matter"
		if stderrors.Is(err, frontmatter.ErrMissingClosingDelimiter) {
			msg = "unterminated front-matter block"
		}
		return nil, errors.ContentError(src.Rel, msg).WithCause(err).WithLine(1).Build()
	}
	fields, err := frontmatter.Parse(doc.Raw)
	if err != nil {
		return nil, errors.ContentError(src.Rel, "malformed front-matter").WithCause(err).Build()
	}

	p := &Page{
		Route:     r,
		Source:    src.Rel,
		AbsPath:   src.Abs,
		Signature: src.Signature,
		Title:     fields.Title,
		Order:     fields.Order,
		HasOrder:  fields.HasOrder,
		Draft:     fields.Draft,
		Fields:    fields.Values,
		Body:      doc.Body,
		BodyLine:  doc.BodyLine,
	}
	if p.Title == "" {
		p.Title = firstHeading(doc.Body)
	}
	if p.Title == "" {
		p.Title = titleForRoute(r, src.Rel, cfg)
	}
	return p, nil
}

// firstHeading returns the text of the first ATX level-one heading outside
// fenced code.
func firstHeading(body []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fence := ""
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		trimmed := strings.TrimLeft(line, " ")
		if len(line)-len(trimmed) > 3 {
			continue
		}
		if f := fenceMarker(trimmed); f != "" {
			switch {
			case fence == "":
				fence = f
			case strings.HasPrefix(trimmed, fence):
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			h := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(trimmed[2:]), "#"))
			if h != "" {
				return h
			}
		}
	}
	return ""
}

func fenceMarker(line string) string {
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(line, m) {
			n := len(line) - len(strings.TrimLeft(line, m[:1]))
			return strings.Repeat(m[:1], n)
		}
	}
	return ""
}

func titleForRoute(r route.Route, rel string, cfg *config.Config) string {
	if r == route.Root {
		if cfg != nil && cfg.Title != "" {
			return cfg.Title
		}
		return "Home"
	}
	segs := strings.Split(rel, "/")
	name := segs[len(segs)-1]
	if route.IsContentFile(name) {
		name = name[:strings.LastIndexByte(name, '.')]
	}
	switch strings.ToLower(name) {
	case "index", "readme", "_index":
		if len(segs) >= 2 {
			name = segs[len(segs)-2]
		}
	}
	return DeriveTitle(name)
}

// DeriveTitle turns a file or directory name into a display title:
// "getting-started" becomes "Getting Started".
func DeriveTitle(name string) string {
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return cases.Title(language.English).String(name)
}
