package compiler

import (
	"bytes"
	"html"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// lexer describes the token shapes of one language.
type lexer struct {
	keywords     map[string]bool
	lineComments []string
	blockComment [2]string
	quotes       string
	foldCase     bool
}

func words(s string) map[string]bool {
	m := map[string]bool{}
	for _, w := range strings.Fields(s) {
		m[w] = true
	}
	return m
}

var (
	goLexer = &lexer{
		keywords: words(`break case chan const continue default defer else fallthrough for func go goto
			if import interface map package range return select struct switch type var nil true false iota`),
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		quotes:       "\"'`",
	}
	jsLexer = &lexer{
		keywords: words(`async await break case catch class const continue debugger default delete do else
			export extends finally for function if import in instanceof let new of return static super switch
			this throw try typeof var void while yield null undefined true false interface type enum`),
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		quotes:       "\"'`",
	}
	pythonLexer = &lexer{
		keywords: words(`and as assert async await break class continue def del elif else except finally
			for from global if import in is lambda nonlocal not or pass raise return try while with yield
			None True False`),
		lineComments: []string{"#"},
		quotes:       "\"'",
	}
	shellLexer = &lexer{
		keywords:     words(`if then else elif fi case esac for while until do done in function return export local set unset`),
		lineComments: []string{"#"},
		quotes:       "\"'",
	}
	jsonLexer = &lexer{keywords: words(`true false null`), quotes: "\""}
	yamlLexer = &lexer{
		keywords:     words(`true false null yes no on off`),
		lineComments: []string{"#"},
		quotes:       "\"'",
	}
	cssLexer = &lexer{
		keywords:     words(`important inherit initial unset none auto`),
		blockComment: [2]string{"/*", "*/"},
		quotes:       "\"'",
	}
	sqlLexer = &lexer{
		keywords: words(`select from where and or not insert into values update set delete create table
			drop alter index join left right inner outer on group by order having limit as null is in
			primary key default distinct union`),
		lineComments: []string{"--"},
		blockComment: [2]string{"/*", "*/"},
		quotes:       "'\"",
		foldCase:     true,
	}
	rustLexer = &lexer{
		keywords: words(`as break const continue crate else enum extern false fn for if impl in let loop
			match mod move mut pub ref return self Self static struct super trait true type unsafe use where while`),
		lineComments: []string{"//"},
		blockComment: [2]string{"/*", "*/"},
		quotes:       "\"",
	}
)

var lexers = map[string]*lexer{
	"go":         goLexer,
	"golang":     goLexer,
	"js":         jsLexer,
	"javascript": jsLexer,
	"jsx":        jsLexer,
	"ts":         jsLexer,
	"typescript": jsLexer,
	"py":         pythonLexer,
	"python":     pythonLexer,
	"sh":         shellLexer,
	"bash":       shellLexer,
	"shell":      shellLexer,
	"zsh":        shellLexer,
	"json":       jsonLexer,
	"yaml":       yamlLexer,
	"yml":        yamlLexer,
	"css":        cssLexer,
	"sql":        sqlLexer,
	"rs":         rustLexer,
	"rust":       rustLexer,
}

// Highlight returns code as escaped HTML with tokens wrapped in
// <span class="tok-kw|tok-str|tok-com|tok-num">. Unknown languages are only
// escaped.
func Highlight(lang, code string) string {
	lx, ok := lexers[strings.ToLower(lang)]
	if !ok {
		return html.EscapeString(code)
	}
	var b strings.Builder
	span := func(class, tok string) {
		b.WriteString(`<span class="`)
		b.WriteString(class)
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(tok))
		b.WriteString(`</span>`)
	}

	i := 0
	for i < len(code) {
		rest := code[i:]
		if open := lx.blockComment[0]; open != "" && strings.HasPrefix(rest, open) {
			end := strings.Index(rest[len(open):], lx.blockComment[1])
			n := len(rest)
			if end >= 0 {
				n = len(open) + end + len(lx.blockComment[1])
			}
			span("tok-com", rest[:n])
			i += n
			continue
		}
		if lineComment(lx, rest, i == 0 || code[i-1] == '\n' || code[i-1] == ' ' || code[i-1] == '\t') {
			n := strings.IndexByte(rest, '\n')
			if n < 0 {
				n = len(rest)
			}
			span("tok-com", rest[:n])
			i += n
			continue
		}
		c := rest[0]
		switch {
		case strings.IndexByte(lx.quotes, c) >= 0:
			n := scanString(rest)
			span("tok-str", rest[:n])
			i += n
		case isDigit(c) && (i == 0 || !isIdent(code[i-1])):
			n := 1
			for n < len(rest) && (isIdent(rest[n]) || rest[n] == '.') {
				n++
			}
			span("tok-num", rest[:n])
			i += n
		case isIdentStart(c):
			n := 1
			for n < len(rest) && isIdent(rest[n]) {
				n++
			}
			word := rest[:n]
			key := word
			if lx.foldCase {
				key = strings.ToLower(word)
			}
			if lx.keywords[key] {
				span("tok-kw", word)
			} else {
				b.WriteString(html.EscapeString(word))
			}
			i += n
		default:
			b.WriteString(html.EscapeString(rest[:1]))
			i++
		}
	}
	return b.String()
}

// lineComment matches a line comment start. Single-character markers such as
// "#" only count at a word boundary so "a#b" in shell stays plain text.
func lineComment(lx *lexer, rest string, boundary bool) bool {
	for _, m := range lx.lineComments {
		if strings.HasPrefix(rest, m) && (len(m) > 1 || boundary) {
			return true
		}
	}
	return false
}

// scanString returns the length of the quoted string at the start of s. Only
// backtick strings may span lines; an unclosed string ends at the newline.
func scanString(s string) int {
	q := s[0]
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if q != '`' {
				i++
			}
		case '\n':
			if q != '`' {
				return i
			}
		case q:
			return i + 1
		}
	}
	return len(s)
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || c == '$' || (c|0x20) >= 'a' && (c|0x20) <= 'z' }
func isIdent(c byte) bool      { return isIdentStart(c) || isDigit(c) }

// codeRenderer renders fenced code blocks through Highlight and code spans
// with the inline-code class.
type codeRenderer struct {
	highlight bool
}

func (r *codeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	if r.highlight {
		reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
	}
	reg.Register(ast.KindCodeSpan, r.renderCodeSpan)
}

func (r *codeRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	lang := string(n.Language(source))

	var code bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	_, _ = w.WriteString("<pre><code")
	if lang != "" {
		_, _ = w.WriteString(` class="language-`)
		_, _ = w.Write(util.EscapeHTML([]byte(lang)))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')
	_, _ = w.WriteString(Highlight(lang, code.String()))
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

func (r *codeRenderer) renderCodeSpan(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("</code>")
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString(`<code class="inline-code">`)
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			value := t.Segment.Value(source)
			if bytes.HasSuffix(value, []byte("\n")) {
				_, _ = w.Write(util.EscapeHTML(value[:len(value)-1]))
				_ = w.WriteByte(' ')
			} else {
				_, _ = w.Write(util.EscapeHTML(value))
			}
		case *ast.String:
			_, _ = w.Write(util.EscapeHTML(t.Value))
		}
	}
	return ast.WalkSkipChildren, nil
}
