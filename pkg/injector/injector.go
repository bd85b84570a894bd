// Package injector wraps an escaped content script in a self-invoking loader
// that re-creates the script as a blob: URL and appends it to the page as a
// <script> element, so it runs in the page's own context.
package injector

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/canvas-rr/csinject/pkg/jsliteral"
)

const (
	// DefaultTag prefixes the announcement logged by the loader.
	DefaultTag = "canvas-rr"

	// DefaultName names the script in the announcement.
	DefaultName = "content script"

	// literalMarker stands in for the literal while rendering; control
	// characters are rejected in options, so it cannot collide with them.
	literalMarker = "\x00literal\x00"
)

var (
	// ErrInvalidOption is returned for tags or names that cannot be placed in
	// a single-quoted JavaScript string.
	ErrInvalidOption = errors.New("invalid template option")

	// ErrNotInjector is returned when a document was not produced by the
	// template it is checked against.
	ErrNotInjector = errors.New("not an injector document")
)

//go:embed injector.js.tmpl
var loaderSource string

var loaderTemplate = template.Must(template.New("loader").Parse(loaderSource))

// Default is the template used by the package-level functions.
var Default = MustNew(Options{})

// Options configures the announcement line of a Template.
type Options struct {
	Tag  string
	Name string
}

// Template is a rendered loader split around its single insertion point.
// A Template is immutable and safe for concurrent use.
type Template struct {
	prefix []byte
	suffix []byte
}

// New renders the loader for opts. Empty fields take their defaults.
func New(opts Options) (*Template, error) {
	if opts.Tag == "" {
		opts.Tag = DefaultTag
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}

	tag, err := quoteSingle(opts.Tag)
	if err != nil {
		return nil, fmt.Errorf("tag: %w", err)
	}
	name, err := quoteSingle(opts.Name)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}

	var buf bytes.Buffer
	err = loaderTemplate.Execute(&buf, struct{ Tag, Name, Literal string }{tag, name, literalMarker})
	if err != nil {
		return nil, fmt.Errorf("failed to render loader: %w", err)
	}

	prefix, suffix, ok := bytes.Cut(buf.Bytes(), []byte(literalMarker))
	if !ok {
		return nil, fmt.Errorf("loader template has no literal insertion point")
	}
	return &Template{prefix: prefix, suffix: suffix}, nil
}

// MustNew is like New but panics on error.
func MustNew(opts Options) *Template {
	t, err := New(opts)
	if err != nil {
		panic(err)
	}
	return t
}

// Prefix returns the boilerplate before the literal.
func (t *Template) Prefix() []byte {
	return bytes.Clone(t.prefix)
}

// Suffix returns the boilerplate after the literal.
func (t *Template) Suffix() []byte {
	return bytes.Clone(t.suffix)
}

// Wrap inserts lit verbatim between the prefix and suffix.
func (t *Template) Wrap(lit []byte) []byte {
	doc := make([]byte, 0, len(t.prefix)+len(lit)+len(t.suffix))
	doc = append(doc, t.prefix...)
	doc = append(doc, lit...)
	return append(doc, t.suffix...)
}

// FromScript escapes src and wraps it, in a single allocation.
func (t *Template) FromScript(src []byte) []byte {
	n := len(t.prefix) + len(src) + jsliteral.CountSpecial(src) + 2 + len(t.suffix)
	doc := make([]byte, 0, n)
	doc = append(doc, t.prefix...)
	doc = jsliteral.AppendEscaped(doc, src)
	return append(doc, t.suffix...)
}

// Extract returns the literal embedded in doc.
func (t *Template) Extract(doc []byte) ([]byte, error) {
	if len(doc) < len(t.prefix)+len(t.suffix)+2 ||
		!bytes.HasPrefix(doc, t.prefix) || !bytes.HasSuffix(doc, t.suffix) {
		return nil, ErrNotInjector
	}
	return doc[len(t.prefix) : len(doc)-len(t.suffix)], nil
}

// Unwrap returns the original script embedded in doc.
func (t *Template) Unwrap(doc []byte) ([]byte, error) {
	lit, err := t.Extract(doc)
	if err != nil {
		return nil, err
	}
	src, err := jsliteral.Unescape(lit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInjector, err)
	}
	return src, nil
}

// Wrap inserts lit into the default template.
func Wrap(lit []byte) []byte {
	return Default.Wrap(lit)
}

// FromScript escapes and wraps src with the default template.
func FromScript(src []byte) []byte {
	return Default.FromScript(src)
}

// quoteSingle escapes s for the inside of a single-quoted JS string.
func quoteSingle(s string) (string, error) {
	for _, r := range s {
		if r < 0x20 || r == 0x7f || r == '\u2028' || r == '\u2029' {
			return "", fmt.Errorf("%w: control character %U in %q", ErrInvalidOption, r, s)
		}
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s, nil
}
