package injector

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvas-rr/csinject/pkg/jsliteral"
)

// fakeDOM stands in for the page: just enough of document, Blob and URL for
// the loader to run, recording what it does.
const fakeDOM = `
var logs = [];
var console = { log: function () { logs.push(Array.prototype.join.call(arguments, ' ')); } };
var blobs = [];
function Blob(parts, options) {
  this.text = parts.join('');
  this.type = options.type;
  blobs.push(this);
}
var URL = {
  createObjectURL: function (blob) { return 'blob:https://example.test/' + blobs.indexOf(blob); }
};
var self = this;
function HTMLDocument() {
  this.created = [];
  this.documentElement = {
    children: [],
    append: function (el) { this.children.push(el); }
  };
}
HTMLDocument.prototype.createElement = function (tag) {
  var el = { tagName: tag, src: '', async: true };
  this.created.push(el);
  return el;
};
`

func runInDocument(t *testing.T, doc []byte) *goja.Runtime {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunString(fakeDOM + "var document = new HTMLDocument();")
	require.NoError(t, err)
	_, err = vm.RunString(string(doc))
	require.NoError(t, err)
	return vm
}

func eval(t *testing.T, vm *goja.Runtime, expr string) goja.Value {
	t.Helper()
	v, err := vm.RunString(expr)
	require.NoError(t, err)
	return v
}

func TestFromScriptInjectsOneScript(t *testing.T) {
	src := "console.log(`hi`)"
	vm := runInDocument(t, FromScript([]byte(src)))

	assert.Equal(t, int64(1), eval(t, vm, "document.documentElement.children.length").ToInteger())
	assert.Equal(t, "script", eval(t, vm, "document.documentElement.children[0].tagName").String())
	assert.True(t, strings.HasPrefix(eval(t, vm, "document.documentElement.children[0].src").String(), "blob:"))
	assert.False(t, eval(t, vm, "document.documentElement.children[0].async").ToBoolean())

	assert.Equal(t, int64(1), eval(t, vm, "blobs.length").ToInteger())
	assert.Equal(t, src, eval(t, vm, "blobs[0].text").String())
	assert.Equal(t, "text/javascript", eval(t, vm, "blobs[0].type").String())

	assert.Equal(t, "[canvas-rr] Injecting content script inline...", eval(t, vm, "logs.join('\\n')").String())
}

func TestFromScriptEmptyInput(t *testing.T) {
	doc := FromScript(nil)
	vm := runInDocument(t, doc)

	assert.Equal(t, int64(1), eval(t, vm, "document.documentElement.children.length").ToInteger())
	assert.Equal(t, "", eval(t, vm, "blobs[0].text").String())

	lit, err := Default.Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, "``", string(lit))
}

func TestGuardOutsideDocument(t *testing.T) {
	doc := FromScript([]byte("console.log('payload')"))

	tests := []struct {
		name  string
		setup string
	}{
		{"no document", ""},
		{"document is not an HTMLDocument", "var document = { documentElement: { append: function () { throw new Error('appended'); } } };"},
		{"no HTMLDocument constructor", "var document = {}; HTMLDocument = undefined;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := goja.New()
			_, err := vm.RunString(fakeDOM + tt.setup)
			require.NoError(t, err)

			_, err = vm.RunString(string(doc))
			require.NoError(t, err)

			assert.Equal(t, int64(0), eval(t, vm, "logs.length").ToInteger())
			assert.Equal(t, int64(0), eval(t, vm, "blobs.length").ToInteger())
		})
	}
}

func TestWrapInsertsLiteralVerbatim(t *testing.T) {
	lit := []byte("`anything, even not a literal`")
	doc := Wrap(lit)

	assert.True(t, bytes.HasPrefix(doc, Default.Prefix()))
	assert.True(t, bytes.HasSuffix(doc, Default.Suffix()))
	assert.Equal(t, len(Default.Prefix())+len(lit)+len(Default.Suffix()), len(doc))
	assert.Equal(t, 1, bytes.Count(doc, lit))
}

func TestWrapChangesOnlyTheLiteral(t *testing.T) {
	a := Wrap(jsliteral.Escape([]byte("aaaaa")))
	b := Wrap(jsliteral.Escape([]byte("b`bb")))
	require.Equal(t, len(a), len(b))

	first, last := -1, -1
	for i := range a {
		if a[i] != b[i] {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	prefixLen := len(Default.Prefix())
	litLen := len(a) - prefixLen - len(Default.Suffix())
	assert.GreaterOrEqual(t, first, prefixLen)
	assert.Less(t, last, prefixLen+litLen)

	// Everything outside the literal is identical.
	diff := cmp.Diff(string(a[:prefixLen]), string(b[:prefixLen]))
	assert.Empty(t, diff)
	diff = cmp.Diff(string(a[prefixLen+litLen:]), string(b[prefixLen+litLen:]))
	assert.Empty(t, diff)
}

func TestFromScriptMatchesWrapEscape(t *testing.T) {
	src := []byte("let x = `${y}` + '\\\\';")
	assert.Equal(t, Wrap(jsliteral.Escape(src)), FromScript(src))
}

func TestNewOptions(t *testing.T) {
	tpl, err := New(Options{Tag: "rr", Name: "rr-record.js"})
	require.NoError(t, err)

	vm := runInDocument(t, tpl.FromScript([]byte("1")))
	assert.Equal(t, "[rr] Injecting rr-record.js inline...", eval(t, vm, "logs[0]").String())
}

func TestNewQuotesOptions(t *testing.T) {
	tpl, err := New(Options{Tag: `it's`, Name: `C:\scripts\a.js`})
	require.NoError(t, err)

	vm := runInDocument(t, tpl.FromScript([]byte("1")))
	assert.Equal(t, `[it's] Injecting C:\scripts\a.js inline...`, eval(t, vm, "logs[0]").String())
}

func TestNewRejectsControlCharacters(t *testing.T) {
	for _, opts := range []Options{
		{Tag: "a\nb"},
		{Name: "x\x00y"},
		{Name: "line\u2028sep"},
	} {
		_, err := New(opts)
		assert.ErrorIs(t, err, ErrInvalidOption)
	}
}

func TestDefaultMatchesZeroOptions(t *testing.T) {
	tpl, err := New(Options{Tag: DefaultTag, Name: DefaultName})
	require.NoError(t, err)
	assert.Equal(t, Default.Prefix(), tpl.Prefix())
	assert.Equal(t, Default.Suffix(), tpl.Suffix())
}

func TestExtractAndUnwrap(t *testing.T) {
	src := []byte("const a = `${b}`;\n\\$\x00\xff")
	doc := FromScript(src)

	lit, err := Default.Extract(doc)
	require.NoError(t, err)
	assert.Equal(t, jsliteral.Escape(src), lit)

	got, err := Default.Unwrap(doc)
	require.NoError(t, err)
	assert.Equal(t, src, got)
}

func TestExtractRejectsForeignDocuments(t *testing.T) {
	other := MustNew(Options{Tag: "other"})
	doc := other.FromScript([]byte("x"))

	_, err := Default.Extract(doc)
	assert.ErrorIs(t, err, ErrNotInjector)

	_, err = Default.Extract([]byte("console.log(1)"))
	assert.ErrorIs(t, err, ErrNotInjector)

	tampered := Default.Wrap([]byte("`a`b`"))
	_, err = Default.Unwrap(tampered)
	assert.ErrorIs(t, err, ErrNotInjector)
	assert.ErrorIs(t, err, jsliteral.ErrUnescapedDelimiter)
}

func TestTemplateConcurrentUse(t *testing.T) {
	done := make(chan []byte, 8)
	for i := 0; i < cap(done); i++ {
		go func() { done <- FromScript([]byte("same")) }()
	}
	want := FromScript([]byte("same"))
	for i := 0; i < cap(done); i++ {
		assert.Equal(t, want, <-done)
	}
}
