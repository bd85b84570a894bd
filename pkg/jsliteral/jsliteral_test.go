package jsliteral

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"empty", "", "``"},
		{"plain", "abc", "`abc`"},
		{"backslash", `a\b`, "`a\\\\b`"},
		{"delimiter", "a`b", "`a\\`b`"},
		{"substitution", "${x}", "`\\${x}`"},
		{"already escaped backslash", `\\`, "`\\\\\\\\`"},
		{"escaped delimiter in source", "\\`", "`\\\\\\``"},
		{"newline and tab", "a\n\tb", "`a\n\tb`"},
		{"nul", "\x00", "`\x00`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(Escape([]byte(tt.src))))
		})
	}
}

func TestEscapeConsoleLog(t *testing.T) {
	src := []byte("console.log(`hi`)")
	lit := Escape(src)
	assert.Equal(t, "`console.log(\\`hi\\`)`", string(lit))

	decoded, err := Unescape(lit)
	require.NoError(t, err)
	assert.Equal(t, src, decoded)
}

func TestEscapeLengthLaw(t *testing.T) {
	inputs := [][]byte{
		nil,
		[]byte("no specials here"),
		[]byte("\\`$\\`$"),
		allBytes(),
		randomBytes(t, 1<<16),
	}
	for _, src := range inputs {
		lit := Escape(src)
		assert.Equal(t, len(src)+CountSpecial(src)+2, len(lit))
	}
}

func TestEscapeNoUnescapedSpecials(t *testing.T) {
	lit := Escape(append(allBytes(), allBytes()...))

	require.Equal(t, Delimiter, lit[0])
	require.Equal(t, Delimiter, lit[len(lit)-1])

	body := lit[1 : len(lit)-1]
	for i := 0; i < len(body); i++ {
		if body[i] == EscapeIntroducer {
			require.Less(t, i+1, len(body), "escape at end of body")
			assert.True(t, IsSpecial(body[i+1]), "escape of non-special byte at %d", i)
			i++
			continue
		}
		assert.False(t, IsSpecial(body[i]), "unescaped special byte %q at %d", body[i], i)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
	}{
		{"empty", []byte{}},
		{"specials", []byte("\\`$")},
		{"substitution", []byte("const s = `${a}\\n${b}`;")},
		{"all byte values", allBytes()},
		{"one megabyte", randomBytes(t, 1<<20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Unescape(Escape(tt.src))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(tt.src, decoded), "round trip mismatch")
		})
	}
}

func TestRoundTripThroughJavaScript(t *testing.T) {
	inputs := []string{
		"",
		"console.log(`hi`)",
		"const s = `${a}${b}`; // \\ and $ and ${",
		"multi\nline\n\tindented\n",
		"unicode: héllo, 日本語, 🎉",
		"regex = /\\d+\\$/g",
		"$ alone, {brace}, $$, \\`",
	}
	for _, src := range inputs {
		vm := goja.New()
		v, err := vm.RunString(string(Escape([]byte(src))))
		require.NoError(t, err, "literal for %q did not evaluate", src)
		assert.Equal(t, src, v.String())
	}
}

func TestIsSpecial(t *testing.T) {
	count := 0
	for b := 0; b < 256; b++ {
		if IsSpecial(byte(b)) {
			count++
		}
	}
	assert.Equal(t, 3, count)
	assert.True(t, IsSpecial('\\'))
	assert.True(t, IsSpecial('`'))
	assert.True(t, IsSpecial('$'))
	assert.False(t, IsSpecial('{'))
	assert.False(t, IsSpecial('"'))
}

func TestAppendEscaped(t *testing.T) {
	dst := []byte("return ")
	dst = AppendEscaped(dst, []byte("a`b"))
	assert.Equal(t, "return `a\\`b`", string(dst))
}

func TestUnescapeErrors(t *testing.T) {
	tests := []struct {
		name string
		lit  string
		err  error
	}{
		{"empty input", "", ErrNotLiteral},
		{"single delimiter", "`", ErrNotLiteral},
		{"missing closing delimiter", "`abc", ErrNotLiteral},
		{"wrong quotes", `"abc"`, ErrNotLiteral},
		{"inner delimiter", "`a`b`", ErrUnescapedDelimiter},
		{"substitution", "`${x}`", ErrSubstitution},
		{"dangling escape", "`abc\\`", ErrDanglingEscape},
		{"newline escape", "`a\\nb`", ErrUnsupportedEscape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unescape([]byte(tt.lit))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestUnescapeAcceptsBareDollar(t *testing.T) {
	decoded, err := Unescape([]byte("`cost: $5`"))
	require.NoError(t, err)
	assert.Equal(t, "cost: $5", string(decoded))
}

func allBytes() []byte {
	b := make([]byte, 256)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	r := rand.New(rand.NewSource(42))
	b := make([]byte, n)
	_, err := r.Read(b)
	require.NoError(t, err)
	return b
}
