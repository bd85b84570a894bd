// Package jsliteral encodes arbitrary bytes as a JavaScript template literal
// (`...`) and decodes such literals back to the original bytes.
package jsliteral

import (
	"errors"
	"fmt"
)

// Bytes with meaning inside a template literal. Each one is escaped wherever
// it appears in the source.
const (
	Delimiter              byte = '`'
	EscapeIntroducer       byte = '\\'
	SubstitutionIntroducer byte = '$'
)

var (
	ErrNotLiteral         = errors.New("not a template literal")
	ErrUnescapedDelimiter = errors.New("unescaped delimiter inside literal")
	ErrSubstitution       = errors.New("unescaped substitution inside literal")
	ErrDanglingEscape     = errors.New("literal ends with a lone escape")
	ErrUnsupportedEscape  = errors.New("unsupported escape sequence")
)

// special is indexed by byte value; one lookup decides whether a byte gets
// escaped, so a source backslash is escaped exactly once.
var special = func() (t [256]bool) {
	t[Delimiter] = true
	t[EscapeIntroducer] = true
	t[SubstitutionIntroducer] = true
	return t
}()

// IsSpecial reports whether b must be escaped inside the literal.
func IsSpecial(b byte) bool {
	return special[b]
}

// CountSpecial returns the number of bytes in src that Escape will escape.
func CountSpecial(src []byte) int {
	n := 0
	for _, b := range src {
		if special[b] {
			n++
		}
	}
	return n
}

// Escape returns src as a template literal, delimiters included.
// The result is len(src) + CountSpecial(src) + 2 bytes long.
func Escape(src []byte) []byte {
	return AppendEscaped(make([]byte, 0, len(src)+CountSpecial(src)+2), src)
}

// AppendEscaped appends the literal form of src to dst and returns the
// extended slice.
func AppendEscaped(dst, src []byte) []byte {
	dst = append(dst, Delimiter)
	for _, b := range src {
		if special[b] {
			dst = append(dst, EscapeIntroducer)
		}
		dst = append(dst, b)
	}
	return append(dst, Delimiter)
}

// Unescape decodes a literal produced by Escape. It accepts only the escape
// forms Escape emits; a bare '$' that does not open a substitution is plain
// text and is accepted.
func Unescape(lit []byte) ([]byte, error) {
	if len(lit) < 2 || lit[0] != Delimiter || lit[len(lit)-1] != Delimiter {
		return nil, ErrNotLiteral
	}
	body := lit[1 : len(lit)-1]
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		switch b {
		case EscapeIntroducer:
			if i+1 == len(body) {
				return nil, ErrDanglingEscape
			}
			i++
			if !special[body[i]] {
				return nil, fmt.Errorf("%w: escaped %q at offset %d", ErrUnsupportedEscape, body[i], i+1)
			}
			out = append(out, body[i])
		case Delimiter:
			return nil, fmt.Errorf("%w at offset %d", ErrUnescapedDelimiter, i+1)
		case SubstitutionIntroducer:
			if i+1 < len(body) && body[i+1] == '{' {
				return nil, fmt.Errorf("%w at offset %d", ErrSubstitution, i+1)
			}
			out = append(out, b)
		default:
			out = append(out, b)
		}
	}
	return out, nil
}
