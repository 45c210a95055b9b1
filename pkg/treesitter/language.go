// Package treesitter parses source with tree-sitter grammars into ast
// trees. Parsing needs cgo; without it NewParser returns an error.
package treesitter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// LanguageFunc returns a grammar handle. With cgo it is a
// *sitter.Language; each grammar package provides one via Register.
type LanguageFunc func() any

var (
	mu       sync.RWMutex
	registry = make(map[string]LanguageFunc)
)

// Register adds a language grammar to the global registry.
// Call this from init() in language-specific packages:
//
//	func init() {
//	    treesitter.Register("javascript", func() any {
//	        return javascript.GetLanguage()
//	    })
//	}
func Register(name string, fn LanguageFunc) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// GetLanguage looks up a registered language by name.
func GetLanguage(name string) (LanguageFunc, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Languages returns all registered language names, sorted.
func Languages() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SyntaxError reports the first error node of a parse.
type SyntaxError struct {
	Offset int
	Line   int // 1-based
	Column int // 1-based, in bytes
	Near   string
}

func (e *SyntaxError) Error() string {
	if e.Near == "" {
		return fmt.Sprintf("syntax error at %d:%d", e.Line, e.Column)
	}
	return fmt.Sprintf("syntax error at %d:%d near %q", e.Line, e.Column, e.Near)
}

// CookString decodes a quoted JavaScript string literal into its value.
// Unknown escapes keep the escaped character, as JavaScript does. Lone
// surrogates and malformed hex escapes decode to U+FFFD.
func CookString(raw string) string {
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}
	if !strings.ContainsRune(raw, '\\') {
		return raw
	}

	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); {
		if raw[i] != '\\' || i+1 == len(raw) {
			b.WriteByte(raw[i])
			i++
			continue
		}
		r, n := cookEscape(raw[i+1:])
		if r >= 0 {
			b.WriteRune(r)
		}
		i += 1 + n
	}
	return b.String()
}

// cookEscape decodes the escape sequence at the start of s, which follows
// a backslash. It returns the rune, or -1 for a line continuation, and the
// number of bytes consumed.
func cookEscape(s string) (rune, int) {
	switch s[0] {
	case 'n':
		return '\n', 1
	case 't':
		return '\t', 1
	case 'r':
		return '\r', 1
	case '\r':
		if len(s) > 1 && s[1] == '\n' {
			return -1, 2
		}
		return -1, 1
	case '\n':
		return -1, 1
	case 'b':
		return '\b', 1
	case 'f':
		return '\f', 1
	case 'v':
		return '\v', 1
	case 'x':
		if v, ok := parseHex(s[1:], 2); ok {
			return rune(v), 3
		}
		return utf8.RuneError, 1
	case 'u':
		return cookUnicode(s)
	}
	if s[0] >= '0' && s[0] <= '7' {
		return cookOctal(s)
	}
	r, n := utf8.DecodeRuneInString(s)
	if r == '\u2028' || r == '\u2029' {
		return -1, n
	}
	return r, n
}

// cookUnicode decodes \uXXXX, \u{X...} and surrogate pairs written as two
// \uXXXX escapes. s starts at the 'u'.
func cookUnicode(s string) (rune, int) {
	if len(s) > 1 && s[1] == '{' {
		end := strings.IndexByte(s, '}')
		if end < 3 {
			return utf8.RuneError, 1
		}
		v, ok := parseHex(s[2:end], end-2)
		if !ok || v > unicode.MaxRune {
			return utf8.RuneError, end + 1
		}
		return rune(v), end + 1
	}

	hi, ok := parseHex(s[1:], 4)
	if !ok {
		return utf8.RuneError, 1
	}
	if !utf16.IsSurrogate(rune(hi)) {
		return rune(hi), 5
	}
	if len(s) >= 11 && s[5] == '\\' && s[6] == 'u' {
		if lo, ok := parseHex(s[7:], 4); ok {
			if r := utf16.DecodeRune(rune(hi), rune(lo)); r != utf8.RuneError {
				return r, 11
			}
		}
	}
	return utf8.RuneError, 5
}

// cookOctal decodes a legacy octal escape: up to three digits with a value
// of at most 0377.
func cookOctal(s string) (rune, int) {
	limit := 3
	if s[0] > '3' {
		limit = 2
	}
	v, n := 0, 0
	for n < limit && n < len(s) && s[n] >= '0' && s[n] <= '7' {
		v = v*8 + int(s[n]-'0')
		n++
	}
	return rune(v), n
}

func parseHex(s string, digits int) (uint64, bool) {
	if len(s) < digits {
		return 0, false
	}
	v, err := strconv.ParseUint(s[:digits], 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}
