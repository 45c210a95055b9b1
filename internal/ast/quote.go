package ast

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Quote renders v as a double-quoted JavaScript string literal. Printable
// characters are written as is; everything else uses escapes every
// JavaScript engine reads back as the same code point. Invalid UTF-8 is
// written as U+FFFD.
func Quote(v string) string {
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\v':
			b.WriteString(`\v`)
		case '\u2028', '\u2029':
			writeUnit(&b, uint16(r))
		default:
			switch {
			case r < 0x20 || r == 0x7f:
				b.WriteString(`\x`)
				b.WriteByte(hexDigits[r>>4])
				b.WriteByte(hexDigits[r&0xf])
			case r == utf8.RuneError, unicode.IsPrint(r):
				b.WriteRune(r)
			case r > 0xffff:
				hi, lo := utf16.EncodeRune(r)
				writeUnit(&b, uint16(hi))
				writeUnit(&b, uint16(lo))
			default:
				writeUnit(&b, uint16(r))
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

// writeUnit writes one UTF-16 code unit as a \uXXXX escape.
func writeUnit(b *strings.Builder, u uint16) {
	b.WriteString(`\u`)
	s := strconv.FormatUint(uint64(u), 16)
	b.WriteString(strings.Repeat("0", 4-len(s)))
	b.WriteString(s)
}
