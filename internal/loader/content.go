package loader

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ContentKind tags which variant a Content holds.
type ContentKind uint8

const (
	// KindAny is only valid as an accepted kind: the loader takes content
	// as it arrives.
	KindAny ContentKind = iota
	KindBytes
	KindText
)

func (k ContentKind) String() string {
	switch k {
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	default:
		return "any"
	}
}

// ErrInvalidText is returned when bytes are not valid UTF-8.
var ErrInvalidText = errors.New("content is not valid UTF-8")

// Content is the payload flowing through a loader chain: raw bytes or text.
type Content struct {
	kind  ContentKind
	bytes []byte
	text  string
}

// Bytes returns binary content.
func Bytes(b []byte) Content { return Content{kind: KindBytes, bytes: b} }

// Text returns text content.
func Text(s string) Content { return Content{kind: KindText, text: s} }

// Kind reports the variant held.
func (c Content) Kind() ContentKind { return c.kind }

// IsZero reports whether c was never set.
func (c Content) IsZero() bool { return c.kind == KindAny }

// AsBytes returns the content as bytes. Text converts without loss.
func (c Content) AsBytes() []byte {
	if c.kind == KindText {
		return []byte(c.text)
	}
	return c.bytes
}

// AsText returns the content as a string, failing for bytes that are not
// valid UTF-8.
func (c Content) AsText() (string, error) {
	if c.kind == KindText {
		return c.text, nil
	}
	if !utf8.Valid(c.bytes) {
		return "", ErrInvalidText
	}
	return string(c.bytes), nil
}

// Convert returns c as the given kind.
func (c Content) Convert(kind ContentKind) (Content, error) {
	if kind == KindAny || kind == c.kind {
		return c, nil
	}
	switch kind {
	case KindBytes:
		return Bytes(c.AsBytes()), nil
	case KindText:
		s, err := c.AsText()
		if err != nil {
			return Content{}, fmt.Errorf("convert %s to %s: %w", c.kind, kind, err)
		}
		return Text(s), nil
	}
	return Content{}, fmt.Errorf("unknown content kind %d", kind)
}

// Len returns the size of the content in bytes.
func (c Content) Len() int {
	if c.kind == KindText {
		return len(c.text)
	}
	return len(c.bytes)
}
