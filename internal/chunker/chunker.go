// Package chunker splits a serialized JSON document into size-bounded
// fragments that never cut through a string literal or a nested object or
// array. Concatenating the fragments of a document reproduces its body
// exactly.
//
// Splitting happens inside the top-level container: the outer braces (or
// brackets) are removed first so that member boundaries sit at depth zero,
// and Frame puts them back around each fragment so it can be sent to a
// model as standalone JSON.
package chunker

import (
	"strings"

	"github.com/valpere/cvtran/internal/jsonlex"
)

// DefaultMaxLength is the default fragment size in characters.
const DefaultMaxLength = 800

// Split cuts text into ordered fragments. A cut is made right after a comma
// that sits at nesting depth zero outside any string, once the current
// fragment holds at least maxLength characters. Text without such a point
// becomes a single fragment, however long. If maxLength ≤ 0 the whole text
// is returned as one fragment.
func Split(text string, maxLength int) []string {
	if text == "" {
		return nil
	}
	if maxLength <= 0 {
		return []string{text}
	}

	var (
		lx        jsonlex.Lexer
		fragments []string
		start     int
		runes     int
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		lx.Step(c)
		// count code points, not UTF-8 continuation bytes
		if c&0xC0 != 0x80 {
			runes++
		}
		if c == ',' && lx.State() == jsonlex.Normal && lx.Depth() == 0 && runes >= maxLength {
			fragments = append(fragments, text[start:i+1])
			start = i + 1
			runes = 0
		}
	}
	if start < len(text) {
		fragments = append(fragments, text[start:])
	}
	return fragments
}

// Document is a serialized JSON value split into fragments. Open and Close
// hold the delimiters of the top-level container and are empty for scalar
// values.
type Document struct {
	Open      string
	Close     string
	Fragments []string
}

// SplitDocument splits the body of the top-level object or array of
// serialized. Scalars are kept as a single unframed fragment. An empty
// container yields no fragments.
func SplitDocument(serialized string, maxLength int) Document {
	text := strings.TrimSpace(serialized)
	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '{' && last == '}') || (first == '[' && last == ']') {
			body := text[1 : len(text)-1]
			return Document{
				Open:      string(first),
				Close:     string(last),
				Fragments: Split(body, maxLength),
			}
		}
	}
	return Document{Fragments: Split(text, maxLength)}
}

// Framed reports whether fragments need wrapping to be valid JSON.
func (d Document) Framed() bool {
	return d.Open != ""
}

// Frame wraps fragment i in the container delimiters, dropping the
// separator comma it ends with.
func (d Document) Frame(i int) string {
	if !d.Framed() {
		return d.Fragments[i]
	}
	return d.Open + strings.TrimSuffix(d.Fragments[i], ",") + d.Close
}

// Unframe turns the framed translation of fragment i back into a body
// fragment: the outer delimiters are removed and the separator comma is
// restored when the source fragment had one.
func (d Document) Unframe(i int, framed string) string {
	text := strings.TrimSpace(framed)
	if !d.Framed() {
		return text
	}
	text = strings.TrimPrefix(text, d.Open)
	text = strings.TrimSuffix(text, d.Close)
	text = strings.TrimSpace(text)
	if strings.HasSuffix(d.Fragments[i], ",") && !strings.HasSuffix(text, ",") {
		text += ","
	}
	return text
}

// Assemble concatenates body fragments in order and re-wraps them.
func (d Document) Assemble(fragments []string) string {
	var sb strings.Builder
	sb.WriteString(d.Open)
	for _, f := range fragments {
		sb.WriteString(f)
	}
	sb.WriteString(d.Close)
	return sb.String()
}
