// Package jsonlex tracks string-literal and nesting state while scanning
// serialized JSON one byte at a time. It is not a parser: it only knows
// enough to tell whether a position is inside a string and how deep the
// surrounding object/array nesting is, which is what the chunker and the
// healer need to make safe cuts and repairs in near-valid text.
package jsonlex

// State is the string-tracking state of a Lexer.
type State int

const (
	// Normal is outside any string literal.
	Normal State = iota
	// InString is inside a string literal.
	InString
	// Escaped is inside a string literal right after a backslash.
	Escaped
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case InString:
		return "in-string"
	case Escaped:
		return "escaped"
	}
	return "unknown"
}

// Lexer is a byte-at-a-time JSON state machine. The zero value is ready to use.
type Lexer struct {
	state State
	stack []byte
}

// Step advances the lexer over c. Braces and brackets only change nesting
// while in the Normal state; an unmatched closer is ignored.
func (l *Lexer) Step(c byte) {
	switch l.state {
	case Escaped:
		l.state = InString
	case InString:
		switch c {
		case '\\':
			l.state = Escaped
		case '"':
			l.state = Normal
		}
	default:
		switch c {
		case '"':
			l.state = InString
		case '{', '[':
			l.stack = append(l.stack, c)
		case '}', ']':
			if len(l.stack) > 0 {
				l.stack = l.stack[:len(l.stack)-1]
			}
		}
	}
}

// Scan steps over every byte of s.
func (l *Lexer) Scan(s string) {
	for i := 0; i < len(s); i++ {
		l.Step(s[i])
	}
}

func (l *Lexer) State() State { return l.state }

// InString reports whether the cursor is inside a string literal.
func (l *Lexer) InString() bool { return l.state != Normal }

// Depth is the number of currently open objects and arrays.
func (l *Lexer) Depth() int { return len(l.stack) }

// Closers returns the characters that close every open container,
// innermost first.
func (l *Lexer) Closers() string {
	out := make([]byte, 0, len(l.stack))
	for i := len(l.stack) - 1; i >= 0; i-- {
		if l.stack[i] == '{' {
			out = append(out, '}')
		} else {
			out = append(out, ']')
		}
	}
	return string(out)
}

// Reset returns the lexer to its zero state.
func (l *Lexer) Reset() {
	l.state = Normal
	l.stack = l.stack[:0]
}
