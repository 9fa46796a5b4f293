package jsonlex

// Span locates a string literal in serialized JSON. Start is the offset of
// the opening quote and End the offset just past the closing quote.
type Span struct {
	Start int
	End   int
	Key   bool
}

// Strings returns every complete string literal in text in order of
// appearance. A literal followed by a colon is reported as a key.
// An unterminated trailing literal is not reported.
func Strings(text string) []Span {
	var (
		lx    Lexer
		spans []Span
		start = -1
	)
	for i := 0; i < len(text); i++ {
		before := lx.State()
		lx.Step(text[i])
		switch {
		case before == Normal && lx.State() == InString:
			start = i
		case before == InString && lx.State() == Normal:
			spans = append(spans, Span{Start: start, End: i + 1, Key: followedByColon(text, i+1)})
			start = -1
		}
	}
	return spans
}

func followedByColon(text string, from int) bool {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ':':
			return true
		default:
			return false
		}
	}
	return false
}
