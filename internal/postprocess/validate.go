package postprocess

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/cvtran/internal"
)

// MalformedError describes where model output stopped being valid JSON or
// how its structure drifted from the source.
type MalformedError struct {
	Offset  int64
	Line    int
	Column  int
	Snippet string
	Reason  string
}

func (e *MalformedError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed model output at line %d, column %d (near %q): %s", e.Line, e.Column, e.Snippet, e.Reason)
	}
	return fmt.Sprintf("malformed model output: %s", e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return internal.ErrMalformedOutput
}

// Validate parses text and reports the position of the first syntax error.
func Validate(text string) error {
	var v any
	err := json.Unmarshal([]byte(text), &v)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := position(text, syntaxErr.Offset)
		return &MalformedError{
			Offset:  syntaxErr.Offset,
			Line:    line,
			Column:  col,
			Snippet: snippet(text, syntaxErr.Offset),
			Reason:  syntaxErr.Error(),
		}
	}
	return &MalformedError{Reason: err.Error()}
}

// HealAndValidate heals text and falls back to the strict healer when the
// first result does not parse. It returns the healed text that parsed.
func HealAndValidate(text string) (string, error) {
	healed := Heal(text)
	err := Validate(healed)
	if err == nil {
		return healed, nil
	}
	strict := HealStrict(text)
	if Validate(strict) == nil {
		return strict, nil
	}
	return "", err
}

func position(text string, offset int64) (int, int) {
	if offset > int64(len(text)) {
		offset = int64(len(text))
	}
	line, col := 1, 1
	for i := int64(0); i < offset; i++ {
		if text[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}

func snippet(text string, offset int64) string {
	start := int(offset) - 20
	if start < 0 {
		start = 0
	}
	end := int(offset) + 20
	if end > len(text) {
		end = len(text)
	}
	if start > end {
		return ""
	}
	return text[start:end]
}

// SameShape checks that translated keeps the structure of source: the same
// object keys, the same array lengths and the same kind of value at every
// position. Only the contents of strings and numbers may differ.
func SameShape(source, translated []byte) error {
	src, err := decode(source)
	if err != nil {
		return &MalformedError{Reason: "source: " + err.Error()}
	}
	out, err := decode(translated)
	if err != nil {
		return &MalformedError{Reason: err.Error()}
	}
	if reason := compareShape("$", src, out); reason != "" {
		return &MalformedError{Reason: reason}
	}
	return nil
}

func decode(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func compareShape(path string, src, out any) string {
	if kind(src) != kind(out) {
		return fmt.Sprintf("%s: expected %s, got %s", path, kind(src), kind(out))
	}
	switch s := src.(type) {
	case map[string]any:
		o := out.(map[string]any)
		if missing := missingKeys(s, o); len(missing) > 0 {
			return fmt.Sprintf("%s: missing keys %s", path, strings.Join(missing, ", "))
		}
		if extra := missingKeys(o, s); len(extra) > 0 {
			return fmt.Sprintf("%s: unexpected keys %s", path, strings.Join(extra, ", "))
		}
		for k, v := range s {
			if reason := compareShape(path+"."+k, v, o[k]); reason != "" {
				return reason
			}
		}
	case []any:
		o := out.([]any)
		if len(s) != len(o) {
			return fmt.Sprintf("%s: expected %d elements, got %d", path, len(s), len(o))
		}
		for i := range s {
			if reason := compareShape(fmt.Sprintf("%s[%d]", path, i), s[i], o[i]); reason != "" {
				return reason
			}
		}
	}
	return ""
}

func missingKeys(want, have map[string]any) []string {
	var missing []string
	for k := range want {
		if _, ok := have[k]; !ok {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

func kind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
