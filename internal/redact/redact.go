// Package redact removes large opaque fields (embedded images and the like)
// from a document before it is fingerprinted or translated, and puts them
// back afterwards. The removed values are carried in a Sidecar so they
// never reach the chunker, the model or the cache payload.
//
// Fields are addressed with gjson path syntax, e.g. "personalInfo.photo".
package redact

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultPaths are the fields stripped when no paths are configured.
var DefaultPaths = []string{
	"personalInfo.photo",
	"personalInfo.avatar",
	"photo",
	"avatar",
}

// Field is one removed value.
type Field struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// Sidecar holds the values removed by Strip, in path order.
type Sidecar []Field

type Guard struct {
	paths []string
}

func New(paths []string) *Guard {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Guard{paths: paths}
}

// Strip compacts doc and removes every configured field that is present.
func (g *Guard) Strip(doc []byte) ([]byte, Sidecar, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, nil, fmt.Errorf("invalid document: %w", err)
	}
	out := buf.Bytes()

	var sidecar Sidecar
	for _, path := range g.paths {
		res := gjson.GetBytes(out, path)
		if !res.Exists() {
			continue
		}
		sidecar = append(sidecar, Field{Path: path, Value: json.RawMessage(res.Raw)})

		var err error
		out, err = sjson.DeleteBytes(out, path)
		if err != nil {
			return nil, nil, fmt.Errorf("strip %s: %w", path, err)
		}
	}
	return out, sidecar, nil
}

// Restore writes the sidecar values back into doc. A restored field is
// appended to its parent object when the key is absent.
func (g *Guard) Restore(doc []byte, sidecar Sidecar) ([]byte, error) {
	out := doc
	for _, f := range sidecar {
		var err error
		out, err = sjson.SetRawBytes(out, f.Path, f.Value)
		if err != nil {
			return nil, fmt.Errorf("restore %s: %w", f.Path, err)
		}
	}
	return out, nil
}
