package redact_test

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/valpere/cvtran/internal/chunker"
	"github.com/valpere/cvtran/internal/redact"
)

const photo = `"data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk"`

func TestStrip_RemovesConfiguredFields(t *testing.T) {
	doc := []byte(`{
		"personalInfo": {"name": "Ada", "photo": ` + photo + `},
		"title": "Engineer"
	}`)

	g := redact.New(nil)
	stripped, sidecar, err := g.Strip(doc)
	if err != nil {
		t.Fatalf("Strip() error: %v", err)
	}
	if strings.Contains(string(stripped), "base64") {
		t.Errorf("photo still present: %s", stripped)
	}
	if want := `{"personalInfo":{"name":"Ada"},"title":"Engineer"}`; string(stripped) != want {
		t.Errorf("Strip() = %s, want %s", stripped, want)
	}
	if len(sidecar) != 1 || sidecar[0].Path != "personalInfo.photo" {
		t.Fatalf("unexpected sidecar %+v", sidecar)
	}
}

func TestStrip_NoFields(t *testing.T) {
	g := redact.New([]string{"photo"})
	stripped, sidecar, err := g.Strip([]byte(`["a", "b"]`))
	if err != nil {
		t.Fatalf("Strip() error: %v", err)
	}
	if string(stripped) != `["a","b"]` {
		t.Errorf("Strip() = %s", stripped)
	}
	if len(sidecar) != 0 {
		t.Errorf("expected empty sidecar, got %+v", sidecar)
	}
}

func TestStrip_InvalidJSON(t *testing.T) {
	if _, _, err := redact.New(nil).Strip([]byte(`{"a":`)); err == nil {
		t.Error("expected error for invalid document")
	}
}

func TestRoundTrip(t *testing.T) {
	doc := []byte(`{"personalInfo":{"name":"Ada","photo":` + photo + `},"summary":"Builds engines"}`)
	g := redact.New(nil)

	stripped, sidecar, err := g.Strip(doc)
	if err != nil {
		t.Fatalf("Strip() error: %v", err)
	}

	for i, f := range chunker.SplitDocument(string(stripped), 10).Fragments {
		if strings.Contains(f, "base64") {
			t.Errorf("fragment %d contains the redacted field: %s", i, f)
		}
	}

	translated := []byte(strings.Replace(string(stripped), "Builds engines", "Construye motores", 1))
	restored, err := g.Restore(translated, sidecar)
	if err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	if got := gjson.GetBytes(restored, "personalInfo.photo").Raw; got != photo {
		t.Errorf("restored photo = %s, want %s", got, photo)
	}
	if got := gjson.GetBytes(restored, "summary").String(); got != "Construye motores" {
		t.Errorf("summary = %q", got)
	}
}

func TestSameFingerprintInputAcrossPhotos(t *testing.T) {
	g := redact.New(nil)
	a, _, _ := g.Strip([]byte(`{"photo":"AAAA","title":"Engineer"}`))
	b, _, _ := g.Strip([]byte(`{"photo":"BBBB","title":"Engineer"}`))
	if string(a) != string(b) {
		t.Errorf("documents differing only in photo should strip identically: %s vs %s", a, b)
	}
}
