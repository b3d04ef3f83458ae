package resource_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sugawarayuuta/sonnet"

	"github.com/momentics/hioload-gateway/api"
	"github.com/momentics/hioload-gateway/resource"
)

func TestStaticMatch(t *testing.T) {
	s, err := resource.NewStatic([]resource.Representation{
		{ContentType: resource.TypeHTML, Body: []byte("<p>hi</p>")},
		{ContentType: resource.TypeJSON, Body: []byte(`{"hi":true}`)},
	})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		accept string
		ct     string
		ok     bool
	}{
		{"*/*", resource.TypeHTML, true},
		{"application/json", resource.TypeJSON, true},
		{"Application/JSON; q=0.5", resource.TypeJSON, true},
		{"application/*", resource.TypeJSON, true},
		{"text/*", resource.TypeHTML, true},
		{"application/xml", "", false},
		{"image/*", "", false},
	}
	for _, c := range cases {
		_, ct, ok := s.Render(c.accept)
		if ok != c.ok || ct != c.ct {
			t.Errorf("Render(%q) = %q %v, want %q %v", c.accept, ct, ok, c.ct, c.ok)
		}
	}
}

func TestGzipRepresentation(t *testing.T) {
	body := bytes.Repeat([]byte("compressible "), 200)
	s, err := resource.NewStatic([]resource.Representation{{ContentType: resource.TypeText, Body: body}}, resource.WithGzipLevel(gzip.BestSpeed))
	if err != nil {
		t.Fatal(err)
	}
	gz, ct, ok := s.RenderGzip("text/plain")
	if !ok || ct != resource.TypeText {
		t.Fatalf("gzip render = %q %v", ct, ok)
	}
	if len(gz) >= len(body) {
		t.Fatalf("gzip body not smaller: %d >= %d", len(gz), len(body))
	}
	r, err := gzip.NewReader(bytes.NewReader(gz))
	if err != nil {
		t.Fatal(err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plain, body) {
		t.Fatal("gzip round trip mismatch")
	}
}

func TestMinGzipSize(t *testing.T) {
	s, err := resource.Text("tiny", resource.WithMinGzipSize(64))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := s.RenderGzip("*/*"); ok {
		t.Fatal("small body compressed")
	}
	if b, _, ok := s.Render("*/*"); !ok || string(b) != "tiny" {
		t.Fatalf("plain = %q %v", b, ok)
	}
}

func TestJSON(t *testing.T) {
	type user struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	s, err := resource.JSON(user{Name: "ada", Age: 36})
	if err != nil {
		t.Fatal(err)
	}
	b, ct, ok := s.Render("application/json")
	if !ok || ct != resource.TypeJSON {
		t.Fatalf("render = %q %v", ct, ok)
	}
	var got user
	if err := sonnet.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "ada" || got.Age != 36 {
		t.Fatalf("decoded %+v", got)
	}
	if _, ct, ok := s.Render("text/plain"); !ok || ct != resource.TypeText {
		t.Fatalf("text fallback = %q %v", ct, ok)
	}
}

func TestNewStaticRejectsEmpty(t *testing.T) {
	if _, err := resource.NewStatic(nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
	if _, err := resource.NewStatic([]resource.Representation{{Body: []byte("x")}}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}
