package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\nslug: \" Custom Slug \"\npublishDate: 2024-01-01\ntags:\n  - go\n  - quarry\nrating: 4.5\n---\n# Hello\nBody text.\n")
	r, err := Parse("posts/hello.md", input, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(r.Metadata.Keys(), ","); got != "title,slug,publishDate,tags,rating" {
		t.Errorf("key order = %s", got)
	}
	if r.DeclaredID != "Custom Slug" {
		t.Errorf("declared id = %q", r.DeclaredID)
	}
	if v, _ := r.Metadata.Get("publishDate"); v != "2024-01-01" {
		t.Errorf("publishDate = %#v, want string", v)
	}
	if v, _ := r.Metadata.Get("tags"); len(v.([]any)) != 2 {
		t.Errorf("tags = %#v", v)
	}
	if r.Body == nil || *r.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %v", r.Body)
	}
}

func TestParse_TimestampsKeepSourceText(t *testing.T) {
	input := []byte(`---
title: Dates
published: 2024-01-01T10:30:00Z
quoted: "2024-01-02"
history:
  - 2023-12-01
  - {day: 2023-11-01, note: first}
first: &d 2023-10-01
again: *d
---
`)
	r, err := Parse("dates.md", input, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"title":     "Dates",
		"published": "2024-01-01T10:30:00Z",
		"quoted":    "2024-01-02",
		"history": []any{
			"2023-12-01",
			map[string]any{"day": "2023-11-01", "note": "first"},
		},
		"first": "2023-10-01",
		"again": "2023-10-01",
	}
	if diff := cmp.Diff(want, r.Metadata.Map()); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse("a.md", []byte("# Just a heading\nSome text.\n"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Metadata.Len() != 0 {
		t.Errorf("expected empty metadata, got %v", r.Metadata.Keys())
	}
	if *r.Body != "# Just a heading\nSome text.\n" {
		t.Errorf("body = %q", *r.Body)
	}
}

func TestParse_EmptyFrontmatter(t *testing.T) {
	r, err := Parse("a.md", []byte("---\n---\nBody\n"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Metadata.Len() != 0 || *r.Body != "Body\n" {
		t.Errorf("metadata = %v, body = %q", r.Metadata.Keys(), *r.Body)
	}
}

func TestParse_InvalidYAMLIsAnError(t *testing.T) {
	_, err := Parse("bad.md", []byte("---\n: invalid: yaml: {{{\n---\nBody\n"), Options{})
	if err == nil {
		t.Fatal("expected parse error for invalid YAML")
	}
}

func TestParse_UnterminatedFrontmatter(t *testing.T) {
	_, err := Parse("bad.md", []byte("---\ntitle: x\nno closing\n"), Options{})
	if err == nil || !strings.Contains(err.Error(), "closing") {
		t.Fatalf("err = %v", err)
	}
}

func TestParse_FrontmatterMustBeMapping(t *testing.T) {
	_, err := Parse("bad.md", []byte("---\n- a\n- b\n---\n"), Options{})
	if err == nil {
		t.Fatal("expected error for list front matter")
	}
}

func TestParse_JSONData(t *testing.T) {
	r, err := Parse("data/item.json", []byte(`{"name":"Widget","price":9.5,"id":"w-1","tags":["a"]}`), Options{SlugField: "id"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Body != nil {
		t.Error("JSON content has no body")
	}
	if r.DeclaredID != "w-1" {
		t.Errorf("declared id = %q", r.DeclaredID)
	}
	if got := strings.Join(r.Metadata.Keys(), ","); got != "name,price,id,tags" {
		t.Errorf("key order = %s", got)
	}
}

func TestParse_JSONMustBeObject(t *testing.T) {
	if _, err := Parse("x.json", []byte(`[1,2,3]`), Options{}); err == nil {
		t.Fatal("expected error for top-level array")
	}
}

func TestParse_Unsupported(t *testing.T) {
	_, err := Parse("notes.txt", []byte("hi"), Options{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
	if Supported("notes.txt") || !Supported("a.MD") || !Supported("b.json") {
		t.Error("Supported disagrees with Parse")
	}
}

func TestParse_ThematicBreakIsBody(t *testing.T) {
	r, err := Parse("a.md", []byte("----\ntext\n"), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Metadata.Len() != 0 {
		t.Error("thematic break should not start front matter")
	}
}
