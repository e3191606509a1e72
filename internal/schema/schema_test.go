package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

const blogSchema = `
required: [title, publishDate]
properties:
  title:
    type: string
    min_length: 1
    max_length: 120
  publishDate:
    type: date
  rating:
    type: number
    minimum: 0
    maximum: 5
  draft:
    type: boolean
  status:
    type: string
    enum: [draft, published]
  tags:
    type: array
    items:
      type: string
      pattern: "^[a-z-]+$"
`

func TestParseYAML_PreservesFieldOrder(t *testing.T) {
	s, err := ParseYAML([]byte(blogSchema))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	var names []string
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	want := "title,publishDate,rating,draft,status,tags"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("field order = %s, want %s", got, want)
	}
	if !s.AllowsUnknown() {
		t.Error("unknown fields should be tolerated by default")
	}
	tags, _ := s.Field("tags")
	if tags.Items == nil || tags.Items.Kind != KindString || tags.Items.Pattern == nil {
		t.Errorf("tags items not compiled: %+v", tags.Items)
	}
	status, _ := s.Field("status")
	if len(status.Enum) != 2 || status.Enum[0] != "draft" {
		t.Errorf("status enum = %v", status.Enum)
	}
}

func TestCompile_AdditionalPropertiesFalse(t *testing.T) {
	s, err := ParseYAML([]byte("additional_properties: false\nproperties:\n  a:\n    type: string\n"))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}
	if s.AllowsUnknown() {
		t.Error("additional_properties: false should forbid unknown fields")
	}
}

func TestCompile_RejectsStructuralErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"array without items", "properties:\n  tags:\n    type: array\n", "requires an items definition"},
		{"required not declared", "required: [title]\nproperties:\n  body:\n    type: string\n", "required but not declared"},
		{"unknown type", "properties:\n  x:\n    type: object\n", "type"},
		{"missing type", "properties:\n  x:\n    format: email\n", "type"},
		{"pattern on number", "properties:\n  n:\n    type: number\n    pattern: \"^1$\"\n", "pattern only applies"},
		{"bad regex", "properties:\n  s:\n    type: string\n    pattern: \"([\"\n", "invalid pattern"},
		{"length on number", "properties:\n  n:\n    type: number\n    min_length: 1\n", "only apply to string"},
		{"range on string", "properties:\n  s:\n    type: string\n    minimum: 1\n", "only apply to number"},
		{"min over max", "properties:\n  n:\n    type: number\n    minimum: 5\n    maximum: 1\n", "exceeds maximum"},
		{"enum kind", "properties:\n  n:\n    type: number\n    enum: [one]\n", "enum value #0"},
		{"format on number", "properties:\n  n:\n    type: number\n    format: email\n", "only applies to string"},
		{"unknown format", "properties:\n  s:\n    type: string\n    format: phone\n", "format"},
		{"items on string", "properties:\n  s:\n    type: string\n    items:\n      type: string\n", "items only applies"},
		{"nested array without items", "properties:\n  m:\n    type: array\n    items:\n      type: array\n", `"m[]"`},
		{"duplicate property", "properties:\n  a:\n    type: string\n  a:\n    type: number\n", "duplicate property"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCompile_ReportsAllErrors(t *testing.T) {
	_, err := ParseYAML([]byte("required: [missing]\nproperties:\n  tags:\n    type: array\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "items definition") || !strings.Contains(msg, "required but not declared") {
		t.Errorf("expected both problems, got %q", msg)
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-01-01", "2024-01-01T10:00:00Z", "2024-01-01T10:00:00+02:00", "2024-01-01 10:00:00"} {
		if _, ok := ParseDate(s); !ok {
			t.Errorf("ParseDate(%q) failed", s)
		}
	}
	for _, s := range []string{"", "yesterday", "2024-13-01", "01/02/2024"} {
		if _, ok := ParseDate(s); ok {
			t.Errorf("ParseDate(%q) should fail", s)
		}
	}
}

func TestNormalizeValue(t *testing.T) {
	if v, ok := NormalizeValue(KindNumber, 3); !ok || v != 3.0 {
		t.Errorf("int -> %v %v", v, ok)
	}
	if _, ok := NormalizeValue(KindNumber, "3"); ok {
		t.Error("string should not normalise to number")
	}
	if _, ok := NormalizeValue(KindDate, "not a date"); ok {
		t.Error("bad date should not normalise")
	}
	if v, ok := NormalizeValue(KindBoolean, true); !ok || v != true {
		t.Errorf("bool -> %v %v", v, ok)
	}
}

func TestDefinition_MarshalJSONKeepsOrder(t *testing.T) {
	s, err := ParseYAML([]byte("required: [zeta]\nproperties:\n  zeta:\n    type: string\n  alpha:\n    type: number\n    minimum: 1\n"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(s.Definition())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"properties":{"zeta":{"type":"string"},"alpha":{"type":"number","minimum":1}},"required":["zeta"]}`
	if string(data) != want {
		t.Errorf("json = %s\nwant %s", data, want)
	}
}
