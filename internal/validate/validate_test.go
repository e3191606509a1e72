package validate

import (
	"testing"

	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/schema"
)

func mustSchema(t *testing.T, y string) *schema.Schema {
	t.Helper()
	s, err := schema.ParseYAML([]byte(y))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

const postSchema = `
required: [title, publishDate]
properties:
  title:
    type: string
    min_length: 3
    max_length: 10
  publishDate:
    type: date
  rating:
    type: number
    minimum: 1
    maximum: 5
  status:
    type: string
    enum: [draft, published]
  slug:
    type: string
    pattern: "^[a-z-]+$"
  email:
    type: string
    format: email
  homepage:
    type: string
    format: uri
  featured:
    type: boolean
  tags:
    type: array
    items:
      type: string
      enum: [go, rust, tutorial]
`

func kinds(errs []models.ValidationError) map[string]models.ErrorKind {
	out := make(map[string]models.ErrorKind, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Kind
	}
	return out
}

// Scenario A from the engine contract: both required fields are reported.
func TestValidate_RequiredFieldsMissing(t *testing.T) {
	s := mustSchema(t, postSchema)
	res := Validate(s, models.NewMetadata("author", "Jane"))
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	var missing []string
	for _, e := range res.Errors {
		if e.Kind == models.KindRequiredFieldMissing {
			missing = append(missing, e.Field)
		}
	}
	if len(missing) != 2 || missing[0] != "title" || missing[1] != "publishDate" {
		t.Errorf("missing = %v, want [title publishDate]", missing)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Field != "author" || res.Warnings[0].Kind != models.KindUnknownField {
		t.Errorf("warnings = %+v, want one unknown-field warning for author", res.Warnings)
	}
}

func TestValidate_ValidItem(t *testing.T) {
	s := mustSchema(t, postSchema)
	meta := models.NewMetadata(
		"title", "Hello",
		"publishDate", "2024-01-01",
		"rating", 4,
		"status", "draft",
		"slug", "hello-world",
		"email", "jane@example.com",
		"homepage", "https://example.com/jane",
		"featured", false,
		"tags", []any{"go", "tutorial"},
	)
	res := Validate(s, meta)
	if !res.Valid {
		t.Fatalf("expected valid, errors = %+v", res.Errors)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Errorf("unexpected diagnostics: %+v %+v", res.Errors, res.Warnings)
	}
	if res.CheckedAt.IsZero() {
		t.Error("CheckedAt should be set")
	}
}

func TestValidate_ConstraintViolations(t *testing.T) {
	s := mustSchema(t, postSchema)
	meta := models.NewMetadata(
		"title", "Hi",
		"publishDate", "someday",
		"rating", 9.5,
		"status", "archived",
		"slug", "Hello World",
		"email", "not-an-email",
		"featured", "yes",
		"tags", []any{"go", "python", 3},
	)
	res := Validate(s, meta)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	got := kinds(res.Errors)
	want := map[string]models.ErrorKind{
		"title":       models.KindOutOfRange,
		"publishDate": models.KindBadFormat,
		"rating":      models.KindOutOfRange,
		"status":      models.KindInvalidEnumValue,
		"slug":        models.KindPatternMismatch,
		"email":       models.KindBadFormat,
		"featured":    models.KindTypeMismatch,
		"tags[1]":     models.KindInvalidEnumValue,
		"tags[2]":     models.KindTypeMismatch,
	}
	for field, kind := range want {
		if got[field] != kind {
			t.Errorf("%s: kind = %q, want %q", field, got[field], kind)
		}
	}
	if len(res.Errors) != len(want) {
		t.Errorf("got %d errors, want %d: %+v", len(res.Errors), len(want), res.Errors)
	}
}

func TestValidate_TypeMismatchCarriesDiagnostics(t *testing.T) {
	s := mustSchema(t, postSchema)
	res := Validate(s, models.NewMetadata("title", 42, "publishDate", "2024-01-01"))
	if len(res.Errors) != 1 {
		t.Fatalf("errors = %+v", res.Errors)
	}
	e := res.Errors[0]
	if e.Kind != models.KindTypeMismatch || e.Expected != "string" || e.Value != 42 {
		t.Errorf("error = %+v", e)
	}
}

func TestValidate_UnknownFieldForbidden(t *testing.T) {
	s := mustSchema(t, "additional_properties: false\nproperties:\n  title:\n    type: string\n")
	res := Validate(s, models.NewMetadata("title", "x", "extra", 1))
	if res.Valid {
		t.Fatal("unknown field should invalidate when forbidden")
	}
	if len(res.Errors) != 1 || res.Errors[0].Kind != models.KindUnknownField || res.Errors[0].Field != "extra" {
		t.Errorf("errors = %+v", res.Errors)
	}
}

func TestValidate_NullRequiredIsMissing(t *testing.T) {
	s := mustSchema(t, "required: [title]\nproperties:\n  title:\n    type: string\n")
	res := Validate(s, models.NewMetadata("title", nil))
	if res.Valid || res.Errors[0].Kind != models.KindRequiredFieldMissing {
		t.Errorf("result = %+v", res)
	}
}

func TestValidate_NestedArrays(t *testing.T) {
	s := mustSchema(t, "properties:\n  matrix:\n    type: array\n    items:\n      type: array\n      items:\n        type: number\n        maximum: 10\n")
	res := Validate(s, models.NewMetadata("matrix", []any{[]any{1, 2}, []any{3, 11}}))
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if res.Errors[0].Field != "matrix[1][1]" || res.Errors[0].Kind != models.KindOutOfRange {
		t.Errorf("errors = %+v", res.Errors)
	}
}

// Validity and the error list must agree for every input.
func TestValidate_ValidIffNoErrors(t *testing.T) {
	s := mustSchema(t, postSchema)
	inputs := []models.Metadata{
		{},
		models.NewMetadata("title", "Hello", "publishDate", "2024-01-01"),
		models.NewMetadata("title", "Hello", "publishDate", "2024-01-01", "unknown", true),
		models.NewMetadata("title", []any{}, "publishDate", 5),
		models.NewMetadata("tags", []any{nil}),
	}
	for i, meta := range inputs {
		res := Validate(s, meta)
		if res.Valid != (len(res.Errors) == 0) {
			t.Errorf("input %d: Valid=%v with %d errors", i, res.Valid, len(res.Errors))
		}
	}
}
