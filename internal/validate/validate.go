// Package validate checks item metadata against a collection schema.
package validate

import (
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/schema"
)

// Validate checks meta against s. It has no side effects; the only
// non-deterministic part of the result is CheckedAt.
func Validate(s *schema.Schema, meta models.Metadata) models.ValidationResult {
	var errs, warns []models.ValidationError

	for _, name := range s.Required() {
		if v, ok := meta.Get(name); !ok || v == nil {
			f, _ := s.Field(name)
			errs = append(errs, models.ValidationError{
				Field:    name,
				Kind:     models.KindRequiredFieldMissing,
				Message:  fmt.Sprintf("required field %q is missing", name),
				Expected: f.Kind.String(),
			})
		}
	}

	for _, name := range meta.Keys() {
		v, _ := meta.Get(name)
		f, known := s.Field(name)
		if !known {
			e := models.ValidationError{
				Field:   name,
				Kind:    models.KindUnknownField,
				Message: fmt.Sprintf("field %q is not declared in the schema", name),
				Value:   v,
			}
			if s.AllowsUnknown() {
				warns = append(warns, e)
			} else {
				errs = append(errs, e)
			}
			continue
		}
		if v == nil {
			continue
		}
		errs = append(errs, checkValue(f, name, v)...)
	}

	return models.NewValidationResult(errs, warns, time.Now().UTC())
}

// checkValue validates one present value. The type check gates the rest;
// every other constraint is reported independently.
func checkValue(f *schema.Field, path string, v any) []models.ValidationError {
	fail := func(kind models.ErrorKind, format string, args ...any) models.ValidationError {
		return models.ValidationError{
			Field:    path,
			Kind:     kind,
			Message:  fmt.Sprintf(format, args...),
			Expected: expected(f),
			Value:    v,
		}
	}

	if !kindMatches(f.Kind, v) {
		return []models.ValidationError{fail(models.KindTypeMismatch, "expected %s, got %s", f.Kind, describe(v))}
	}

	var errs []models.ValidationError

	switch f.Kind {
	case schema.KindDate:
		if _, ok := schema.ParseDate(v.(string)); !ok {
			errs = append(errs, fail(models.KindBadFormat, "%q is not a valid date", v))
		}
	case schema.KindString:
		if f.Format != "" {
			if err := checkFormat(f.Format, v.(string)); err != nil {
				errs = append(errs, fail(models.KindBadFormat, "%q is not a valid %s: %v", v, f.Format, err))
			}
		}
	}

	if f.Pattern != nil && !f.Pattern.MatchString(v.(string)) {
		errs = append(errs, fail(models.KindPatternMismatch, "%q does not match pattern %s", v, f.Pattern))
	}

	if f.MinLength != nil || f.MaxLength != nil {
		n := utf8.RuneCountInString(v.(string))
		if f.MinLength != nil && n < *f.MinLength {
			errs = append(errs, fail(models.KindOutOfRange, "length %d is below minimum %d", n, *f.MinLength))
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			errs = append(errs, fail(models.KindOutOfRange, "length %d exceeds maximum %d", n, *f.MaxLength))
		}
	}

	if f.Minimum != nil || f.Maximum != nil {
		n, _ := schema.ToFloat(v)
		if f.Minimum != nil && n < *f.Minimum {
			errs = append(errs, fail(models.KindOutOfRange, "%v is below minimum %v", n, *f.Minimum))
		}
		if f.Maximum != nil && n > *f.Maximum {
			errs = append(errs, fail(models.KindOutOfRange, "%v exceeds maximum %v", n, *f.Maximum))
		}
	}

	if len(f.Enum) > 0 {
		norm, _ := schema.NormalizeValue(f.Kind, v)
		if !slices.Contains(f.Enum, norm) {
			errs = append(errs, fail(models.KindInvalidEnumValue, "%v is not one of %v", v, f.Enum))
		}
	}

	if f.Kind == schema.KindArray {
		for i, elem := range v.([]any) {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if elem == nil {
				errs = append(errs, models.ValidationError{
					Field:    elemPath,
					Kind:     models.KindTypeMismatch,
					Message:  "array element is null",
					Expected: expected(f.Items),
				})
				continue
			}
			errs = append(errs, checkValue(f.Items, elemPath, elem)...)
		}
	}

	return errs
}

func kindMatches(k schema.Kind, v any) bool {
	switch k {
	case schema.KindString, schema.KindDate:
		_, ok := v.(string)
		return ok
	case schema.KindNumber:
		_, ok := schema.ToFloat(v)
		return ok
	case schema.KindBoolean:
		_, ok := v.(bool)
		return ok
	case schema.KindArray:
		_, ok := v.([]any)
		return ok
	}
	return false
}

func expected(f *schema.Field) string {
	switch {
	case f.Kind == schema.KindArray && f.Items != nil:
		return "array of " + expected(f.Items)
	case f.Format != "":
		return f.Kind.String() + " (" + f.Format + ")"
	default:
		return f.Kind.String()
	}
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := schema.ToFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
