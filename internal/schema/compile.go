package schema

import (
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/quarry/internal/apperr"
)

// Error describes one structural problem in a schema definition.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Reason)
}

// Is matches apperr.ErrInvalidSchema.
func (e *Error) Is(target error) bool { return target == apperr.ErrInvalidSchema }

var kindTypes = []any{"string", "number", "boolean", "date", "array"}

// Compile checks a definition for structural errors and returns the
// immutable Schema. All problems are reported together.
func Compile(def Definition) (*Schema, error) {
	s := &Schema{
		byName:       make(map[string]*Field, len(def.Properties)),
		allowUnknown: def.AdditionalProperties == nil || *def.AdditionalProperties,
		spec:         def,
	}

	var errs []error
	for _, p := range def.Properties {
		if p.Name == "" {
			errs = append(errs, &Error{Reason: "empty property name"})
			continue
		}
		f, fieldErrs := compileField(p.Name, p.Spec)
		errs = append(errs, fieldErrs...)
		if f != nil {
			s.fields = append(s.fields, f)
			s.byName[p.Name] = f
		}
	}

	seen := make(map[string]struct{}, len(def.Required))
	for _, name := range def.Required {
		if _, dup := seen[name]; dup {
			errs = append(errs, &Error{Field: name, Reason: "listed twice in required"})
			continue
		}
		seen[name] = struct{}{}
		if !def.Properties.has(name) {
			errs = append(errs, &Error{Field: name, Reason: "required but not declared in properties"})
			continue
		}
		s.required = append(s.required, name)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func (p Properties) has(name string) bool {
	for _, prop := range p {
		if prop.Name == name {
			return true
		}
	}
	return false
}

func compileField(path string, spec FieldSpec) (*Field, []error) {
	err := validation.ValidateStruct(&spec,
		validation.Field(&spec.Type, validation.Required, validation.In(kindTypes...)),
		validation.Field(&spec.Format, validation.In(knownFormats...)),
	)
	if err != nil {
		return nil, []error{&Error{Field: path, Reason: err.Error()}}
	}

	kind, _ := ParseKind(spec.Type)
	f := &Field{Name: path, Kind: kind, Format: spec.Format}
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, &Error{Field: path, Reason: fmt.Sprintf(format, args...)})
	}

	if spec.Format != "" && kind != KindString {
		bad("format %q only applies to string fields", spec.Format)
	}

	if spec.Pattern != "" {
		if kind != KindString {
			bad("pattern only applies to string fields")
		} else if re, reErr := regexp.Compile(spec.Pattern); reErr != nil {
			bad("invalid pattern: %v", reErr)
		} else {
			f.Pattern = re
		}
	}

	if spec.MinLength != nil || spec.MaxLength != nil {
		switch {
		case kind != KindString:
			bad("min_length/max_length only apply to string fields")
		case spec.MinLength != nil && *spec.MinLength < 0, spec.MaxLength != nil && *spec.MaxLength < 0:
			bad("length bounds must be non-negative")
		case spec.MinLength != nil && spec.MaxLength != nil && *spec.MinLength > *spec.MaxLength:
			bad("min_length %d exceeds max_length %d", *spec.MinLength, *spec.MaxLength)
		default:
			f.MinLength, f.MaxLength = spec.MinLength, spec.MaxLength
		}
	}

	if spec.Minimum != nil || spec.Maximum != nil {
		switch {
		case kind != KindNumber:
			bad("minimum/maximum only apply to number fields")
		case spec.Minimum != nil && spec.Maximum != nil && *spec.Minimum > *spec.Maximum:
			bad("minimum %v exceeds maximum %v", *spec.Minimum, *spec.Maximum)
		default:
			f.Minimum, f.Maximum = spec.Minimum, spec.Maximum
		}
	}

	if len(spec.Enum) > 0 {
		if kind == KindArray {
			bad("enum is not supported on array fields; declare it on items")
		}
		for i, raw := range spec.Enum {
			v, ok := NormalizeValue(kind, raw)
			if !ok {
				bad("enum value #%d (%v) is not a %s", i, raw, kind)
				continue
			}
			f.Enum = append(f.Enum, v)
		}
	}

	switch {
	case kind == KindArray && spec.Items == nil:
		bad("array field requires an items definition")
	case kind == KindArray:
		items, itemErrs := compileField(path+"[]", *spec.Items)
		errs = append(errs, itemErrs...)
		f.Items = items
	case spec.Items != nil:
		bad("items only applies to array fields")
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return f, nil
}

// NormalizeValue converts a decoded scalar to the canonical Go type used for
// kind: float64 for numbers, string for strings and dates, bool for booleans.
func NormalizeValue(kind Kind, v any) (any, bool) {
	switch kind {
	case KindNumber:
		f, ok := ToFloat(v)
		return f, ok
	case KindBoolean:
		b, ok := v.(bool)
		return b, ok
	case KindString:
		s, ok := v.(string)
		return s, ok
	case KindDate:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		if _, ok := ParseDate(s); !ok {
			return nil, false
		}
		return s, true
	}
	return nil, false
}

// ToFloat converts the numeric types produced by the YAML and JSON decoders.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
