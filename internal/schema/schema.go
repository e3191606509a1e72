// Package schema describes the allowed shape of a collection's items and
// compiles configuration definitions into immutable Schema values.
package schema

import (
	"regexp"
	"slices"
	"time"
)

// Kind is the value kind of a field.
type Kind uint8

// Field kinds.
const (
	KindString Kind = iota + 1
	KindNumber
	KindBoolean
	KindDate
	KindArray
)

var kindNames = map[Kind]string{
	KindString:  "string",
	KindNumber:  "number",
	KindBoolean: "boolean",
	KindDate:    "date",
	KindArray:   "array",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a configuration type name to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

// Format tags recognised on string fields.
const (
	FormatDate     = "date"
	FormatDateTime = "date-time"
	FormatEmail    = "email"
	FormatURI      = "uri"
	FormatUUID     = "uuid"
)

var knownFormats = []any{FormatDate, FormatDateTime, FormatEmail, FormatURI, FormatUUID}

// Field is a compiled field definition. Constraint pointers are nil when unset.
type Field struct {
	Name      string
	Kind      Kind
	Format    string
	Pattern   *regexp.Regexp
	Minimum   *float64
	Maximum   *float64
	MinLength *int
	MaxLength *int
	// Enum holds normalised allowed values: float64 for numbers, string for
	// string and date kinds, bool for booleans.
	Enum []any
	// Items describes array elements; set iff Kind == KindArray.
	Items *Field
}

// Scalar reports whether the field holds a single comparable value.
func (f *Field) Scalar() bool { return f.Kind != KindArray }

// Textual reports whether values of the field are compared as text.
func (f *Field) Textual() bool { return f.Kind == KindString }

// Schema is the immutable, compiled shape of a collection. A schema change
// produces a new Schema; instances are never mutated after Compile.
type Schema struct {
	fields       []*Field
	byName       map[string]*Field
	required     []string
	allowUnknown bool
	spec         Definition
}

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []*Field { return slices.Clone(s.fields) }

// Field looks up a top-level field by name.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// Required returns the required field names in declaration order.
func (s *Schema) Required() []string { return slices.Clone(s.required) }

// AllowsUnknown reports whether fields absent from the schema are tolerated.
func (s *Schema) AllowsUnknown() bool { return s.allowUnknown }

// Definition returns the configuration form the schema was compiled from.
func (s *Schema) Definition() Definition { return s.spec }

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate parses the date and date-time spellings accepted for date fields.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
