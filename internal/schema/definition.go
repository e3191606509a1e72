package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldSpec is the configuration form of a field definition, as written in
// the collections section of the config file.
type FieldSpec struct {
	Type      string     `yaml:"type" json:"type"`
	Format    string     `yaml:"format,omitempty" json:"format,omitempty"`
	Pattern   string     `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Minimum   *float64   `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum   *float64   `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinLength *int       `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength *int       `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Enum      []any      `yaml:"enum,omitempty" json:"enum,omitempty"`
	Items     *FieldSpec `yaml:"items,omitempty" json:"items,omitempty"`
}

// Property is one named entry of Properties.
type Property struct {
	Name string
	Spec FieldSpec
}

// Properties keeps field definitions in the order they were declared.
type Properties []Property

// UnmarshalYAML decodes a YAML mapping while preserving key order.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	out := make(Properties, 0, len(node.Content)/2)
	seen := make(map[string]struct{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if _, dup := seen[key.Value]; dup {
			return fmt.Errorf("line %d: duplicate property %q", key.Line, key.Value)
		}
		seen[key.Value] = struct{}{}
		var spec FieldSpec
		if err := val.Decode(&spec); err != nil {
			return fmt.Errorf("property %q: %w", key.Value, err)
		}
		out = append(out, Property{Name: key.Value, Spec: spec})
	}
	*p = out
	return nil
}

// MarshalJSON encodes the properties as an object in declaration order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(prop.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(prop.Spec)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Definition is the configuration form of a collection schema.
type Definition struct {
	Properties Properties `yaml:"properties" json:"properties"`
	Required   []string   `yaml:"required" json:"required,omitempty"`
	// AdditionalProperties defaults to true: unknown fields are kept and
	// reported as warnings.
	AdditionalProperties *bool `yaml:"additional_properties" json:"additional_properties,omitempty"`
}

// ParseYAML decodes and compiles a schema definition from YAML.
func ParseYAML(data []byte) (*Schema, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	return Compile(def)
}
