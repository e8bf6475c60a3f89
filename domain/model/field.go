package model

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// FieldType is the declared type of a model field.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeInt      FieldType = "int"
	TypeBool     FieldType = "bool"
	TypeDate     FieldType = "date"
	TypeEmail    FieldType = "email"
	TypeObject   FieldType = "object"
	TypeArray    FieldType = "array"
	TypePassword FieldType = "password" // bcrypt hashed, never returned
)

// Field defines one data field of a model.
type Field struct {
	// Name is taken from the mapping key in YAML definitions.
	Name string `yaml:"-"`

	Type FieldType `yaml:"type"`

	// Required fields must be present (and non-empty) on full writes.
	Required bool `yaml:"required,omitempty"`

	// Unique fields get a unique index in the store.
	Unique bool `yaml:"unique,omitempty"`

	// Default is applied on create when the field is absent.
	Default any `yaml:"default,omitempty"`

	// Enum lists the accepted values for string fields.
	Enum []string `yaml:"enum,omitempty"`

	Min       *float64 `yaml:"min,omitempty"`
	Max       *float64 `yaml:"max,omitempty"`
	MinLength *int     `yaml:"minLength,omitempty"`
	MaxLength *int     `yaml:"maxLength,omitempty"`

	// Match is a regular expression string values must match.
	Match string `yaml:"match,omitempty"`

	// Hidden fields are stored but never returned.
	Hidden bool `yaml:"hidden,omitempty"`

	pattern *regexp.Regexp
}

// IsHidden reports whether the field is excluded from every response.
func (f Field) IsHidden() bool {
	return f.Hidden || f.Type == TypePassword
}

// IsTextual reports whether values of the field are strings.
func (f Field) IsTextual() bool {
	switch f.Type {
	case TypeString, TypeEmail, TypePassword:
		return true
	}
	return false
}

// IsNumeric reports whether values of the field are numbers.
func (f Field) IsNumeric() bool {
	return f.Type == TypeNumber || f.Type == TypeInt
}

// Filterable reports whether the field may be used in query filters.
func (f Field) Filterable() bool {
	switch f.Type {
	case TypeObject, TypeArray, TypePassword:
		return false
	}
	return !f.Hidden
}

func (f Field) kind() string {
	switch f.Type {
	case TypeNumber, TypeInt:
		return "Number"
	case TypeBool:
		return "Boolean"
	case TypeDate:
		return "Date"
	case TypeObject:
		return "Object"
	case TypeArray:
		return "Array"
	default:
		return "String"
	}
}

// Fields is an ordered list of fields. In YAML it is written as a mapping
// from field name to definition; the mapping order is kept.
type Fields []Field

// UnmarshalYAML decodes a mapping node preserving key order.
func (fs *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: fields must be a mapping", node.Line)
	}

	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var f Field
		// "name: string" is shorthand for "name: {type: string}"
		if valNode.Kind == yaml.ScalarNode {
			f.Type = FieldType(valNode.Value)
		} else if err := valNode.Decode(&f); err != nil {
			return fmt.Errorf("field %q: %w", keyNode.Value, err)
		}
		f.Name = keyNode.Value
		out = append(out, f)
	}

	*fs = out
	return nil
}
