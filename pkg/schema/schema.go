// Package schema describes the shape of collections and validates operation
// payloads against them.
package schema

import (
	"encoding/json"

	"github.com/carrysync/carry/pkg/engineerr"
)

// FieldType is the set of value shapes a field may hold.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInt       FieldType = "int"
	FieldFloat     FieldType = "float"
	FieldBool      FieldType = "bool"
	FieldTimestamp FieldType = "timestamp"
	FieldJSON      FieldType = "json"
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "String"
	case FieldInt:
		return "Int"
	case FieldFloat:
		return "Float"
	case FieldBool:
		return "Bool"
	case FieldTimestamp:
		return "Timestamp"
	case FieldJSON:
		return "Json"
	default:
		return "Unknown"
	}
}

// FieldDef describes one field of a collection.
type FieldDef struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Required builds a required FieldDef.
func Required(name string, t FieldType) FieldDef {
	return FieldDef{Name: name, Type: t, Required: true}
}

// Optional builds an optional FieldDef.
func Optional(name string, t FieldType) FieldDef {
	return FieldDef{Name: name, Type: t, Required: false}
}

// Validate checks value (nil if the field was absent) against this
// definition.
func (f FieldDef) Validate(value json.RawMessage, present bool) error {
	if !present {
		if f.Required {
			return engineerr.MissingRequiredField(f.Name)
		}
		return nil
	}
	if isJSONNull(value) {
		if f.Required {
			return engineerr.MissingRequiredField(f.Name)
		}
		return nil
	}
	return f.validateType(value)
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := trimSpace(raw)
	return string(trimmed) == "null"
}

func trimSpace(raw json.RawMessage) json.RawMessage {
	start, end := 0, len(raw)
	for start < end && isWS(raw[start]) {
		start++
	}
	for end > start && isWS(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isWS(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func (f FieldDef) validateType(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return engineerr.TypeMismatch(f.Name, f.Type.String(), "Invalid")
	}

	var ok bool
	switch f.Type {
	case FieldString:
		_, ok = v.(string)
	case FieldInt:
		ok = isWholeNumber(v)
	case FieldFloat:
		_, isNum := v.(float64)
		ok = isNum
	case FieldBool:
		_, ok = v.(bool)
	case FieldTimestamp:
		n, isNum := v.(float64)
		ok = isNum && n >= 0 && isWholeNumber(v)
	case FieldJSON:
		ok = true
	}

	if ok {
		return nil
	}
	return engineerr.TypeMismatch(f.Name, f.Type.String(), jsonTypeName(v))
}

func isWholeNumber(v any) bool {
	n, ok := v.(float64)
	if !ok {
		return false
	}
	return n == float64(int64(n))
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "Null"
	case bool:
		return "Bool"
	case float64:
		return "Float"
	case string:
		return "String"
	case []any:
		return "Array"
	case map[string]any:
		return "Object"
	default:
		return "Unknown"
	}
}

// CollectionSchema is the ordered list of fields for one collection.
type CollectionSchema struct {
	Name   string     `json:"name"`
	Fields []FieldDef `json:"fields"`
}

// NewCollection builds a CollectionSchema.
func NewCollection(name string, fields ...FieldDef) CollectionSchema {
	return CollectionSchema{Name: name, Fields: fields}
}

// ValidatePayload checks a JSON object payload against every field
// definition. Extra fields not declared in the schema are accepted
// silently (forward compatibility).
func (c CollectionSchema) ValidatePayload(payload json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return engineerr.InvalidPayload("payload must be a JSON object")
	}
	for _, field := range c.Fields {
		raw, present := obj[field.Name]
		if err := field.Validate(raw, present); err != nil {
			return err
		}
	}
	return nil
}

// Schema is the full set of collection definitions for a store, tagged with
// a schema version used to detect snapshot incompatibility.
type Schema struct {
	SchemaVersion uint32                      `json:"schemaVersion"`
	Collections   map[string]CollectionSchema `json:"collections"`
}

// New builds an empty Schema at the given version.
func New(version uint32) Schema {
	return Schema{SchemaVersion: version, Collections: map[string]CollectionSchema{}}
}

// WithCollection returns a copy of s with the collection added, mirroring
// the teacher's fluent-builder style.
func (s Schema) WithCollection(c CollectionSchema) Schema {
	cols := make(map[string]CollectionSchema, len(s.Collections)+1)
	for name, existing := range s.Collections {
		cols[name] = existing
	}
	cols[c.Name] = c
	s.Collections = cols
	return s
}

// Collection looks up a collection schema by name.
func (s Schema) Collection(name string) (CollectionSchema, bool) {
	c, ok := s.Collections[name]
	return c, ok
}

// ValidatePayload validates a payload against the named collection.
func (s Schema) ValidatePayload(collection string, payload json.RawMessage) error {
	c, ok := s.Collection(collection)
	if !ok {
		return engineerr.CollectionNotFound(collection)
	}
	return c.ValidatePayload(payload)
}
