package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates data against a schema
type Validator interface {
	// Validate validates data against the schema
	// Returns an error if validation fails
	Validate(data interface{}) error

	// JSONSchema returns the JSON Schema representation of this validator
	// This is used when sending schemas to AI providers
	JSONSchema() map[string]interface{}
}

// Schema represents a validation schema
// Can be implemented as JSON Schema or Go struct-based schema
type Schema interface {
	// Validator returns the validator for this schema
	Validator() Validator
}

// structValidate is shared across all StructValidator instances; the
// underlying validator.Validate caches struct tag parsing per type.
var structValidate = validator.New(validator.WithRequiredStructEnabled())

// JSONSchemaValidator validates using JSON Schema
type JSONSchemaValidator struct {
	schema map[string]interface{}
}

// NewJSONSchema creates a new JSON Schema validator
func NewJSONSchema(schema map[string]interface{}) *JSONSchemaValidator {
	return &JSONSchemaValidator{schema: schema}
}

// Validate validates data against the JSON Schema using
// github.com/santhosh-tekuri/jsonschema/v6. Both the schema and the data are
// round-tripped through jsonschema.UnmarshalJSON so numeric literals decode
// the way the compiler expects (json.Number, not float64).
func (v *JSONSchemaValidator) Validate(data interface{}) error {
	schemaBytes, err := json.Marshal(v.schema)
	if err != nil {
		return fmt.Errorf("schema: marshal schema: %w", err)
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return fmt.Errorf("schema: parse schema: %w", err)
	}

	const resourceURL = "mem://schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, schemaDoc); err != nil {
		return fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("schema: marshal data: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(dataBytes))
	if err != nil {
		return fmt.Errorf("schema: parse data: %w", err)
	}

	return compiled.Validate(instance)
}

// JSONSchema returns the JSON Schema
func (v *JSONSchemaValidator) JSONSchema() map[string]interface{} {
	return v.schema
}

// StructValidator validates using Go struct tags
type StructValidator struct {
	targetType reflect.Type
}

// NewStructSchema creates a new struct-based schema validator
func NewStructSchema(targetType reflect.Type) *StructValidator {
	return &StructValidator{targetType: targetType}
}

// Validate validates data against the struct's `validate` tags using
// github.com/go-playground/validator.
func (v *StructValidator) Validate(data interface{}) error {
	if err := structValidate.Struct(data); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return nil
		}
		return err
	}
	return nil
}

// JSONSchema generates a JSON Schema from the struct's field types and json/validate tags.
func (v *StructValidator) JSONSchema() map[string]interface{} {
	return structJSONSchema(v.targetType)
}

func structJSONSchema(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fieldJSONSchema(t)
	}

	properties := map[string]interface{}{}
	var required []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}

		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		}

		properties[name] = fieldJSONSchema(f.Type)
		if strings.Contains(f.Tag.Get("validate"), "required") {
			required = append(required, name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldJSONSchema(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return structJSONSchema(t)
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{
			"type":  "array",
			"items": fieldJSONSchema(t.Elem()),
		}
	case reflect.Map:
		return map[string]interface{}{"type": "object"}
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	default:
		return map[string]interface{}{"type": "object"}
	}
}

// SimpleJSONSchema is a simple implementation of Schema
type SimpleJSONSchema struct {
	validator *JSONSchemaValidator
}

// NewSimpleJSONSchema creates a simple JSON Schema
func NewSimpleJSONSchema(schema map[string]interface{}) *SimpleJSONSchema {
	return &SimpleJSONSchema{
		validator: NewJSONSchema(schema),
	}
}

// Validator returns the validator
func (s *SimpleJSONSchema) Validator() Validator {
	return s.validator
}

// SimpleStructSchema is a simple implementation of Schema using structs
type SimpleStructSchema struct {
	validator *StructValidator
}

// NewSimpleStructSchema creates a simple struct schema
func NewSimpleStructSchema(targetType reflect.Type) *SimpleStructSchema {
	return &SimpleStructSchema{
		validator: NewStructSchema(targetType),
	}
}

// Validator returns the validator
func (s *SimpleStructSchema) Validator() Validator {
	return s.validator
}
