//go:generate go run ../tools/schema-generator -out ../schema

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

// knownExtensions are top-level sections owned by other packages.
var knownExtensions = []string{"logging"}

// GenerateSchema generates the JSON Schema for autoreg.yml.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		// Do not allow unknown fields in nested sections.
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
		Anonymous:                 true,
	}

	schema := r.Reflect(&Config{})
	schema.Title = "autoreg configuration"
	schema.Description = "Schema for autoreg.yml."

	for _, ext := range knownExtensions {
		schema.Properties.Set(ext, &jsonschema.Schema{
			Type:        "object",
			Description: fmt.Sprintf("Settings for the %s extension", ext),
		})
	}
	// Unknown top-level keys are kept as extensions.
	schema.AdditionalProperties = jsonschema.TrueSchema

	return json.MarshalIndent(schema, "", "  ")
}

// SchemaValidator validates raw configuration documents.
type SchemaValidator struct {
	schema *santhosh.Schema
}

// NewSchemaValidator compiles the generated schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	compiler := santhosh.NewCompiler()
	if err := compiler.AddResource("autoreg.json", bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("autoreg.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// ValidateDocument validates a JSON-compatible document.
func (v *SchemaValidator) ValidateDocument(doc interface{}) error {
	if err := v.schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*santhosh.ValidationError); ok {
			var messages []string
			collectErrors(validationErr, &messages)
			if len(messages) == 0 {
				messages = append(messages, "- "+validationErr.Message)
			}
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(messages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// collectErrors recursively collects leaf validation errors
func collectErrors(err *santhosh.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
