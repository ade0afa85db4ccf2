package taxonomy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// taxonomySchema constrains taxonomy documents before they are trusted.
const taxonomySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["fields"],
  "properties": {
    "fields": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["field", "labels", "normalizer"],
        "properties": {
          "field": {"type": "string", "minLength": 1},
          "labels": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "normalizer": {"enum": ["date", "numeric_unit", "enum", "text"]},
          "required": {"type": "boolean"},
          "range": {
            "type": "object",
            "properties": {
              "min": {"type": "number"},
              "max": {"type": "number"}
            }
          },
          "units": {"type": "array", "items": {"type": "string"}},
          "values": {"type": "array", "items": {"type": "string"}},
          "importance": {"type": "number", "exclusiveMinimum": 0}
        }
      }
    }
  }
}`

var compiledSchema = jsonschema.MustCompileString("taxonomy.schema.json", taxonomySchema)

// validateSchema checks a YAML taxonomy document against the schema.
// The document is round-tripped through JSON so the validator sees
// plain JSON-compatible values.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert to JSON: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return err
	}

	return compiledSchema.Validate(jsonDoc)
}
