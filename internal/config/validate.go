package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	yamlv3 "gopkg.in/yaml.v3"
)

// configSchema constrains config files before viper merges them over
// the defaults. Every section is optional so partial overrides stay
// valid; unknown keys are rejected to catch typos.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "detectors": {"$ref": "#/$defs/providers"},
    "recognizers": {"$ref": "#/$defs/providers"},
    "ingest": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_upload_mb": {"type": "integer"},
        "max_pages": {"type": "integer"},
        "raster_dpi": {"type": "integer"},
        "pdftoppm_path": {"type": "string"}
      }
    },
    "pipeline": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "workers": {"type": "integer", "minimum": 0},
        "queue_size": {"type": "integer", "minimum": 0},
        "detector": {"type": "string"},
        "recognizer": {"type": "string"},
        "page_concurrency": {"type": "integer"},
        "region_concurrency": {"type": "integer"},
        "retry_attempts": {"type": "integer"},
        "retry_delay": {"$ref": "#/$defs/duration"},
        "low_confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "job_retention": {"$ref": "#/$defs/duration"}
      }
    },
    "server": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535}
      }
    },
    "events": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "webhook_targets": {"type": "array", "items": {"type": "string"}},
        "send_timeout": {"$ref": "#/$defs/duration"}
      }
    }
  },
  "$defs": {
    "duration": {"type": ["integer", "string"]},
    "providers": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "type": {"type": "string"},
          "base_url": {"type": "string"},
          "model": {"type": "string"},
          "api_key": {"type": "string"},
          "rate_limit": {"type": "number", "minimum": 0},
          "enabled": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledConfigSchema = jsonschema.MustCompileString("config.schema.json", configSchema)

// ValidateFile checks a YAML config document against the schema. The
// document is round-tripped through JSON so the validator sees plain
// JSON-compatible values. An empty file is valid; defaults apply.
func ValidateFile(data []byte) error {
	var doc any
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc == nil {
		return nil
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert to JSON: %w", err)
	}
	var jsonDoc any
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return err
	}

	return compiledConfigSchema.Validate(jsonDoc)
}
