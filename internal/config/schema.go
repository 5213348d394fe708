package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	dserrors "github.com/systmms/knox/internal/errors"
)

const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["registrations"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer"},
    "registrations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["vaults"],
        "additionalProperties": false,
        "properties": {
          "type": {"enum": ["azure.keyvault", "aws.secretsmanager", "gcp.secretmanager"]},
          "tenantId": {"type": "string"},
          "clientId": {"type": "string"},
          "redirectUri": {"type": "string"},
          "auth": {"enum": ["browser", "cli", "device", "secret", "managed", "default"]},
          "keyringAccount": {"type": "string"},
          "profile": {"type": "string"},
          "endpoint": {"type": "string"},
          "credentialsFile": {"type": "string"},
          "vaults": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          }
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

func validateSchema(raw interface{}) error {
	// yaml.v3 decodes mappings as map[string]interface{}, which marshals
	// cleanly to JSON.
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration for validation: %w", err)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return dserrors.ConfigError{
			Field:      result.Errors()[0].Field(),
			Message:    "configuration does not match the schema:\n  - " + strings.Join(messages, "\n  - "),
			Suggestion: "Compare your knox.yaml against the example created by 'knox init'",
		}
	}

	return nil
}
