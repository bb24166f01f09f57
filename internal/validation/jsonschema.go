package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lattica-ai/chaincore/internal/store"
	"github.com/lattica-ai/chaincore/pkg/schema"
)

// chainSchemaJSON is the JSON Schema for chain definition validation.
// Embedded as a constant to avoid filesystem dependencies.
const chainSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://chaincore.dev/schemas/chain.json",
  "type": "object",
  "required": ["name", "steps"],
  "properties": {
    "id": { "type": "string" },
    "name": {
      "type": "string",
      "minLength": 1
    },
    "description": { "type": "string" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/step" }
    },
    "is_active": { "type": "boolean" },
    "created_by": { "type": "string" },
    "created_at": { "type": "string" },
    "updated_at": { "type": "string" }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "agent_id", "name"],
      "properties": {
        "id": {
          "type": "string",
          "minLength": 1
        },
        "agent_id": {
          "type": "string",
          "minLength": 1
        },
        "name": {
          "type": "string",
          "minLength": 1
        },
        "condition": { "$ref": "#/$defs/condition" },
        "input_mapping": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "output_mapping": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "timeout_seconds": {
          "type": "integer",
          "minimum": 0
        },
        "retry_count": {
          "type": "integer",
          "minimum": 0
        }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {
          "type": "string",
          "enum": ["always", "if_success", "if_error", "custom"]
        },
        "expression": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator validates chain definitions against the embedded JSON
// Schema (Draft 2020-12). Safe for concurrent use.
type JSONSchemaValidator struct {
	chainSchema *jsonschema.Schema
}

// NewJSONSchemaValidator creates a JSONSchemaValidator with the chain schema
// pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(chainSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal chain schema: %w", err)
	}
	if err := c.AddResource("https://chaincore.dev/schemas/chain.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add chain schema resource: %w", err)
	}

	compiled, err := c.Compile("https://chaincore.dev/schemas/chain.json")
	if err != nil {
		return nil, fmt.Errorf("compile chain schema: %w", err)
	}

	return &JSONSchemaValidator{chainSchema: compiled}, nil
}

// ValidateChain validates a chain definition against the chain JSON Schema.
// Violations are reported into result with their instance locations.
func (v *JSONSchemaValidator) ValidateChain(chain *store.Chain, result *schema.ValidationResult) {
	if chain == nil {
		result.AddError("/", schema.ErrCodeValidation, "chain definition is nil")
		return
	}

	doc, err := toJSONValue(chain)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, "failed to serialize chain definition")
		return
	}

	if err := v.chainSchema.Validate(doc); err != nil {
		for _, violation := range violations(err) {
			result.AddError(violation.path, schema.ErrCodeValidation, violation.message)
		}
	}
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

type violation struct {
	path    string
	message string
}

// violations flattens a jsonschema error into leaf messages with their
// instance locations.
func violations(err error) []violation {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []violation{{path: "/", message: err.Error()}}
	}
	return collectViolations(verr)
}

func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []violation{{path: loc, message: verr.Error()}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
