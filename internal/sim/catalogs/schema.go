package catalogs

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const blueprintSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "size", "primary_offset", "blocks"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "author": {"type": "string"},
    "version": {"type": "string"},
    "size": {"$ref": "#/definitions/extent"},
    "primary_offset": {"$ref": "#/definitions/vec3"},
    "ground_levels": {"type": "integer", "minimum": 0},
    "tags": {
      "type": "object",
      "additionalProperties": {"type": "array", "items": {"$ref": "#/definitions/vec3"}}
    },
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pos", "block"],
        "properties": {
          "pos": {"$ref": "#/definitions/vec3"},
          "block": {"type": "string", "minLength": 1}
        }
      }
    }
  },
  "definitions": {
    "vec3": {"type": "array", "items": {"type": "integer"}, "minItems": 3, "maxItems": 3},
    "extent": {"type": "array", "items": {"type": "integer", "minimum": 1}, "minItems": 3, "maxItems": 3}
  }
}`

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

func blueprintSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaVal, schemaErr = jsonschema.CompileString("blueprint.schema.json", blueprintSchemaJSON)
	})
	return schemaVal, schemaErr
}
