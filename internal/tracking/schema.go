package tracking

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["date", "processed"],
  "properties": {
    "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "created_at": {"type": "string"},
    "last_processed_time": {"type": ["string", "null"]},
    "last_run_id": {"type": "string"},
    "processed": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["status", "status_history"],
        "properties": {
          "file_id": {"type": "integer"},
          "status": {"enum": ["pending", "processing", "verified", "done", "error"]},
          "status_history": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["status", "timestamp"],
              "properties": {
                "status": {"enum": ["pending", "processing", "verified", "done", "error"]},
                "timestamp": {"type": "string"}
              }
            }
          },
          "detections": {"type": ["integer", "null"], "minimum": 0},
          "output_paths": {"type": "object", "additionalProperties": {"type": "string"}},
          "error": {"type": "string"}
        }
      }
    },
    "cars": {
      "type": ["object", "null"],
      "additionalProperties": {
        "type": "object",
        "required": ["status"],
        "properties": {
          "status": {"enum": ["pending", "processing", "verified", "done", "error"]},
          "done_at": {"type": "string"}
        }
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("processed.schema.json", schemaJSON)

// Validate checks raw tracking file bytes against the document schema.
func Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("tracking: unmarshal: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("tracking: file does not match schema: %w", err)
	}
	return nil
}
