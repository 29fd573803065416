package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema is the structural contract for the TOML config file,
// checked before the semantic Validate pass so a typo'd key or a string
// where an integer belongs fails with a path-qualified message.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "burst": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "burst_timeout_ms": {"type": "integer", "minimum": 1},
        "burst_duration_calculation": {"enum": ["total_time", "active_time"]},
        "active_time_threshold_ms": {"type": "integer", "minimum": 1},
        "high_score_min_duration_ms": {"type": "integer", "minimum": 1},
        "min_burst_key_count": {"type": "integer", "minimum": 1},
        "min_burst_duration_ms": {"type": "integer", "minimum": 1},
        "max_realistic_wpm": {"type": "integer", "minimum": 1}
      }
    },
    "words": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "word_boundary_timeout_ms": {"type": "integer", "minimum": 1}
      }
    },
    "dictionary": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dictionary_mode": {"enum": ["validate", "accept_all"]},
        "enabled_languages": {"type": "array", "items": {"type": "string"}},
        "enabled_dictionaries": {"type": "array", "items": {"type": "string"}},
        "auto_fallback": {"type": "boolean"},
        "exclude_names_enabled": {"type": "boolean"},
        "ignore_file_path": {"type": "string"}
      }
    },
    "storage": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "database_path": {"type": "string"},
        "data_retention_days": {"type": "integer", "minimum": -1}
      }
    },
    "sync": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "auto_sync_enabled": {"type": "boolean"},
        "auto_sync_interval_sec": {"type": "integer", "minimum": 1},
        "postgres_sync_enabled": {"type": "boolean"},
        "postgres_dsn": {"type": "string"},
        "user_id": {"type": "string"},
        "machine_name": {"type": "string"}
      }
    },
    "notifications": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "notification_time_hour": {"type": "integer", "minimum": 0, "maximum": 23},
        "worst_letter_notifications_enabled": {"type": "boolean"},
        "worst_letter_notification_debounce_min": {"type": "integer", "minimum": 1}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "warning", "error"]},
        "format": {"enum": ["text", "json"]},
        "output": {"enum": ["stdout", "stderr", "file", "both"]},
        "file_path": {"type": "string"}
      }
    },
    "telemetry": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "listen_addr": {"type": "string"}
      }
    },
    "ipc": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "socket_path": {"type": "string"}
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		panic(fmt.Sprintf("config: add schema resource: %v", err))
	}
	s, err := c.Compile("config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: compile schema: %v", err))
	}
	return s
}

// ValidateSchema structurally validates raw TOML config bytes against
// the embedded JSON Schema.
func ValidateSchema(data []byte) error {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return fmt.Errorf("config: parse: %w", err)
	}

	// Round-trip through JSON so TOML's int64/[]any values take the
	// shapes the schema validator expects.
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config: encode for schema validation: %w", err)
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("config: decode for schema validation: %w", err)
	}

	if err := compiledSchema.Validate(instance); err != nil {
		return fmt.Errorf("config: schema validation: %w", err)
	}
	return nil
}
