package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xeipuuv/gojsonschema"
)

// OptionsSchema constrains the launch options file accepted by the run
// command. additionalProperties is off so a typoed key fails loudly
// instead of silently launching with defaults.
const OptionsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "device": {
      "type": "string",
      "minLength": 1
    },
    "app": {
      "type": "string"
    },
    "template": {
      "type": "string"
    },
    "script": {
      "type": "string"
    },
    "args": {
      "type": "array",
      "items": {
        "type": "string"
      }
    },
    "flush_interval_ms": {
      "type": "integer",
      "minimum": 0
    },
    "timeout_sec": {
      "type": "integer",
      "minimum": 0
    }
  }
}`

// LaunchOptions is the operator-supplied description of one run
type LaunchOptions struct {
	Device          string   `json:"device"`
	App             string   `json:"app"`
	Template        string   `json:"template"`
	Script          string   `json:"script"`
	Args            []string `json:"args"`
	FlushIntervalMS int      `json:"flush_interval_ms"`
	TimeoutSec      int      `json:"timeout_sec"`
}

// LoadLaunchOptions reads and validates an options file
func LoadLaunchOptions(path string) (*LaunchOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read options file: %w", err)
	}

	if err := validateOptions(data); err != nil {
		return nil, err
	}

	var opts LaunchOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, fmt.Errorf("failed to parse options JSON: %w", err)
	}

	return &opts, nil
}

// validateOptions checks the raw document against OptionsSchema
func validateOptions(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(OptionsSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("options validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("invalid options: %s", errMsg)
	}

	return nil
}
