// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// SchemaJSON returns the JSON schema for localagent.json.
func SchemaJSON() string {
	return configSchemaJSON
}

// ExampleConfigJSON returns a minimal example config.
func ExampleConfigJSON() string {
	return exampleConfigJSON
}

var configSchema = mustCompileSchema(configSchemaJSON)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("config schema: %v", err))
	}
	return schema
}

func normalizeConfigJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	migrateLegacyConfig(raw)

	result, err := configSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return json.Marshal(raw)
}

func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// yamlToJSON converts a YAML config document so it goes through the same
// schema as the JSON form.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return json.Marshal(raw)
}

// migrateLegacyConfig accepts the "ollama_host" and "root" spellings.
func migrateLegacyConfig(raw map[string]interface{}) {
	if host, ok := raw["ollama_host"]; ok {
		if _, set := raw["api_url"]; !set {
			raw["api_url"] = host
		}
		delete(raw, "ollama_host")
	}
	if root, ok := raw["root"]; ok {
		if _, set := raw["working_root"]; !set {
			raw["working_root"] = root
		}
		delete(raw, "root")
	}
}

const configSchemaJSON = `{
  "title": "localagent configuration",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "api_key": {"type": "string"},
    "api_url": {"type": "string"},
    "model": {"type": "string"},
    "temperature": {"type": "number"},
    "max_tokens": {"type": "integer"},
    "working_root": {"type": "string"},
    "max_iterations": {"type": "integer", "minimum": 1},
    "inline_tools_only": {"type": "boolean"},
    "tool_limits": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_read_bytes": {"type": "integer", "minimum": 0},
        "max_stream_bytes": {"type": "integer", "minimum": 0},
        "max_output_bytes": {"type": "integer", "minimum": 0},
        "max_file_size_bytes": {"type": "integer", "minimum": 0},
        "max_directory_entries": {"type": "integer", "minimum": 0}
      }
    },
    "tool_timeouts": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "default_seconds": {"type": "integer", "minimum": 0},
        "per_tool_seconds": {
          "type": "object",
          "additionalProperties": {"type": "integer", "minimum": 0}
        }
      }
    },
    "interpreters": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "deny_patterns": {
      "type": "array",
      "items": {"type": "string"}
    },
    "audit_db": {"type": "string"},
    "command_history_file": {"type": "string"},
    "colors": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

const exampleConfigJSON = `{
  "api_url": "http://localhost:11434/v1",
  "model": "qwen2.5-coder:7b",
  "temperature": 0.1,
  "max_tokens": 4096,
  "working_root": ".",
  "max_iterations": 20,
  "tool_timeouts": {"per_tool_seconds": {"run-script": 30}},
  "interpreters": {".py": "python3"},
  "deny_patterns": [".git/**"],
  "colors": {"tool_call": "magenta"}
}`
