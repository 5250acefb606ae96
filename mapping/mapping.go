// Package mapping provides the refreshable topic-hierarchy to data-mapping
// cache. The table is loaded whole from the discovery-metadata source and
// swapped atomically; lookups always observe a complete table.
package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/wmo-im/wis2node/errors"
)

// PluginDef selects a transform plugin for a file type
type PluginDef struct {
	Name        string `json:"plugin"`
	Notify      bool   `json:"notify,omitempty"`
	FilePattern string `json:"file-pattern,omitempty"`
	Template    string `json:"template,omitempty"`
}

// Definition is the transform mapping registered for one topic hierarchy:
// plugin chains keyed by input file type.
type Definition struct {
	Plugins map[string][]PluginDef `json:"plugins"`
}

// definitionSchema validates data-mapping documents fetched from the
// catalog before they enter the active table.
const definitionSchema = `{
	"type": "object",
	"required": ["plugins"],
	"properties": {
		"plugins": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["plugin"],
					"properties": {
						"plugin": {"type": "string", "minLength": 1},
						"notify": {"type": "boolean"},
						"file-pattern": {"type": "string"},
						"template": {"type": "string"}
					}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(definitionSchema)

// ParseDefinition validates and decodes a raw data-mapping document
func ParseDefinition(raw json.RawMessage) (Definition, error) {
	var def Definition

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return def, errors.WrapInvalid(err, "Definition", "Parse", "validate mapping document")
	}
	if !result.Valid() {
		return def, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidData, result.Errors()),
			"Definition", "Parse", "validate mapping document")
	}

	if err := json.Unmarshal(raw, &def); err != nil {
		return def, errors.WrapInvalid(err, "Definition", "Parse", "decode mapping document")
	}
	return def, nil
}
