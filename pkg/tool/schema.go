// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateSchema derives a JSON Schema for T from its struct tags, for use
// as a tool's Schema() return value.
//
// Supported tags:
//   - json:"name"                       parameter name
//   - json:",omitempty"                 optional parameter
//   - jsonschema:"required"             explicitly mark as required
//   - jsonschema:"description=..."      parameter description
//   - jsonschema:"default=..."          default value
//   - jsonschema:"enum=val1|val2"       allowed values
func GenerateSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}

	schema := reflector.Reflect(new(T))

	m, err := schemaToMap(schema)
	if err != nil {
		// A struct tag typo surfaces here; schemas are derived on
		// each Schema() call from types we control, so this never
		// happens in practice, but a nil schema fails loudly instead
		// of silently under-describing the tool to the LLM.
		panic(fmt.Sprintf("tool: generate schema: %v", err))
	}

	if m["type"] != "object" {
		return m
	}

	result := map[string]any{
		"type":       "object",
		"properties": m["properties"],
	}
	if required, ok := m["required"]; ok {
		result["required"] = required
	}
	if addProps, ok := m["additionalProperties"]; ok {
		result["additionalProperties"] = addProps
	}
	return result
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	delete(result, "$schema")
	delete(result, "$id")
	return result, nil
}
