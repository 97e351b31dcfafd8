// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tool defines the interface agents use to invoke capabilities
// such as searching the web, executing code, or reading and writing
// files inside their sandboxed workspace.
package tool

import "context"

// Tool is a single capability an agent can invoke by name. Every built-in
// tool (web_search, code_executor, file_manager, api_client, messaging,
// pytest_runner) and every plugin tool discovered at runtime implements
// this interface.
type Tool interface {
	// Name returns the unique, stable name used to address this tool
	// from an agent's parsed Action.
	Name() string

	// Description is shown to the LLM so it can decide when to use
	// this tool.
	Description() string

	// Schema returns the JSON Schema describing this tool's parameters,
	// generated from a typed argument struct via struct tags.
	Schema() map[string]any

	// Execute runs the tool with the given parameters on behalf of
	// agentID and returns a result payload, or an error if execution
	// failed. Implementations must respect ctx cancellation.
	Execute(ctx context.Context, params map[string]any, agentID string) (map[string]any, error)
}

// Protected marks a tool that cannot be removed by the disabled-tools
// filter, regardless of system configuration. Tools central to agent
// survival (e.g. messaging, file delivery) implement this.
type Protected interface {
	Tool
	Protected() bool
}

// Definition is the wire-level description of a tool handed to the LLM
// adapter alongside the prompt.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToDefinition converts a registered Tool into its LLM-facing Definition.
func ToDefinition(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}
