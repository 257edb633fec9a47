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

package tools

import (
	"reflect"
	"sort"

	"github.com/sashabaranov/go-openai"
)

// ToolSpec declares one tool: its name, description and parameter schema.
type ToolSpec struct {
	Kind        Kind
	Name        string
	Description string
	Parameters  []Param
	// PathParam names the parameter the boundary guard must check.
	PathParam string
	Schema    map[string]interface{}

	decode func(args map[string]interface{}) (toolArgs, error)
}

// Registry is the fixed, read-only table of tools.
type Registry struct {
	specs  []ToolSpec
	byName map[string]int
}

var toolDescriptions = map[Kind]string{
	ListDirectory: "List the immediate entries of a directory with their type and size in bytes",
	ReadFile:      "Read the text content of a file",
	WriteFile:     "Create or overwrite a text file, creating parent directories as needed",
	RunScript:     "Execute a script file with optional arguments and return its output and exit code",
}

// NewRegistry builds the registry of the four built-in tools.
func NewRegistry() *Registry {
	specs := []ToolSpec{
		specFor[ListDirectoryArgs](ListDirectory),
		specFor[ReadFileArgs](ReadFile),
		specFor[WriteFileArgs](WriteFile),
		specFor[RunScriptArgs](RunScript),
	}
	r := &Registry{
		specs:  specs,
		byName: make(map[string]int, len(specs)),
	}
	for i, spec := range specs {
		r.byName[spec.Name] = i
	}
	return r
}

func specFor[T toolArgs](kind Kind) ToolSpec {
	t := reflect.TypeOf((*T)(nil)).Elem()
	params := paramsForType(t)
	schema := mustSchemaParametersFor[T]()
	return ToolSpec{
		Kind:        kind,
		Name:        kind.String(),
		Description: toolDescriptions[kind],
		Parameters:  params,
		PathParam:   pathParamForType(t),
		Schema:      schema,
		decode: func(args map[string]interface{}) (toolArgs, error) {
			coerced := coerceArgs(params, args)
			if err := validateAgainstSchema(schema, coerced); err != nil {
				return nil, err
			}
			return unmarshalAndValidate[T](coerced)
		},
	}
}

// Lookup returns the spec registered under name.
func (r *Registry) Lookup(name string) (ToolSpec, error) {
	idx, ok := r.byName[name]
	if !ok {
		return ToolSpec{}, newUnknownToolError(name)
	}
	return r.specs[idx], nil
}

// Specs returns the specs in registration order.
func (r *Registry) Specs() []ToolSpec {
	return append([]ToolSpec{}, r.specs...)
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for _, spec := range r.specs {
		names = append(names, spec.Name)
	}
	sort.Strings(names)
	return names
}

// OpenAITools returns the registry as OpenAI tool definitions.
func (r *Registry) OpenAITools() []openai.Tool {
	defs := make([]openai.Tool, 0, len(r.specs))
	for _, spec := range r.specs {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema,
			},
		})
	}
	return defs
}
