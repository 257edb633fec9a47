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
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/567-labs/instructor-go/pkg/instructor"
	"github.com/xeipuuv/gojsonschema"
)

func mustSchemaParametersFor[T any]() map[string]interface{} {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		panic("schema type is nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	params, err := schemaParametersForType(t)
	if err != nil {
		panic(err)
	}
	// Tools take exactly their declared parameters.
	params["additionalProperties"] = false
	delete(params, "$schema")
	delete(params, "$id")
	return params
}

func schemaParametersForType(t reflect.Type) (map[string]interface{}, error) {
	schema, err := instructor.NewSchema(t)
	if err != nil {
		return nil, err
	}

	defName := t.Name()
	for _, fn := range schema.Functions {
		if fn.Name != defName {
			continue
		}
		return jsonSchemaToMap(fn.Parameters)
	}

	return nil, fmt.Errorf("schema definition %q not found", defName)
}

func jsonSchemaToMap(schema interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// paramsForType lists the declared parameters of an argument struct in
// field order. Fields without omitempty are required.
func paramsForType(t reflect.Type) []Param {
	params := make([]Param, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, omitEmpty := jsonFieldName(field)
		if name == "" {
			continue
		}
		params = append(params, Param{
			Name:     name,
			Kind:     paramKindOf(field.Type),
			Required: !omitEmpty,
		})
	}
	return params
}

func pathParamForType(t reflect.Type) string {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("guard") == "path" {
			name, _ := jsonFieldName(field)
			return name
		}
	}
	return ""
}

func jsonFieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" || !field.IsExported() {
		return "", false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = field.Name
	}
	omitEmpty := false
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func paramKindOf(t reflect.Type) ParamKind {
	switch {
	case t.Kind() == reflect.String:
		return ParamString
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		return ParamStringList
	default:
		return ParamNone
	}
}

// coerceArgs converts loosely typed model output into the declared kinds:
// scalars become strings and a lone string becomes a one-element list.
// Values that cannot be coerced are left for schema validation to reject.
func coerceArgs(params []Param, args map[string]interface{}) map[string]interface{} {
	coerced := make(map[string]interface{}, len(args))
	for k, v := range args {
		coerced[k] = v
	}
	for _, param := range params {
		value, ok := coerced[param.Name]
		if !ok {
			continue
		}
		switch param.Kind {
		case ParamString:
			switch v := value.(type) {
			case float64, bool, json.Number:
				coerced[param.Name] = fmt.Sprint(v)
			case nil:
				delete(coerced, param.Name)
			}
		case ParamStringList:
			switch v := value.(type) {
			case string:
				coerced[param.Name] = []interface{}{v}
			case nil:
				delete(coerced, param.Name)
			case []interface{}:
				items := make([]interface{}, len(v))
				for i, item := range v {
					switch iv := item.(type) {
					case float64, bool, json.Number:
						items[i] = fmt.Sprint(iv)
					default:
						items[i] = item
					}
				}
				coerced[param.Name] = items
			}
		}
	}
	return coerced
}

// validateAgainstSchema checks presence, types and unexpected keys.
func validateAgainstSchema(schema map[string]interface{}, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(args))
	if err != nil {
		return newArgumentError("", fmt.Sprintf("schema validation error: %v", err))
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	details := make([]string, 0, len(errs))
	for _, desc := range errs {
		details = append(details, desc.Description())
	}
	return newArgumentError(offendingParam(errs[0]), strings.Join(details, "; "))
}

func offendingParam(desc gojsonschema.ResultError) string {
	if property, ok := desc.Details()["property"]; ok {
		return fmt.Sprint(property)
	}
	field := desc.Field()
	if field == "" || field == "(root)" {
		return ""
	}
	if idx := strings.Index(field, "."); idx > 0 {
		field = field[:idx]
	}
	return field
}
