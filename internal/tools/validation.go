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
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _ := jsonFieldName(field)
		return name
	})
	return v
}

// unmarshalAndValidate decodes generic arguments into T and runs its
// validate tags.
func unmarshalAndValidate[T any](args map[string]interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(args)
	if err != nil {
		return out, newArgumentError("", err.Error())
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return out, newArgumentError(typeErr.Field, fmt.Sprintf("expected %s", typeErr.Type))
		}
		return out, newArgumentError("", err.Error())
	}

	if err := structValidator.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			if first.Tag() == "required" {
				return out, newArgumentError(first.Field(), "is required and must not be empty")
			}
			return out, newArgumentError(first.Field(), fmt.Sprintf("failed '%s' check", first.Tag()))
		}
		return out, newArgumentError("", err.Error())
	}

	return out, nil
}

// RequiredParams returns the names of the required parameters of spec.
func RequiredParams(spec ToolSpec) []string {
	var names []string
	for _, p := range spec.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// DescribeParams renders a compact signature such as
// "file_path: string, args?: list-of-string".
func DescribeParams(spec ToolSpec) string {
	parts := make([]string, 0, len(spec.Parameters))
	for _, p := range spec.Parameters {
		name := p.Name
		if !p.Required {
			name += "?"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", name, p.Kind))
	}
	return strings.Join(parts, ", ")
}
