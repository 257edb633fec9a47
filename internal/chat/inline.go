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

package chat

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	apperrors "localagent/internal/errors"
	"localagent/internal/tools"
)

type inlineEnvelope struct {
	FunctionCall *inlineCall `json:"function_call"`
}

type inlineCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// InlineCall is a function call found in a plain-text reply. Err is set when
// its arguments are not a JSON object; such a call must not be dispatched.
type InlineCall struct {
	tools.FunctionCallRequest
	Err error
}

// ParseInlineFunctionCalls extracts {"function_call": {...}} objects embedded
// in a plain-text reply, in order of appearance. Models without native tool
// calling use this form.
func ParseInlineFunctionCalls(content string) []InlineCall {
	var calls []InlineCall
	for pos := 0; pos < len(content); {
		idx := strings.IndexByte(content[pos:], '{')
		if idx < 0 {
			break
		}
		start := pos + idx

		dec := json.NewDecoder(strings.NewReader(content[start:]))
		var envelope inlineEnvelope
		if err := dec.Decode(&envelope); err != nil || envelope.FunctionCall == nil || envelope.FunctionCall.Name == "" {
			pos = start + 1
			continue
		}

		args, err := decodeInlineArguments(envelope.FunctionCall.Arguments)
		calls = append(calls, InlineCall{
			FunctionCallRequest: tools.FunctionCallRequest{
				ID:        "call_" + uuid.NewString(),
				ToolName:  strings.TrimSpace(envelope.FunctionCall.Name),
				Arguments: args,
			},
			Err: err,
		})
		pos = start + int(dec.InputOffset())
	}
	return calls
}

// decodeInlineArguments accepts an object or a JSON-encoded object string.
func decodeInlineArguments(raw json.RawMessage) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return map[string]interface{}{}, nil
	}
	if strings.HasPrefix(trimmed, "\"") {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeArgumentValidation, "invalid arguments: malformed string", err)
		}
		trimmed = encoded
	}
	return tools.ParseArguments(trimmed)
}
