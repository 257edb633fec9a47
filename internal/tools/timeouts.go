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

import "time"

const defaultScriptTimeout = 30 * time.Second

// builtinTimeouts apply when a tool has neither its own entry nor a
// configured default.
var builtinTimeouts = map[string]time.Duration{
	RunScript.String(): defaultScriptTimeout,
}

// TimeoutConfig configures per-tool execution timeouts.
type TimeoutConfig struct {
	Default time.Duration
	PerTool map[string]time.Duration
}

// TimeoutForTool resolves the timeout of a tool: its own entry first, then
// Default, then the built-in value. Zero means no timeout.
func (t TimeoutConfig) TimeoutForTool(name string) time.Duration {
	if timeout, ok := t.PerTool[name]; ok && timeout > 0 {
		return timeout
	}
	if t.Default > 0 {
		return t.Default
	}
	return builtinTimeouts[name]
}
