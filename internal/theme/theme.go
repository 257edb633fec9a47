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

package theme

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
)

// Theme names the color of each element of the console output. Values are
// color specs such as "cyan", "bold red" or "hi-black".
type Theme struct {
	Header   string `json:"header"`
	ToolCall string `json:"tool_call"`
	Success  string `json:"success"`
	Error    string `json:"error"`
	Warning  string `json:"warning"`
	Muted    string `json:"muted"`
	Answer   string `json:"answer"`
}

// ColorScheme holds the resolved colors of a Theme.
type ColorScheme struct {
	Header   *color.Color
	ToolCall *color.Color
	Success  *color.Color
	Error    *color.Color
	Warning  *color.Color
	Muted    *color.Color
	Answer   *color.Color
}

// DefaultTheme returns a theme with default values
func DefaultTheme() *Theme {
	return &Theme{
		Header:   "bold cyan",
		ToolCall: "yellow",
		Success:  "green",
		Error:    "bold red",
		Warning:  "yellow",
		Muted:    "hi-black",
		Answer:   "white",
	}
}

// FromMap overlays the entries of overrides onto the default theme.
func FromMap(overrides map[string]string) (*Theme, error) {
	t := DefaultTheme()
	fields := t.fields()
	keys := make([]string, 0, len(overrides))
	for key := range overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field, ok := fields[key]
		if !ok {
			return nil, fmt.Errorf("unknown theme element %q", key)
		}
		*field = overrides[key]
	}
	if err := ValidateTheme(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Theme) fields() map[string]*string {
	return map[string]*string{
		"header":    &t.Header,
		"tool_call": &t.ToolCall,
		"success":   &t.Success,
		"error":     &t.Error,
		"warning":   &t.Warning,
		"muted":     &t.Muted,
		"answer":    &t.Answer,
	}
}

// ToColorScheme converts theme to color styles. Call ValidateTheme first;
// invalid specs fall back to no color.
func (t *Theme) ToColorScheme() *ColorScheme {
	resolve := func(spec string) *color.Color {
		c, err := ParseColor(spec)
		if err != nil {
			return color.New()
		}
		return c
	}
	return &ColorScheme{
		Header:   resolve(t.Header),
		ToolCall: resolve(t.ToolCall),
		Success:  resolve(t.Success),
		Error:    resolve(t.Error),
		Warning:  resolve(t.Warning),
		Muted:    resolve(t.Muted),
		Answer:   resolve(t.Answer),
	}
}

// NewColorScheme resolves t, honoring NO_COLOR and the noColor flag.
func NewColorScheme(t *Theme, noColor bool) *ColorScheme {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return DisabledColorScheme()
	}
	if t == nil {
		t = DefaultTheme()
	}
	return t.ToColorScheme()
}

// DisabledColorScheme returns a color scheme with all colors disabled.
func DisabledColorScheme() *ColorScheme {
	plain := func() *color.Color {
		c := color.New()
		c.DisableColor()
		return c
	}
	return &ColorScheme{
		Header:   plain(),
		ToolCall: plain(),
		Success:  plain(),
		Error:    plain(),
		Warning:  plain(),
		Muted:    plain(),
		Answer:   plain(),
	}
}
