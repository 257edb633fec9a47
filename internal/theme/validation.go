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
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	ErrEmptyColor   = errors.New("color is empty")
	ErrInvalidColor = errors.New("invalid color")
)

var foregrounds = map[string]color.Attribute{
	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

var hiForegrounds = map[string]color.Attribute{
	"black":   color.FgHiBlack,
	"red":     color.FgHiRed,
	"green":   color.FgHiGreen,
	"yellow":  color.FgHiYellow,
	"blue":    color.FgHiBlue,
	"magenta": color.FgHiMagenta,
	"cyan":    color.FgHiCyan,
	"white":   color.FgHiWhite,
}

var modifiers = map[string]color.Attribute{
	"bold":      color.Bold,
	"faint":     color.Faint,
	"italic":    color.Italic,
	"underline": color.Underline,
}

// ValidateTheme validates all theme color values.
func ValidateTheme(t *Theme) error {
	if t == nil {
		return fmt.Errorf("theme is nil")
	}
	for name, value := range t.fields() {
		if _, err := ParseColor(*value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ParseColor turns a spec of modifiers and at most one foreground color
// into a color, for example "bold hi-cyan".
func ParseColor(spec string) (*color.Color, error) {
	words := strings.Fields(strings.ToLower(spec))
	if len(words) == 0 {
		return nil, ErrEmptyColor
	}

	var attrs []color.Attribute
	haveForeground := false
	for _, word := range words {
		if attr, ok := modifiers[word]; ok {
			attrs = append(attrs, attr)
			continue
		}
		table := foregrounds
		name := word
		if strings.HasPrefix(word, "hi-") {
			table = hiForegrounds
			name = strings.TrimPrefix(word, "hi-")
		}
		attr, ok := table[name]
		if !ok || haveForeground {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColor, spec)
		}
		haveForeground = true
		attrs = append(attrs, attr)
	}
	return color.New(attrs...), nil
}
