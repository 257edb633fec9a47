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


package systemprompt

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.txt
var promptFiles embed.FS

// Load concatenates all embedded prompt files in lexical order.
func Load() (string, error) {
	return load(promptFiles)
}

func load(files fs.FS) (string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return "", fmt.Errorf("failed to read embedded system prompt files: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		names = append(names, entry.Name())
	}

	if len(names) == 0 {
		return "", fmt.Errorf("no system prompt files found in embedded set")
	}

	sort.Strings(names)

	var builder strings.Builder
	for idx, name := range names {
		data, err := fs.ReadFile(files, name)
		if err != nil {
			return "", fmt.Errorf("failed to read system prompt file %q: %w", name, err)
		}
		if idx > 0 {
			builder.WriteString("\n")
		}
		builder.Write(data)
		if len(data) == 0 || data[len(data)-1] != '\n' {
			builder.WriteString("\n")
		}
	}

	return builder.String(), nil
}

// WithTools appends the list of callable functions, one signature per line.
func WithTools(prompt string, signatures []string) string {
	if len(signatures) == 0 {
		return prompt
	}
	var builder strings.Builder
	builder.WriteString(prompt)
	if !strings.HasSuffix(prompt, "\n") {
		builder.WriteString("\n")
	}
	builder.WriteString("\nAvailable functions:\n")
	for _, sig := range signatures {
		builder.WriteString("- ")
		builder.WriteString(sig)
		builder.WriteString("\n")
	}
	return builder.String()
}
