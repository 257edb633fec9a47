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

// Package ui renders the agent's progress and results on the console.
package ui

import (
	"path/filepath"
	"strings"

	"localagent/internal/tools"
)

// showContentKeywords are the prompt phrases that ask to see a file.
var showContentKeywords = []string{
	"show", "display", "view", "see", "content", "contents", "read",
	"what is", "what's", "tell me about", "examine", "look at", "open",
	"check", "inspect",
}

// ShouldShowResult reports whether a tool's output is printed to the user.
// File contents are only printed when the prompt asks for them.
func ShouldShowResult(toolName, prompt string, verbose bool) bool {
	if verbose {
		return true
	}
	if toolName != tools.ReadFile.String() {
		return true
	}
	lower := strings.ToLower(prompt)
	for _, keyword := range showContentKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

var languages = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".go":   "go",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".sh":   "bash",
	".bash": "bash",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".html": "html",
	".css":  "css",
	".sql":  "sql",
	".xml":  "xml",
	".txt":  "text",
}

// LanguageFor guesses the language of a file from its extension.
func LanguageFor(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}
