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

package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"

	apperrors "localagent/internal/errors"
)

// MaxPathLength bounds raw path arguments.
const MaxPathLength = 4096

// ErrOutOfBounds is the errors.Is target for every guard rejection.
var ErrOutOfBounds = apperrors.Kind(apperrors.CodeOutOfBounds)

// Guard confines paths to a single working root.
type Guard struct {
	root  string // absolute, symlinks resolved
	given string // absolute, as configured
	deny  []string
}

// NewGuard resolves root once and returns a guard for it. deny holds
// doublestar patterns, relative to the root, that are rejected even inside it.
func NewGuard(root string, deny []string) (*Guard, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	given, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid working root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(given)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat working root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("working root %s is not a directory", resolved)
	}
	for _, pattern := range deny {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid deny pattern %q", pattern)
		}
	}
	return &Guard{root: resolved, given: given, deny: append([]string{}, deny...)}, nil
}

// Root returns the resolved working root.
func (g *Guard) Root() string {
	return g.root
}

// Resolve maps candidate to an absolute path beneath the root. Relative
// candidates are joined to the root; absolute ones must already point inside
// it. Symlinks are resolved before the final prefix check.
func (g *Guard) Resolve(candidate string) (string, error) {
	if err := ValidatePathString(candidate, MaxPathLength); err != nil {
		return "", outOfBounds(candidate, err.Error())
	}

	var abs string
	if filepath.IsAbs(candidate) {
		abs = filepath.Clean(candidate)
		if !HasPathPrefix(abs, g.root) && HasPathPrefix(abs, g.given) {
			rel, err := filepath.Rel(g.given, abs)
			if err != nil {
				return "", outOfBounds(candidate, err.Error())
			}
			abs = filepath.Join(g.root, rel)
		}
	} else {
		abs = filepath.Join(g.root, filepath.Clean(candidate))
	}
	if !HasPathPrefix(abs, g.root) {
		return "", outOfBounds(candidate, "path escapes working root")
	}

	resolved, err := ResolveSymlinkedPath(abs)
	if err != nil {
		return "", outOfBounds(candidate, err.Error())
	}
	if !HasPathPrefix(resolved, g.root) {
		return "", outOfBounds(candidate, "path escapes working root through a symlink")
	}

	if len(g.deny) > 0 {
		rel, err := filepath.Rel(g.root, resolved)
		if err != nil {
			return "", outOfBounds(candidate, err.Error())
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range g.deny {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				return "", outOfBounds(candidate, fmt.Sprintf("path matches denied pattern %q", pattern))
			}
		}
	}

	return resolved, nil
}

// Rel returns path relative to the root, for display.
func (g *Guard) Rel(path string) string {
	rel, err := filepath.Rel(g.root, path)
	if err != nil {
		return path
	}
	return rel
}

func outOfBounds(candidate, reason string) error {
	return apperrors.New(apperrors.CodeOutOfBounds, fmt.Sprintf("path %q rejected: %s", candidate, reason))
}

// ValidatePathString validates raw path input before resolution.
func ValidatePathString(path string, maxLen int) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if strings.IndexByte(path, 0) != -1 {
		return fmt.Errorf("path contains null byte")
	}
	if !utf8.ValidString(path) {
		return fmt.Errorf("path is not valid UTF-8")
	}
	for _, r := range path {
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r) || unicode.Is(unicode.Me, r) {
			return fmt.Errorf("path contains unsupported unicode combining mark")
		}
	}
	if maxLen > 0 {
		if len(path) > maxLen {
			return fmt.Errorf("path exceeds maximum length of %d characters", maxLen)
		}
		if len(filepath.Clean(path)) > maxLen {
			return fmt.Errorf("path exceeds maximum length of %d characters", maxLen)
		}
	}
	return nil
}

// ResolveSymlinkedPath resolves symlinks in the deepest existing ancestor of
// path and re-attaches the components that do not exist yet.
func ResolveSymlinkedPath(path string) (string, error) {
	existing := path
	var tail []string
	for {
		_, err := os.Lstat(existing)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat path: %v", err)
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		tail = append([]string{filepath.Base(existing)}, tail...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %v", err)
	}
	return filepath.Join(append([]string{resolved}, tail...)...), nil
}

// HasPathPrefix returns true when path is within base.
func HasPathPrefix(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(os.PathSeparator)) && rel != "..")
}
