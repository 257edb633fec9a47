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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"unicode/utf8"

	apperrors "localagent/internal/errors"
)

func (d *Dispatcher) listDirectory(ctx context.Context, dir string) ([]DirEntry, string, error) {
	rel := d.guard.Rel(dir)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, "", classifyFSError(rel, "listing", err)
	}
	if !info.IsDir() {
		return nil, "", apperrors.New(apperrors.CodeNotADirectory, fmt.Sprintf("'%s' is not a directory", rel))
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", classifyFSError(rel, "listing", err)
	}
	sort.Slice(dirEntries, func(i, j int) bool { return dirEntries[i].Name() < dirEntries[j].Name() })

	omitted := 0
	if len(dirEntries) > d.limits.MaxDirectoryEntries {
		omitted = len(dirEntries) - d.limits.MaxDirectoryEntries
		dirEntries = dirEntries[:d.limits.MaxDirectoryEntries]
	}

	entries := make([]DirEntry, 0, len(dirEntries))
	var result strings.Builder
	fmt.Fprintf(&result, "Files in '%s':\n", rel)
	for _, entry := range dirEntries {
		if err := ensureContext(ctx); err != nil {
			return nil, "", err
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&result, "%s (unknown)\n", entry.Name())
			continue
		}
		e := DirEntry{Name: entry.Name(), IsDirectory: info.IsDir(), Size: info.Size()}
		entries = append(entries, e)
		kind := "file"
		if e.IsDirectory {
			kind = "directory"
		}
		fmt.Fprintf(&result, "%s (%s, %d bytes)\n", e.Name, kind, e.Size)
	}
	if len(entries) == 0 && omitted == 0 {
		return entries, fmt.Sprintf("Directory '%s' is empty", rel), nil
	}
	if omitted > 0 {
		fmt.Fprintf(&result, "[%d more entries not shown]\n", omitted)
	}
	return entries, strings.TrimRight(result.String(), "\n"), nil
}

func (d *Dispatcher) readFile(path string) (string, error) {
	rel := d.guard.Rel(path)
	info, err := os.Stat(path)
	if err != nil {
		return "", classifyFSError(rel, "reading", err)
	}
	if info.IsDir() {
		return "", apperrors.New(apperrors.CodeIsADirectory, fmt.Sprintf("'%s' is a directory", rel))
	}

	f, err := os.Open(path)
	if err != nil {
		return "", classifyFSError(rel, "reading", err)
	}
	defer f.Close()

	ceiling := d.limits.MaxReadBytes
	content, err := io.ReadAll(io.LimitReader(f, int64(ceiling)+1))
	if err != nil {
		return "", classifyFSError(rel, "reading", err)
	}

	truncated := len(content) > ceiling
	if truncated {
		content = content[:ceiling]
	}
	if !isTextContent(content, truncated) {
		return "", NewToolExecutionError(ReadFile.String(), "reading", fmt.Errorf("'%s' is not valid UTF-8; read-file supports text only", rel))
	}
	if !truncated {
		return string(content), nil
	}

	total := int(info.Size())
	if total <= ceiling {
		total = ceiling + 1
	}
	return string(content) + truncationMarker(ceiling, total), nil
}

func (d *Dispatcher) writeFile(path, content string) (string, error) {
	rel := d.guard.Rel(path)
	if int64(len(content)) > d.limits.MaxFileSizeBytes {
		return "", newArgumentError("content", fmt.Sprintf("exceeds maximum size of %d bytes", d.limits.MaxFileSizeBytes))
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "", apperrors.New(apperrors.CodeIsADirectory, fmt.Sprintf("'%s' is a directory", rel))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", classifyFSError(rel, "writing", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", classifyFSError(rel, "writing", err)
	}

	return fmt.Sprintf("Successfully wrote %d bytes to '%s'", len(content), rel), nil
}

// classifyFSError maps OS failures onto tool error kinds.
func classifyFSError(rel, operation string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return newNotFoundError(rel, err)
	case errors.Is(err, fs.ErrPermission):
		return newPermissionError(rel, operation, err)
	case errors.Is(err, syscall.ENOTDIR):
		return apperrors.Wrap(apperrors.CodeNotADirectory, fmt.Sprintf("a parent of '%s' is not a directory", rel), err)
	case errors.Is(err, syscall.EISDIR):
		return apperrors.Wrap(apperrors.CodeIsADirectory, fmt.Sprintf("'%s' is a directory", rel), err)
	default:
		return NewToolExecutionError(rel, operation, err)
	}
}

// isTextContent reports whether data is valid UTF-8, the only form write-file
// can store. An excerpt may end in the middle of a multi-byte rune, which is
// tolerated when cut is set.
func isTextContent(data []byte, cut bool) bool {
	if cut {
		for i := 0; i < utf8.UTFMax-1 && len(data) > 0 && !utf8.Valid(data); i++ {
			data = data[:len(data)-1]
		}
	}
	return utf8.Valid(data)
}

func ensureContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
