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

// Kind enumerates the fixed set of tools the model may call.
type Kind int

const (
	ListDirectory Kind = iota + 1
	ReadFile
	WriteFile
	RunScript
)

// Kinds lists every tool in registration order.
var Kinds = []Kind{ListDirectory, ReadFile, WriteFile, RunScript}

// String returns the wire name the model uses for the tool.
func (k Kind) String() string {
	switch k {
	case ListDirectory:
		return "list-directory"
	case ReadFile:
		return "read-file"
	case WriteFile:
		return "write-file"
	case RunScript:
		return "run-script"
	default:
		return "unknown"
	}
}

// ParamKind is the declared type of a tool parameter.
type ParamKind string

const (
	ParamString     ParamKind = "string"
	ParamStringList ParamKind = "list-of-string"
	ParamNone       ParamKind = "none"
)

// Param describes one declared tool parameter.
type Param struct {
	Name     string
	Kind     ParamKind
	Required bool
}

// ListDirectoryArgs are the arguments of list-directory.
type ListDirectoryArgs struct {
	Directory string `json:"directory,omitempty" guard:"path" jsonschema:"description=Directory to list relative to the working root (use . for the root itself)"`
}

// ReadFileArgs are the arguments of read-file.
type ReadFileArgs struct {
	FilePath string `json:"file_path" guard:"path" validate:"required" jsonschema:"description=Path of the file to read relative to the working root"`
}

// WriteFileArgs are the arguments of write-file.
type WriteFileArgs struct {
	FilePath string `json:"file_path" guard:"path" validate:"required" jsonschema:"description=Path of the file to create or overwrite relative to the working root"`
	Content  string `json:"content" jsonschema:"description=Full text content to write"`
}

// RunScriptArgs are the arguments of run-script.
type RunScriptArgs struct {
	FilePath string   `json:"file_path" guard:"path" validate:"required" jsonschema:"description=Path of the script to execute relative to the working root"`
	Args     []string `json:"args,omitempty" jsonschema:"description=Command line arguments passed to the script"`
}

// toolArgs is implemented by every per-tool argument struct.
type toolArgs interface {
	kind() Kind
	targetPath() string
}

func (ListDirectoryArgs) kind() Kind { return ListDirectory }
func (ReadFileArgs) kind() Kind      { return ReadFile }
func (WriteFileArgs) kind() Kind     { return WriteFile }
func (RunScriptArgs) kind() Kind     { return RunScript }

func (a ListDirectoryArgs) targetPath() string {
	if a.Directory == "" {
		return "."
	}
	return a.Directory
}

func (a ReadFileArgs) targetPath() string  { return a.FilePath }
func (a WriteFileArgs) targetPath() string { return a.FilePath }
func (a RunScriptArgs) targetPath() string { return a.FilePath }
