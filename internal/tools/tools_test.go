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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"localagent/internal/paths"
)

func newTestDispatcher(t *testing.T, opts Options) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	guard, err := paths.NewGuard(root, nil)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	opts.Logger = zerolog.Nop()
	return NewDispatcher(guard, NewRegistry(), opts), guard.Root()
}

type recordedCall struct {
	req    FunctionCallRequest
	result *Result
}

type fakeRecorder struct {
	calls []recordedCall
}

func (f *fakeRecorder) RecordToolCall(_ context.Context, req FunctionCallRequest, result *Result) error {
	f.calls = append(f.calls, recordedCall{req: req, result: result})
	return nil
}

func TestRegistryHasFourFixedTools(t *testing.T) {
	registry := NewRegistry()
	specs := registry.Specs()
	if len(specs) != len(Kinds) {
		t.Fatalf("expected %d tools, got %d", len(Kinds), len(specs))
	}
	for i, kind := range Kinds {
		if specs[i].Kind != kind || specs[i].Name != kind.String() {
			t.Fatalf("spec %d = %s, want %s", i, specs[i].Name, kind)
		}
		if specs[i].Description == "" {
			t.Fatalf("%s has no description", specs[i].Name)
		}
	}

	names := registry.Names()
	want := []string{"list-directory", "read-file", "run-script", "write-file"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRegistryDeclaredParameters(t *testing.T) {
	registry := NewRegistry()
	tests := []struct {
		tool      string
		signature string
		pathParam string
	}{
		{"list-directory", "directory?: string", "directory"},
		{"read-file", "file_path: string", "file_path"},
		{"write-file", "file_path: string, content: string", "file_path"},
		{"run-script", "file_path: string, args?: list-of-string", "file_path"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			spec, err := registry.Lookup(tt.tool)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got := DescribeParams(spec); got != tt.signature {
				t.Fatalf("signature = %q, want %q", got, tt.signature)
			}
			if spec.PathParam != tt.pathParam {
				t.Fatalf("path param = %q, want %q", spec.PathParam, tt.pathParam)
			}
		})
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	_, err := NewRegistry().Lookup("delete-everything")
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestOpenAIToolsDeclareSchemas(t *testing.T) {
	defs := NewRegistry().OpenAITools()
	if len(defs) != 4 {
		t.Fatalf("expected 4 tool definitions, got %d", len(defs))
	}
	for _, def := range defs {
		if def.Type != openai.ToolTypeFunction || def.Function == nil {
			t.Fatalf("unexpected definition %+v", def)
		}
		params, ok := def.Function.Parameters.(map[string]interface{})
		if !ok {
			t.Fatalf("%s: parameters are %T", def.Function.Name, def.Function.Parameters)
		}
		if params["type"] != "object" {
			t.Fatalf("%s: schema type = %v", def.Function.Name, params["type"])
		}
		if params["additionalProperties"] != false {
			t.Fatalf("%s: schema must reject extra keys", def.Function.Name)
		}
	}
}

func TestDispatchUnknownToolInvokesNothing(t *testing.T) {
	recorder := &fakeRecorder{}
	d, root := newTestDispatcher(t, Options{Recorder: recorder})

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "remove-file",
		Arguments: map[string]interface{}{"file_path": "x.txt"},
	})
	if result.OK {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "unknown tool") {
		t.Fatalf("unexpected error %q", result.Error)
	}
	if !errors.Is(result.Err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", result.Err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("root was modified: %v", entries)
	}
	if len(recorder.calls) != 1 || recorder.calls[0].result.OK {
		t.Fatalf("expected one failed recorded call, got %+v", recorder.calls)
	}
}

func TestDispatchWriteFileScenario(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "notes.txt", "content": "hello"},
	})
	if !result.OK {
		t.Fatalf("expected success, got %s", result.Error)
	}
	data, err := os.ReadFile(filepath.Join(root, "notes.txt"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q", data)
	}
	if result.Path != "notes.txt" {
		t.Fatalf("path = %q", result.Path)
	}
}

func TestDispatchListDirectoryScenario(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	if err := os.WriteFile(filepath.Join(root, "a.py"), []byte("print(1)\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "list-directory",
		Arguments: map[string]interface{}{"directory": "."},
	})
	if !result.OK {
		t.Fatalf("expected success, got %s", result.Error)
	}
	if len(result.Entries) != 1 {
		t.Fatalf("expected one entry, got %+v", result.Entries)
	}
	want := DirEntry{Name: "a.py", IsDirectory: false, Size: 10}
	if result.Entries[0] != want {
		t.Fatalf("entry = %+v, want %+v", result.Entries[0], want)
	}
	if !strings.Contains(result.Output, "a.py (file, 10 bytes)") {
		t.Fatalf("unexpected output %q", result.Output)
	}
}

func TestDispatchListDirectoryDefaultsToRoot(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := d.Dispatch(context.Background(), FunctionCallRequest{ToolName: "list-directory"})
	if !result.OK {
		t.Fatalf("expected success, got %s", result.Error)
	}
	if len(result.Entries) != 2 || result.Entries[0].Name != "b.txt" || !result.Entries[1].IsDirectory {
		t.Fatalf("unexpected entries %+v", result.Entries)
	}
}

func TestDispatchListDirectoryEmptyAndNotADirectory(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	if err := os.WriteFile(filepath.Join(root, "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	empty := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "list-directory",
		Arguments: map[string]interface{}{"directory": "empty"},
	})
	if !empty.OK || len(empty.Entries) != 0 || !strings.Contains(empty.Output, "empty") {
		t.Fatalf("unexpected result for empty dir: %+v", empty)
	}

	notDir := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "list-directory",
		Arguments: map[string]interface{}{"directory": "file.txt"},
	})
	if notDir.OK || !errors.Is(notDir.Err, ErrNotADirectory) {
		t.Fatalf("expected ErrNotADirectory, got %+v", notDir)
	}

	missing := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "list-directory",
		Arguments: map[string]interface{}{"directory": "nope"},
	})
	if missing.OK || !errors.Is(missing.Err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %+v", missing)
	}
}

func TestDispatchListDirectoryEntryCap(t *testing.T) {
	d, root := newTestDispatcher(t, Options{Limits: Limits{MaxDirectoryEntries: 2}})
	for _, name := range []string{"a", "b", "c", "d"} {
		if err := os.WriteFile(filepath.Join(root, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	result := d.Dispatch(context.Background(), FunctionCallRequest{ToolName: "list-directory"})
	if !result.OK || len(result.Entries) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains(result.Output, "[2 more entries not shown]") {
		t.Fatalf("missing overflow note in %q", result.Output)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d, _ := newTestDispatcher(t, Options{})

	tests := []struct {
		name    string
		path    string
		content string
	}{
		{"nested unicode", "deep/nested/dir/file.txt", "line one\nline two\nünïcödé\n"},
		{"ansi escapes", "c.txt", "\x1b[1mhi\x1b[0m\n"},
		{"form feeds", "pages.txt", "page1\fpage2\f\n"},
		{"nul and bell", "ctl.txt", "a\x00b\x07c\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write := d.Dispatch(context.Background(), FunctionCallRequest{
				ToolName:  "write-file",
				Arguments: map[string]interface{}{"file_path": tt.path, "content": tt.content},
			})
			if !write.OK {
				t.Fatalf("write failed: %s", write.Error)
			}

			read := d.Dispatch(context.Background(), FunctionCallRequest{
				ToolName:  "read-file",
				Arguments: map[string]interface{}{"file_path": tt.path},
			})
			if !read.OK {
				t.Fatalf("read failed: %s", read.Error)
			}
			if read.Output != tt.content {
				t.Fatalf("round trip mismatch: %q != %q", read.Output, tt.content)
			}
		})
	}
}

func TestWriteFileOverwritesAndAllowsEmptyContent(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	target := filepath.Join(root, "f.txt")
	if err := os.WriteFile(target, []byte("old content"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "f.txt", "content": ""},
	})
	if !result.OK {
		t.Fatalf("expected success, got %s", result.Error)
	}
	data, _ := os.ReadFile(target)
	if len(data) != 0 {
		t.Fatalf("expected empty file, got %q", data)
	}
}

func TestWriteFileOntoDirectory(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "dir", "content": "x"},
	})
	if result.OK || !errors.Is(result.Err, ErrIsADirectory) {
		t.Fatalf("expected ErrIsADirectory, got %+v", result)
	}
}

func TestWriteFilePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	d, root := newTestDispatcher(t, Options{})
	locked := filepath.Join(root, "locked")
	if err := os.Mkdir(locked, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "locked/f.txt", "content": "x"},
	})
	if result.OK || !errors.Is(result.Err, ErrPermission) {
		t.Fatalf("expected ErrPermission, got %+v", result)
	}
}

func TestWriteFileSizeCap(t *testing.T) {
	d, _ := newTestDispatcher(t, Options{Limits: Limits{MaxFileSizeBytes: 4}})
	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "big.txt", "content": "12345"},
	})
	if result.OK || !errors.Is(result.Err, ErrArgumentValidation) {
		t.Fatalf("expected ErrArgumentValidation, got %+v", result)
	}
}

func TestReadFileTruncation(t *testing.T) {
	const ceiling = 64
	d, root := newTestDispatcher(t, Options{Limits: Limits{MaxReadBytes: ceiling}})
	content := strings.Repeat("abcdefgh", 40)
	if err := os.WriteFile(filepath.Join(root, "big.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "read-file",
		Arguments: map[string]interface{}{"file_path": "big.txt"},
	})
	if !result.OK {
		t.Fatalf("read failed: %s", result.Error)
	}
	want := content[:ceiling] + truncationMarker(ceiling, len(content))
	if result.Output != want {
		t.Fatalf("output = %q, want %q", result.Output, want)
	}
}

func TestReadFileAtCeilingIsNotTruncated(t *testing.T) {
	const ceiling = 16
	d, root := newTestDispatcher(t, Options{Limits: Limits{MaxReadBytes: ceiling}})
	content := strings.Repeat("x", ceiling)
	if err := os.WriteFile(filepath.Join(root, "exact.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "read-file",
		Arguments: map[string]interface{}{"file_path": "exact.txt"},
	})
	if !result.OK || result.Output != content {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestReadFileErrors(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	if err := os.Mkdir(filepath.Join(root, "dir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "blob.bin"), []byte{0x7f, 'E', 'L', 'F', 0xff, 0xfe, 1}, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		kind error
	}{
		{"missing", "missing.txt", ErrNotFound},
		{"directory", "dir", ErrIsADirectory},
		{"binary", "blob.bin", ErrToolExecution},
		{"outside", "../outside.txt", ErrOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := d.Dispatch(context.Background(), FunctionCallRequest{
				ToolName:  "read-file",
				Arguments: map[string]interface{}{"file_path": tt.path},
			})
			if result.OK {
				t.Fatal("expected failure")
			}
			if !errors.Is(result.Err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, result.Err)
			}
			if !strings.HasPrefix(result.Text(), "Error: ") {
				t.Fatalf("model text should carry the error, got %q", result.Text())
			}
		})
	}
}

func TestDispatchOutOfBoundsTouchesNothing(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	guard, err := paths.NewGuard(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	d := NewDispatcher(guard, nil, Options{Logger: zerolog.Nop()})

	candidates := []string{"../escape.txt", "../../etc/passwd", "a/../../escape.txt", filepath.Join(parent, "escape.txt")}
	for _, candidate := range candidates {
		result := d.Dispatch(context.Background(), FunctionCallRequest{
			ToolName:  "write-file",
			Arguments: map[string]interface{}{"file_path": candidate, "content": "pwned"},
		})
		if result.OK || !errors.Is(result.Err, ErrOutOfBounds) {
			t.Fatalf("%s: expected ErrOutOfBounds, got %+v", candidate, result)
		}
	}
	if _, err := os.Stat(filepath.Join(parent, "escape.txt")); !os.IsNotExist(err) {
		t.Fatalf("file outside the root was created: %v", err)
	}
}

func TestDispatchArgumentValidation(t *testing.T) {
	d, _ := newTestDispatcher(t, Options{})
	tests := []struct {
		name  string
		tool  string
		args  map[string]interface{}
		param string
	}{
		{"missing required", "read-file", map[string]interface{}{}, "file_path"},
		{"empty required", "read-file", map[string]interface{}{"file_path": ""}, "file_path"},
		{"unexpected key", "read-file", map[string]interface{}{"file_path": "a", "mode": "r"}, "mode"},
		{"wrong type", "write-file", map[string]interface{}{"file_path": map[string]interface{}{}, "content": "x"}, "file_path"},
		{"missing content", "write-file", map[string]interface{}{"file_path": "a"}, "content"},
		{"bad args list", "run-script", map[string]interface{}{"file_path": "a.sh", "args": map[string]interface{}{"x": 1}}, "args"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := d.Dispatch(context.Background(), FunctionCallRequest{ToolName: tt.tool, Arguments: tt.args})
			if result.OK {
				t.Fatal("expected failure")
			}
			if !errors.Is(result.Err, ErrArgumentValidation) {
				t.Fatalf("expected ErrArgumentValidation, got %v", result.Err)
			}
			if !strings.Contains(result.Error, tt.param) {
				t.Fatalf("error %q does not name %q", result.Error, tt.param)
			}
		})
	}
}

func TestDispatchCoercesScalarArguments(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	result := d.Dispatch(context.Background(), FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "n.txt", "content": float64(42)},
	})
	if !result.OK {
		t.Fatalf("expected coercion to succeed, got %s", result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(root, "n.txt"))
	if string(data) != "42" {
		t.Fatalf("content = %q", data)
	}
}

func TestDispatchToolCallParsesJSON(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	call := openai.ToolCall{
		ID:   "call-1",
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      "write-file",
			Arguments: `{"file_path": "x.txt", "content": "hi"}`,
		},
	}
	result := d.DispatchToolCall(context.Background(), call)
	if !result.OK {
		t.Fatalf("expected success, got %s", result.Error)
	}
	if _, err := os.Stat(filepath.Join(root, "x.txt")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	call.Function.Arguments = `{"file_path": `
	result = d.DispatchToolCall(context.Background(), call)
	if result.OK || !errors.Is(result.Err, ErrArgumentValidation) {
		t.Fatalf("expected ErrArgumentValidation for invalid JSON, got %+v", result)
	}
}

func TestDispatchRecordsEveryCall(t *testing.T) {
	recorder := &fakeRecorder{}
	d, _ := newTestDispatcher(t, Options{Recorder: recorder})

	d.Dispatch(context.Background(), FunctionCallRequest{ID: "1", ToolName: "write-file", Arguments: map[string]interface{}{"file_path": "a", "content": "b"}})
	d.Dispatch(context.Background(), FunctionCallRequest{ID: "2", ToolName: "read-file", Arguments: map[string]interface{}{"file_path": "missing"}})

	if len(recorder.calls) != 2 {
		t.Fatalf("expected 2 recorded calls, got %d", len(recorder.calls))
	}
	if !recorder.calls[0].result.OK || recorder.calls[1].result.OK {
		t.Fatalf("unexpected outcomes %+v", recorder.calls)
	}
	if recorder.calls[1].req.ID != "2" {
		t.Fatalf("calls recorded out of order")
	}

	rejected := d.Reject(context.Background(), FunctionCallRequest{ID: "3", ToolName: "list-directory"}, newArgumentError("", "arguments are not a JSON object"))
	if rejected.OK || !errors.Is(rejected.Err, ErrArgumentValidation) {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
	if len(recorder.calls) != 3 || recorder.calls[2].result != rejected {
		t.Fatalf("rejected call not recorded: %+v", recorder.calls)
	}
}

func TestDispatchCancelledContext(t *testing.T) {
	d, root := newTestDispatcher(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Dispatch(ctx, FunctionCallRequest{
		ToolName:  "write-file",
		Arguments: map[string]interface{}{"file_path": "late.txt", "content": "x"},
	})
	if result.OK || !errors.Is(result.Err, ErrToolExecution) {
		t.Fatalf("expected ErrToolExecution, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(root, "late.txt")); !os.IsNotExist(err) {
		t.Fatal("operation ran despite cancelled context")
	}
}

func TestTimeoutForTool(t *testing.T) {
	tests := []struct {
		name string
		cfg  TimeoutConfig
		tool string
		want time.Duration
	}{
		{"builtin", TimeoutConfig{}, "run-script", defaultScriptTimeout},
		{"no builtin", TimeoutConfig{}, "read-file", 0},
		{"default wins over builtin", TimeoutConfig{Default: time.Minute}, "run-script", time.Minute},
		{"per tool wins", TimeoutConfig{Default: time.Minute, PerTool: map[string]time.Duration{"run-script": 5 * time.Second}}, "run-script", 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.TimeoutForTool(tt.tool); got != tt.want {
				t.Fatalf("TimeoutForTool(%s) = %s, want %s", tt.tool, got, tt.want)
			}
		})
	}
}
