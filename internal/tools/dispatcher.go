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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"localagent/internal/paths"
)

// FunctionCallRequest is one tool call emitted by the model.
type FunctionCallRequest struct {
	ID        string
	ToolName  string
	Arguments map[string]interface{}
}

// DirEntry is one entry of a list-directory result.
type DirEntry struct {
	Name        string `json:"name"`
	IsDirectory bool   `json:"is_directory"`
	Size        int64  `json:"size"`
}

// Result is the outcome of a dispatched call. Failures are carried in Error
// and Err; Dispatch never returns a Go error.
type Result struct {
	ToolName string
	OK       bool
	Output   string
	Error    string
	Err      error
	// Entries is set by list-directory.
	Entries []DirEntry
	// Path is the guarded target, relative to the working root.
	Path     string
	Duration time.Duration
}

// Text renders the result for the model.
func (r *Result) Text() string {
	if r.OK {
		return r.Output
	}
	text := "Error: " + r.Error
	if strings.TrimSpace(r.Output) != "" {
		text += "\n" + r.Output
	}
	return text
}

func (r *Result) fail(err error) {
	r.OK = false
	r.Err = err
	r.Error = err.Error()
}

// Recorder receives every dispatched call and its outcome.
type Recorder interface {
	RecordToolCall(ctx context.Context, req FunctionCallRequest, result *Result) error
}

// Options configures a Dispatcher.
type Options struct {
	Limits   Limits
	Timeouts TimeoutConfig
	// Interpreters maps a file extension such as ".py" to the command line
	// used to run scripts with it.
	Interpreters map[string]string
	Logger       zerolog.Logger
	Recorder     Recorder
}

// Dispatcher validates and executes tool calls beneath a working root.
type Dispatcher struct {
	guard        *paths.Guard
	registry     *Registry
	limits       Limits
	timeouts     TimeoutConfig
	interpreters map[string][]string
	logger       zerolog.Logger
	recorder     Recorder
}

// NewDispatcher creates a dispatcher confined to guard's root.
func NewDispatcher(guard *paths.Guard, registry *Registry, opts Options) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{
		guard:        guard,
		registry:     registry,
		limits:       normalizeLimits(opts.Limits),
		timeouts:     opts.Timeouts,
		interpreters: buildInterpreters(opts.Interpreters),
		logger:       opts.Logger,
		recorder:     opts.Recorder,
	}
}

// Registry returns the tool registry used by the dispatcher.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Root returns the working root.
func (d *Dispatcher) Root() string {
	return d.guard.Root()
}

// Dispatch looks up, validates, guards and runs a single call.
func (d *Dispatcher) Dispatch(ctx context.Context, req FunctionCallRequest) (result *Result) {
	start := time.Now()
	result = &Result{ToolName: req.ToolName}
	d.logger.Debug().
		Str("tool", req.ToolName).
		Str("call_id", req.ID).
		Interface("args", req.Arguments).
		Msg("Dispatching tool call")

	defer func() {
		if r := recover(); r != nil {
			result.Output = ""
			result.fail(NewToolExecutionError(req.ToolName, "", fmt.Errorf("panic: %v", r)))
		}
		result.Duration = time.Since(start)
		d.logResult(req, result)
		if d.recorder != nil {
			if err := d.recorder.RecordToolCall(ctx, req, result); err != nil {
				d.logger.Warn().Err(err).Str("tool", req.ToolName).Msg("Failed to record tool call")
			}
		}
	}()

	spec, err := d.registry.Lookup(req.ToolName)
	if err != nil {
		result.fail(err)
		return result
	}

	args, err := spec.decode(req.Arguments)
	if err != nil {
		result.fail(err)
		return result
	}

	target, err := d.guard.Resolve(args.targetPath())
	if err != nil {
		result.fail(err)
		return result
	}
	result.Path = d.guard.Rel(target)

	if err := ctx.Err(); err != nil {
		result.fail(NewToolExecutionError(spec.Name, "", err))
		return result
	}

	output, err := d.invoke(ctx, args, target, result)
	result.Output, _ = truncateBytes(output, d.limits.MaxOutputBytes)
	if err != nil {
		result.fail(err)
		return result
	}
	result.OK = true
	return result
}

// ParseArguments decodes the JSON argument object of a model tool call.
func ParseArguments(raw string) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, newArgumentError("", fmt.Sprintf("arguments are not a JSON object: %v", err))
	}
	return args, nil
}

// DispatchToolCall runs a native OpenAI tool call.
func (d *Dispatcher) DispatchToolCall(ctx context.Context, call openai.ToolCall) *Result {
	args, err := ParseArguments(call.Function.Arguments)
	if err != nil {
		return d.Reject(ctx, FunctionCallRequest{ID: call.ID, ToolName: call.Function.Name}, err)
	}
	return d.Dispatch(ctx, FunctionCallRequest{
		ID:        call.ID,
		ToolName:  call.Function.Name,
		Arguments: args,
	})
}

// Reject reports a call whose arguments could not be decoded. Nothing is
// invoked; the failure is logged and recorded like any other call.
func (d *Dispatcher) Reject(ctx context.Context, req FunctionCallRequest, err error) *Result {
	result := &Result{ToolName: req.ToolName}
	result.fail(err)
	d.logResult(req, result)
	if d.recorder != nil {
		if rerr := d.recorder.RecordToolCall(ctx, req, result); rerr != nil {
			d.logger.Warn().Err(rerr).Str("tool", req.ToolName).Msg("Failed to record tool call")
		}
	}
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, args toolArgs, target string, result *Result) (string, error) {
	switch a := args.(type) {
	case ListDirectoryArgs:
		entries, output, err := d.listDirectory(ctx, target)
		result.Entries = entries
		return output, err
	case ReadFileArgs:
		return d.readFile(target)
	case WriteFileArgs:
		return d.writeFile(target, a.Content)
	case RunScriptArgs:
		output, err := d.runScript(ctx, target, a.Args)
		return SanitizeOutput(output), err
	default:
		return "", NewToolExecutionError(args.kind().String(), "", fmt.Errorf("no operation bound"))
	}
}

func (d *Dispatcher) logResult(req FunctionCallRequest, result *Result) {
	event := d.logger.Info()
	if !result.OK {
		event = d.logger.Warn().Str("error", result.Error)
	}
	event.
		Str("tool", req.ToolName).
		Str("call_id", req.ID).
		Str("path", result.Path).
		Bool("ok", result.OK).
		Int("output_bytes", len(result.Output)).
		Dur("duration_ms", result.Duration).
		Msg("Tool call finished")
}
