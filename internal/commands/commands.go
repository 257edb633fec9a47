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

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"localagent/internal/audit"
	"localagent/internal/chat"
	"localagent/internal/tools"
	"localagent/internal/ui"
)

const statusEntries = 10

// Env is what command handlers act on. Audit may be nil.
type Env struct {
	Session *chat.Session
	Printer *ui.Printer
	Audit   *audit.Store
}

// Handler runs a command and reports whether the program should exit.
type Handler func(ctx context.Context, env *Env, args []string) (quit bool)

// Command represents a slash command
type Command struct {
	Name        string
	Usage       string
	Description string
	Handler     Handler
}

// Registry holds all available commands
type Registry struct {
	commands map[string]*Command
	env      *Env
}

// NewRegistry creates a new command registry
func NewRegistry(env *Env) *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		env:      env,
	}

	// Register built-in commands
	r.Register("quit", "", "Exit the application", handleQuit)
	r.Register("exit", "", "Exit the application", handleQuit)
	r.Register("clear", "", "Clear conversation history", handleClear)
	r.Register("history", "", "Display conversation history", handleHistory)
	r.Register("model", "<name>", "Switch to another installed model", handleModel)
	r.Register("listmodels", "", "List the models the runtime serves", handleListModels)
	r.Register("verbose", "", "Toggle showing every tool result", handleVerbose)
	r.Register("status", "", "Show the session state and recent tool calls", handleStatus)
	r.Register("pwd", "", "Show the working root", handlePwd)
	r.Register("ls", "[dir]", "List a directory under the working root", handleLs)
	r.Register("cat", "<file>", "Show a file under the working root", handleCat)
	r.Register("help", "", "Show available commands", r.handleHelp)

	return r
}

// Register adds a new command to the registry
func (r *Registry) Register(name, usage, description string, handler Handler) {
	r.commands[name] = &Command{
		Name:        name,
		Usage:       usage,
		Description: description,
		Handler:     handler,
	}
}

// Execute runs input when it is a slash command. handled is false for
// ordinary prompts.
func (r *Registry) Execute(ctx context.Context, input string) (handled, quit bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return false, false
	}

	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		r.env.Printer.Error("empty command (type /help for available commands)")
		return true, false
	}
	name := strings.ToLower(fields[0])

	cmd, exists := r.commands[name]
	if !exists {
		r.env.Printer.Error("unknown command: /%s (type /help for available commands)", name)
		return true, false
	}

	return true, cmd.Handler(ctx, r.env, fields[1:])
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Names returns the command names with their leading slash, for completion.
func (r *Registry) Names() []string {
	cmds := r.Commands()
	names := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		names = append(names, "/"+cmd.Name)
	}
	return names
}

// Command handlers

func handleQuit(ctx context.Context, env *Env, args []string) bool {
	return true
}

func handleClear(ctx context.Context, env *Env, args []string) bool {
	env.Session.ClearHistory()
	env.Printer.Info("Chat history cleared")
	return false
}

func handleHistory(ctx context.Context, env *Env, args []string) bool {
	history := env.Session.History()
	if len(history) == 0 {
		env.Printer.Info("No conversation yet")
		return false
	}
	for _, msg := range history {
		content := msg.Content
		if content == "" && len(msg.ToolCalls) > 0 {
			names := make([]string, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				names = append(names, call.Function.Name)
			}
			content = "[calls " + strings.Join(names, ", ") + "]"
		}
		env.Printer.Message(msg.Role, content)
	}
	return false
}

func handleModel(ctx context.Context, env *Env, args []string) bool {
	if len(args) != 1 {
		env.Printer.Info("Current model: %s (usage: /model <name>)", env.Session.Model())
		return false
	}
	name := args[0]
	available, err := env.Session.ListModels(ctx)
	if err != nil {
		env.Printer.Error("%v", err)
		return false
	}
	if !chat.HasModel(available, name) {
		env.Printer.Error("model %q is not installed (see /listmodels)", name)
		return false
	}
	env.Session.SetModel(name)
	env.Printer.Info("Switched to model %s", name)
	return false
}

func handleListModels(ctx context.Context, env *Env, args []string) bool {
	models, err := env.Session.ListModels(ctx)
	if err != nil {
		env.Printer.Error("%v", err)
		return false
	}
	env.Printer.Models(models, env.Session.Model())
	return false
}

func handleVerbose(ctx context.Context, env *Env, args []string) bool {
	status := "disabled"
	if env.Printer.ToggleVerbose() {
		status = "enabled"
	}
	env.Printer.Info("Verbose mode %s", status)
	return false
}

func handleStatus(ctx context.Context, env *Env, args []string) bool {
	env.Printer.Info("Model: %s", env.Session.Model())
	env.Printer.Info("Working root: %s", env.Session.Dispatcher.Root())
	env.Printer.Info("Messages: %d, model requests in last run: %d", len(env.Session.History()), env.Session.Turns())
	if env.Audit == nil {
		return false
	}
	total, failed, err := env.Audit.Count(ctx)
	if err != nil {
		env.Printer.Error("%v", err)
		return false
	}
	entries, err := env.Audit.Recent(ctx, statusEntries)
	if err != nil {
		env.Printer.Error("%v", err)
		return false
	}
	env.Printer.AuditEntries(entries, total, failed)
	return false
}

func handlePwd(ctx context.Context, env *Env, args []string) bool {
	env.Printer.Info("Working root: %s", env.Session.Dispatcher.Root())
	return false
}

// handleLs and handleCat go through the dispatcher so the boundary guard
// applies to the user's paths exactly as to the model's.
func handleLs(ctx context.Context, env *Env, args []string) bool {
	dir := "."
	if len(args) > 0 {
		dir = strings.Join(args, " ")
	}
	env.Printer.ToolOutput(env.Session.Dispatcher.Dispatch(ctx, tools.FunctionCallRequest{
		ToolName:  tools.ListDirectory.String(),
		Arguments: map[string]interface{}{"directory": dir},
	}))
	return false
}

func handleCat(ctx context.Context, env *Env, args []string) bool {
	if len(args) == 0 {
		env.Printer.Error("usage: /cat <file>")
		return false
	}
	env.Printer.ToolOutput(env.Session.Dispatcher.Dispatch(ctx, tools.FunctionCallRequest{
		ToolName:  tools.ReadFile.String(),
		Arguments: map[string]interface{}{"file_path": strings.Join(args, " ")},
	}))
	return false
}

func (r *Registry) handleHelp(ctx context.Context, env *Env, args []string) bool {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, cmd := range r.Commands() {
		name := "/" + cmd.Name
		if cmd.Usage != "" {
			name += " " + cmd.Usage
		}
		fmt.Fprintf(&b, "  %-18s %s\n", name, cmd.Description)
	}
	b.WriteString("Anything else is sent to the model as a prompt.")
	env.Printer.Info("%s", b.String())
	return false
}
