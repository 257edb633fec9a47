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

package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"localagent/internal/audit"
	"localagent/internal/theme"
	"localagent/internal/tools"
)

const (
	defaultWidth  = 80
	maxArgPreview = 60
)

// Printer writes user-facing output. It is safe for use from the session
// goroutine and the input loop at the same time.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	colors  *theme.ColorScheme
	verbose bool
	prompt  string
}

// NewPrinter creates a printer writing to out with the given colors.
func NewPrinter(out io.Writer, colors *theme.ColorScheme) *Printer {
	if colors == nil {
		colors = theme.DisabledColorScheme()
	}
	return &Printer{out: out, colors: colors}
}

// SetVerbose controls whether every tool result is printed.
func (p *Printer) SetVerbose(verbose bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verbose = verbose
}

// ToggleVerbose flips verbose mode and returns the new value.
func (p *Printer) ToggleVerbose() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verbose = !p.verbose
	return p.verbose
}

// Verbose reports whether verbose mode is on.
func (p *Printer) Verbose() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verbose
}

// SetPrompt records the prompt being answered, used to decide whether file
// contents are shown.
func (p *Printer) SetPrompt(prompt string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = prompt
}

// Banner prints the startup header.
func (p *Printer) Banner(model, root string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors.Header.Fprintln(p.out, "localagent")
	p.colors.Muted.Fprintf(p.out, "model: %s\nroot:  %s\n", model, root)
	p.colors.Muted.Fprintln(p.out, rule(p.width()))
}

// Answer prints the model's final answer.
func (p *Printer) Answer(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintln(p.out)
	p.colors.Answer.Fprintln(p.out, text)
}

// Info prints a neutral message.
func (p *Printer) Info(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors.Success.Fprintf(p.out, format+"\n", args...)
}

// Warn prints a warning.
func (p *Printer) Warn(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors.Warning.Fprintf(p.out, "Warning: "+format+"\n", args...)
}

// Error prints an error.
func (p *Printer) Error(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors.Error.Fprintf(p.out, "Error: "+format+"\n", args...)
}

// Models prints the installed models, marking the active one.
func (p *Printer) Models(models []string, current string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(models) == 0 {
		p.colors.Warning.Fprintln(p.out, "No models available")
		return
	}
	p.colors.Header.Fprintln(p.out, "Available models:")
	for _, name := range models {
		if name == current {
			p.colors.Success.Fprintf(p.out, "* %s\n", name)
			continue
		}
		fmt.Fprintf(p.out, "  %s\n", name)
	}
}

// AuditEntries prints recent audit log entries with the totals.
func (p *Printer) AuditEntries(entries []audit.Entry, total, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors.Header.Fprintf(p.out, "Tool calls: %d total, %d failed\n", total, failed)
	if len(entries) == 0 {
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOOL\tPATH\tSTATUS\tDURATION")
	for _, e := range entries {
		status := "ok"
		if !e.OK {
			status = "failed: " + preview(e.Error, maxArgPreview)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("15:04:05"), e.ToolName, e.Path, status, e.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()
}

// Message prints one conversation message, shortened to a single line.
func (p *Printer) Message(role, content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	label := role
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	p.colors.Header.Fprintf(p.out, "%s: ", label)
	fmt.Fprintln(p.out, preview(strings.TrimSpace(content), 2*maxArgPreview))
}

// OnToolCall prints the call about to run.
func (p *Printer) OnToolCall(req tools.FunctionCallRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.colors.ToolCall.Fprintf(p.out, "-> %s(%s)\n", req.ToolName, formatArguments(req.Arguments))
}

// OnToolResult prints the outcome of a call.
func (p *Printer) OnToolResult(req tools.FunctionCallRequest, result *tools.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if result == nil {
		return
	}
	if !result.OK {
		p.colors.Error.Fprintf(p.out, "   x %s\n", result.Error)
		return
	}
	if !ShouldShowResult(result.ToolName, p.prompt, p.verbose) {
		p.colors.Muted.Fprintf(p.out, "   ok (%d bytes)\n", len(result.Output))
		return
	}
	p.renderResult(result)
}

// ToolOutput prints a result in full regardless of verbosity.
func (p *Printer) ToolOutput(result *tools.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if result == nil {
		return
	}
	if !result.OK {
		p.colors.Error.Fprintf(p.out, "Error: %s\n", result.Error)
		return
	}
	p.renderResult(result)
}

func (p *Printer) renderResult(result *tools.Result) {
	switch result.ToolName {
	case tools.ListDirectory.String():
		p.renderEntries(result)
	case tools.ReadFile.String():
		p.renderFile(result)
	case tools.RunScript.String():
		p.colors.Muted.Fprintln(p.out, indent(result.Output, "   "))
	default:
		p.colors.Success.Fprintf(p.out, "   %s\n", result.Output)
	}
}

func (p *Printer) renderEntries(result *tools.Result) {
	if len(result.Entries) == 0 {
		p.colors.Muted.Fprintf(p.out, "   %s\n", firstLine(result.Output))
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "   Name\tType\tSize")
	for _, e := range result.Entries {
		kind, size := "file", formatSize(e.Size)
		if e.IsDirectory {
			kind, size = "directory", "-"
		}
		fmt.Fprintf(tw, "   %s\t%s\t%s\n", e.Name, kind, size)
	}
	_ = tw.Flush()
}

func (p *Printer) renderFile(result *tools.Result) {
	p.colors.Header.Fprintf(p.out, "   Content (%s):\n", LanguageFor(result.Path))
	lines := strings.Split(strings.TrimRight(result.Output, "\n"), "\n")
	for i, line := range lines {
		p.colors.Muted.Fprintf(p.out, "%3d | ", i+1)
		fmt.Fprintln(p.out, strings.ReplaceAll(tools.SanitizeOutput(line), "\r", ""))
	}
}

func (p *Printer) width() int {
	if f, ok := p.out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			return w
		}
	}
	return defaultWidth
}

func rule(width int) string {
	if width > defaultWidth {
		width = defaultWidth
	}
	return strings.Repeat("-", width)
}

func formatArguments(args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", key, preview(fmt.Sprintf("%v", args[key]), maxArgPreview)))
	}
	return strings.Join(parts, ", ")
}

func preview(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
