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
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	apperrors "localagent/internal/errors"
)

var defaultInterpreters = map[string][]string{
	".py":   {"python3"},
	".sh":   {"sh"},
	".bash": {"bash"},
	".js":   {"node"},
	".rb":   {"ruby"},
	".pl":   {"perl"},
}

func buildInterpreters(overrides map[string]string) map[string][]string {
	interpreters := make(map[string][]string, len(defaultInterpreters)+len(overrides))
	for ext, argv := range defaultInterpreters {
		interpreters[ext] = argv
	}
	for ext, command := range overrides {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		fields := strings.Fields(command)
		if len(fields) == 0 {
			delete(interpreters, ext)
			continue
		}
		interpreters[ext] = fields
	}
	return interpreters
}

// commandFor picks the interpreter for script by extension, falling back to
// running the file directly when it is executable.
func (d *Dispatcher) commandFor(script string, info os.FileInfo, args []string) (string, []string, error) {
	ext := strings.ToLower(filepath.Ext(script))
	if argv, ok := d.interpreters[ext]; ok {
		cmdArgs := append(append(append([]string{}, argv[1:]...), script), args...)
		return argv[0], cmdArgs, nil
	}
	if info.Mode().Perm()&0o111 != 0 {
		return script, append([]string{}, args...), nil
	}
	return "", nil, NewToolExecutionError(RunScript.String(), "", fmt.Errorf("no interpreter configured for '%s' files and the script is not executable", ext))
}

func (d *Dispatcher) runScript(ctx context.Context, script string, args []string) (string, error) {
	rel := d.guard.Rel(script)
	info, err := os.Stat(script)
	if err != nil {
		return "", classifyFSError(rel, "running", err)
	}
	if info.IsDir() {
		return "", apperrors.New(apperrors.CodeIsADirectory, fmt.Sprintf("'%s' is a directory", rel))
	}

	name, cmdArgs, err := d.commandFor(script, info, args)
	if err != nil {
		return "", err
	}

	timeout := d.timeouts.TimeoutForTool(RunScript.String())
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout := newCappedBuffer(d.limits.MaxStreamBytes)
	stderr := newCappedBuffer(d.limits.MaxStreamBytes)

	cmd := exec.CommandContext(runCtx, name, cmdArgs...)
	cmd.Dir = d.guard.Root()
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	configureProcessGroup(cmd)

	d.logger.Debug().Str("command", name).Strs("args", cmdArgs).Dur("timeout", timeout).Msg("Running script")
	runErr := cmd.Run()
	killProcessGroup(cmd)

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	output := formatScriptOutput(stdout.String(), stderr.String(), exitCode)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return output, apperrors.New(apperrors.CodeTimeout, fmt.Sprintf("script '%s' timed out after %s", rel, timeout))
	}
	if ctx.Err() != nil {
		return output, NewToolExecutionError(RunScript.String(), "running", ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// The script ran; its exit status is part of the output.
			return output, nil
		}
		switch {
		case errors.Is(runErr, exec.ErrWaitDelay):
			// Exited, but a background child kept the output pipes open.
			return output, nil
		case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist):
			return "", NewToolExecutionError(RunScript.String(), "starting", fmt.Errorf("interpreter %q not found", name))
		case errors.Is(runErr, fs.ErrPermission):
			return "", newPermissionError(rel, "executing", runErr)
		default:
			return output, NewToolExecutionError(RunScript.String(), "running", runErr)
		}
	}
	return output, nil
}

func formatScriptOutput(stdout, stderr string, exitCode int) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString("STDOUT:\n")
		b.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteString("\n")
		}
	}
	if stderr != "" {
		b.WriteString("STDERR:\n")
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "Exit code: %d", exitCode)
	return b.String()
}
