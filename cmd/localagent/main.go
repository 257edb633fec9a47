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

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"localagent/internal/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type options struct {
	prompt        string
	interactive   bool
	verbose       bool
	model         string
	listModels    bool
	root          string
	configPath    string
	maxIterations int
	logFile       string
	debug         bool
	noColor       bool
	auditDB       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "localagent [prompt]",
		Short: "Let a local model list, read, write and run files under one directory",
		Long: `localagent sends a prompt to a model served by Ollama and lets the model
call four tools: list-directory, read-file, write-file and run-script. All
tools are confined to the working root.

The prompt is taken from --prompt, the positional arguments, or stdin
("-" or a pipe). Without a prompt, --interactive starts a console session.`,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "prompt to send to the model")
	flags.BoolVarP(&opts.interactive, "interactive", "i", false, "start an interactive session")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "show every tool result")
	flags.StringVarP(&opts.model, "model", "m", "", "model to use (default "+config.DefaultModel+")")
	flags.BoolVar(&opts.listModels, "list-models", false, "list the models the runtime serves and exit")
	flags.StringVar(&opts.root, "root", "", "working root the tools are confined to (default .)")
	flags.StringVarP(&opts.configPath, "config", "c", config.DefaultConfigFile, "config file (JSON or YAML)")
	flags.IntVar(&opts.maxIterations, "max-iterations", 0, "maximum model requests per prompt (default 20)")
	flags.StringVar(&opts.logFile, "log-file", "", "write logs to this file")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	flags.StringVar(&opts.auditDB, "audit-db", "", "record tool calls in this SQLite database")

	return cmd
}

func initLogger(debug bool, logFilePath string) (zerolog.Logger, io.Closer, error) {
	// Set log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// Configure output
	var output io.Writer
	var closer io.Closer
	if logFilePath != "" {
		// Log to file only
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = file
		closer = file
	} else {
		// No logging to console by default - use io.Discard
		output = io.Discard
	}

	// Create logger with timestamp
	return zerolog.New(output).With().Timestamp().Logger(), closer, nil
}
