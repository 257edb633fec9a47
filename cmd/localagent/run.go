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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"localagent/internal/audit"
	"localagent/internal/chat"
	"localagent/internal/config"
	"localagent/internal/paths"
	"localagent/internal/theme"
	"localagent/internal/tools"
	"localagent/internal/ui"
)

// app holds everything a prompt run needs.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	session *chat.Session
	printer *ui.Printer
	audit   *audit.Store
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	ctx := cmd.Context()

	logger, closer, err := initLogger(opts.debug, opts.logFile)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	logger.Info().Str("version", Version).Msg("localagent starting")

	prompt, err := resolvePrompt(opts, args, cmd.InOrStdin(), stdinIsTerminal())
	if err != nil {
		return err
	}
	if prompt == "" && !opts.interactive && !opts.listModels {
		return cmd.Help()
	}

	a, err := newApp(ctx, opts, logger, cmd.OutOrStdout(), nil)
	if err != nil {
		logger.Error().Err(err).Msg("setup failed")
		return err
	}
	defer a.Close()

	if opts.listModels {
		models, err := a.session.ListModels(ctx)
		if err != nil {
			return err
		}
		a.printer.Models(models, a.session.Model())
		return nil
	}

	if opts.interactive {
		if prompt != "" {
			if err := a.runPrompt(ctx, prompt); err != nil {
				a.printer.Error("%v", err)
			}
		}
		return a.runInteractive(ctx)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return a.runPrompt(runCtx, prompt)
}

// newApp loads the configuration, applies flag overrides and wires the
// guard, dispatcher, audit store and session. A nil client means a real
// runtime connection, which is checked before returning.
func newApp(ctx context.Context, opts *options, logger zerolog.Logger, out io.Writer, client chat.ChatClient) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)

	printer := ui.NewPrinter(out, theme.NewColorScheme(cfg.Theme(), opts.noColor))
	printer.SetVerbose(opts.verbose)

	registry := tools.NewRegistry()
	for _, w := range cfg.Validate(registry) {
		logger.Warn().Str("field", w.Field).Msg(w.Message)
		printer.Warn("%s: %s", w.Field, w.Message)
	}

	guard, err := paths.NewGuard(cfg.WorkingRoot, cfg.DenyPatterns)
	if err != nil {
		return nil, fmt.Errorf("working root %q: %w", cfg.WorkingRoot, err)
	}

	a := &app{cfg: cfg, logger: logger, printer: printer}

	var recorder tools.Recorder
	if cfg.AuditDB != "" {
		store, err := audit.Open(ctx, cfg.AuditDB)
		if err != nil {
			return nil, fmt.Errorf("audit database %q: %w", cfg.AuditDB, err)
		}
		a.audit = store
		recorder = store
	}

	dispatcher := tools.NewDispatcher(guard, registry, tools.Options{
		Limits:       cfg.ToolLimitsConfig(),
		Timeouts:     cfg.ToolTimeoutsConfig(),
		Interpreters: cfg.Interpreters,
		Logger:       logger,
		Recorder:     recorder,
	})

	if client == nil {
		a.session, err = chat.NewSession(cfg, dispatcher, logger)
	} else {
		a.session, err = chat.NewSessionWithClient(cfg, client, dispatcher, logger)
	}
	if err != nil {
		a.Close()
		return nil, err
	}
	a.session.Observer = printer

	if err := a.session.CheckConnection(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("cannot reach the model runtime at %s (is Ollama running?): %w", cfg.APIURL, err)
	}
	if models, err := a.session.ListModels(ctx); err == nil && !chat.HasModel(models, cfg.Model) {
		printer.Warn("model %s is not installed; run: ollama pull %s", cfg.Model, cfg.Model)
	}

	logger.Info().
		Str("model", cfg.Model).
		Str("api_url", cfg.APIURL).
		Str("root", guard.Root()).
		Msg("session ready")
	return a, nil
}

func applyFlags(cfg *config.Config, opts *options) {
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.root != "" {
		cfg.WorkingRoot = opts.root
	}
	if opts.maxIterations > 0 {
		cfg.MaxIterations = opts.maxIterations
	}
	if opts.auditDB != "" {
		cfg.AuditDB = opts.auditDB
	}
}

// Close releases the audit store.
func (a *app) Close() {
	if a.audit == nil {
		return
	}
	if err := a.audit.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close audit database")
	}
}

// runPrompt answers one prompt. Hitting the iteration cap is reported as a
// warning, not a failure.
func (a *app) runPrompt(ctx context.Context, prompt string) error {
	a.printer.SetPrompt(prompt)
	a.logger.Info().Str("user_input", prompt).Msg("prompt received")

	answer, err := a.session.Run(ctx, prompt, a.cfg.MaxIterations)
	switch {
	case errors.Is(err, chat.ErrIterationLimit):
		a.printer.Warn("%s", answer)
		return nil
	case err != nil:
		return err
	}

	a.printer.Answer(answer)
	return nil
}

// resolvePrompt picks the prompt from --prompt, the positional arguments,
// or stdin when it is "-" or a pipe.
func resolvePrompt(opts *options, args []string, stdin io.Reader, stdinTerminal bool) (string, error) {
	if strings.TrimSpace(opts.prompt) != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("prompt given both with --prompt and as arguments")
		}
		return strings.TrimSpace(opts.prompt), nil
	}

	readStdin := len(args) == 1 && args[0] == "-"
	if len(args) == 0 && !stdinTerminal && !opts.interactive && !opts.listModels {
		readStdin = true
	}
	if !readStdin {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("error reading input: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
