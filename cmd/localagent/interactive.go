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

	"github.com/chzyer/readline"

	"localagent/internal/commands"
)

func (a *app) runInteractive(ctx context.Context) error {
	registry := commands.NewRegistry(&commands.Env{
		Session: a.session,
		Printer: a.printer,
		Audit:   a.audit,
	})

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              "❯ ",
		HistoryFile:         a.cfg.CommandHistoryFile,
		AutoComplete:        commandCompleter(registry),
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		FuncFilterInputRune: filterInterruptRune,
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	a.printer.Banner(a.session.Model(), a.session.Dispatcher.Root())
	a.printer.Info("Type /help for commands, /quit to exit")

	canceler := &promptCanceler{}
	stop := canceler.Watch()
	defer stop()

	for {
		line, err := rl.Readline()
		switch classifyReadlineError(line, err) {
		case readlineContinue:
			continue
		case readlineExit:
			a.logger.Debug().Msg("input closed")
			return nil
		}
		if err != nil {
			return err
		}

		line = sanitizeInputLine(line)
		if line == "" {
			continue
		}

		if handled, quit := registry.Execute(ctx, line); handled {
			if quit {
				a.logger.Info().Msg("session ended")
				return nil
			}
			continue
		}

		runCtx, end := canceler.Begin(ctx)
		err = a.runPrompt(runCtx, line)
		end()

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled) && ctx.Err() == nil:
			a.printer.Warn("interrupted")
		default:
			a.printer.Error("%v", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// commandCompleter builds a readline completer from the slash commands.
func commandCompleter(registry *commands.Registry) *readline.PrefixCompleter {
	names := registry.Names()
	items := make([]readline.PrefixCompleterInterface, len(names))
	for i, name := range names {
		items[i] = readline.PcItem(name)
	}
	return readline.NewPrefixCompleter(items...)
}
