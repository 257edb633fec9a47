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
	"os"
	"os/signal"
	"sync"

	"github.com/chzyer/readline"
)

// promptCanceler lets Ctrl+C cancel the prompt being answered without
// ending the interactive session.
type promptCanceler struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Begin derives the context of one prompt run. The returned end func must be
// called when the run finishes.
func (c *promptCanceler) Begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	return ctx, func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}
}

// Interrupt cancels the running prompt and reports whether one was running.
func (c *promptCanceler) Interrupt() bool {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Watch forwards SIGINT to Interrupt until stop is called. While readline
// owns the terminal Ctrl+C arrives as ErrInterrupt instead.
func (c *promptCanceler) Watch() (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				c.Interrupt()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// filterInterruptRune drops Ctrl+G, which readline would otherwise echo as a bell.
func filterInterruptRune(r rune) (rune, bool) {
	if r == readline.CharBell {
		return 0, false
	}
	return r, true
}
