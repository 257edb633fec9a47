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
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"localagent/internal/audit"
	"localagent/internal/chat"
	"localagent/internal/config"
	"localagent/internal/paths"
	"localagent/internal/theme"
	"localagent/internal/tools"
	"localagent/internal/ui"
)

type stubClient struct {
	models []string
	err    error
}

func (c *stubClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, errors.New("not used")
}

func (c *stubClient) ListModels(ctx context.Context) (openai.ModelsList, error) {
	if c.err != nil {
		return openai.ModelsList{}, c.err
	}
	list := openai.ModelsList{}
	for _, id := range c.models {
		list.Models = append(list.Models, openai.Model{ID: id})
	}
	return list, nil
}

func newTestRegistry(t *testing.T, client chat.ChatClient, store *audit.Store) (*Registry, *Env, *bytes.Buffer) {
	t.Helper()
	guard, err := paths.NewGuard(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	dispatcher := tools.NewDispatcher(guard, nil, tools.Options{Logger: zerolog.Nop()})
	session, err := chat.NewSessionWithClient(config.DefaultConfig(), client, dispatcher, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSessionWithClient: %v", err)
	}
	var buf bytes.Buffer
	env := &Env{Session: session, Printer: ui.NewPrinter(&buf, theme.DisabledColorScheme()), Audit: store}
	return NewRegistry(env), env, &buf
}

func TestExecuteIgnoresPrompts(t *testing.T) {
	r, _, buf := newTestRegistry(t, &stubClient{}, nil)
	handled, quit := r.Execute(context.Background(), "list the files")
	if handled || quit {
		t.Fatalf("plain prompt handled=%v quit=%v", handled, quit)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestQuitAndExit(t *testing.T) {
	r, _, _ := newTestRegistry(t, &stubClient{}, nil)
	for _, input := range []string{"/quit", "/exit", "  /QUIT  "} {
		handled, quit := r.Execute(context.Background(), input)
		if !handled || !quit {
			t.Errorf("%q: handled=%v quit=%v", input, handled, quit)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	r, _, buf := newTestRegistry(t, &stubClient{}, nil)
	handled, quit := r.Execute(context.Background(), "/frobnicate")
	if !handled || quit {
		t.Fatalf("handled=%v quit=%v", handled, quit)
	}
	if !strings.Contains(buf.String(), "unknown command: /frobnicate") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestClearHistory(t *testing.T) {
	r, env, _ := newTestRegistry(t, &stubClient{}, nil)
	env.Session.AddMessage(openai.ChatMessageRoleUser, "hello")
	r.Execute(context.Background(), "/clear")
	if n := len(env.Session.History()); n != 0 {
		t.Fatalf("expected empty history, got %d messages", n)
	}
}

func TestHistoryShowsMessages(t *testing.T) {
	r, env, buf := newTestRegistry(t, &stubClient{}, nil)
	env.Session.AddMessage(openai.ChatMessageRoleUser, "hello there")
	r.Execute(context.Background(), "/history")
	if !strings.Contains(buf.String(), "User: hello there") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestModelSwitch(t *testing.T) {
	r, env, buf := newTestRegistry(t, &stubClient{models: []string{"llama3.2:latest", "qwen2.5-coder:7b"}}, nil)

	r.Execute(context.Background(), "/model llama3.2")
	if env.Session.Model() != "llama3.2" {
		t.Fatalf("expected model switch, got %q", env.Session.Model())
	}

	buf.Reset()
	r.Execute(context.Background(), "/model mistral")
	if env.Session.Model() != "llama3.2" {
		t.Fatalf("model should not change, got %q", env.Session.Model())
	}
	if !strings.Contains(buf.String(), "not installed") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestModelSwitchRuntimeDown(t *testing.T) {
	r, env, buf := newTestRegistry(t, &stubClient{err: errors.New("connection refused")}, nil)
	r.Execute(context.Background(), "/model llama3.2")
	if env.Session.Model() != config.DefaultModel {
		t.Fatalf("model should not change, got %q", env.Session.Model())
	}
	if !strings.Contains(buf.String(), "connection refused") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestListModels(t *testing.T) {
	r, _, buf := newTestRegistry(t, &stubClient{models: []string{"qwen2.5-coder:7b", "llama3.2"}}, nil)
	r.Execute(context.Background(), "/listmodels")
	if !strings.Contains(buf.String(), "* qwen2.5-coder:7b") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestVerboseToggle(t *testing.T) {
	r, env, _ := newTestRegistry(t, &stubClient{}, nil)
	r.Execute(context.Background(), "/verbose")
	if !env.Printer.Verbose() {
		t.Fatal("expected verbose on")
	}
	r.Execute(context.Background(), "/verbose")
	if env.Printer.Verbose() {
		t.Fatal("expected verbose off")
	}
}

func TestStatusWithAudit(t *testing.T) {
	ctx := context.Background()
	store, err := audit.Open(ctx, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer store.Close()
	if _, err := store.Record(ctx, audit.Entry{ToolName: "read-file", Path: "a.txt", OK: true}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	r, _, buf := newTestRegistry(t, &stubClient{}, store)
	r.Execute(ctx, "/status")
	out := buf.String()
	for _, want := range []string{"Model: " + config.DefaultModel, "Tool calls: 1 total, 0 failed", "read-file"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPwdShowsRoot(t *testing.T) {
	r, env, buf := newTestRegistry(t, &stubClient{}, nil)
	r.Execute(context.Background(), "/pwd")
	if !strings.Contains(buf.String(), "Working root: "+env.Session.Dispatcher.Root()) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestLsAndCat(t *testing.T) {
	ctx := context.Background()
	r, env, buf := newTestRegistry(t, &stubClient{}, nil)
	root := env.Session.Dispatcher.Root()
	if err := os.Mkdir(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r.Execute(ctx, "/ls")
	if out := buf.String(); !strings.Contains(out, "src") || !strings.Contains(out, "directory") {
		t.Fatalf("/ls output %q", out)
	}

	buf.Reset()
	r.Execute(ctx, "/ls src")
	if !strings.Contains(buf.String(), "main.py") {
		t.Fatalf("/ls src output %q", buf.String())
	}

	buf.Reset()
	r.Execute(ctx, "/cat src/main.py")
	out := buf.String()
	if !strings.Contains(out, "Content (python):") || !strings.Contains(out, "  1 | print('hi')") {
		t.Fatalf("/cat output %q", out)
	}
}

func TestLsAndCatStayInsideRoot(t *testing.T) {
	ctx := context.Background()
	r, _, buf := newTestRegistry(t, &stubClient{}, nil)

	for _, input := range []string{"/ls ..", "/cat ../secret.txt", "/cat /etc/passwd"} {
		buf.Reset()
		r.Execute(ctx, input)
		if !strings.HasPrefix(buf.String(), "Error: ") {
			t.Fatalf("%s: expected refusal, got %q", input, buf.String())
		}
	}

	buf.Reset()
	r.Execute(ctx, "/cat")
	if !strings.Contains(buf.String(), "usage: /cat <file>") {
		t.Fatalf("expected usage, got %q", buf.String())
	}
}

func TestHelpListsCommands(t *testing.T) {
	r, _, buf := newTestRegistry(t, &stubClient{}, nil)
	r.Execute(context.Background(), "/help")
	for _, name := range r.Names() {
		if !strings.Contains(buf.String(), name) {
			t.Fatalf("help missing %s:\n%s", name, buf.String())
		}
	}
	if r.Names()[0] != "/cat" {
		t.Fatalf("names not sorted: %v", r.Names())
	}
}
