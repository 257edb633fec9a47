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

package chat

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"localagent/internal/config"
	"localagent/internal/tools"
	systemprompt "localagent/system_prompt"
)

// Session drives one conversation between the user, the model and the
// tool dispatcher. Run is sequential; the mutex only guards history reads
// from the interactive front end.
type Session struct {
	Client     ChatClient
	Config     *config.Config
	Messages   []openai.ChatCompletionMessage
	Dispatcher *tools.Dispatcher
	Registry   *tools.Registry
	Logger     zerolog.Logger
	Observer   Observer

	model string
	turns int
	mu    sync.Mutex
}

// NewSession creates a session with an OpenAI client pointed at cfg.APIURL.
func NewSession(cfg *config.Config, dispatcher *tools.Dispatcher, logger zerolog.Logger) (*Session, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		clientConfig.BaseURL = cfg.APIURL
		clientConfig.HTTPClient = &http.Client{}
	}

	client := openai.NewClientWithConfig(clientConfig)
	return NewSessionWithClient(cfg, client, dispatcher, logger)
}

// NewSessionWithClient creates a session with a provided client (for testing).
func NewSessionWithClient(cfg *config.Config, client ChatClient, dispatcher *tools.Dispatcher, logger zerolog.Logger) (*Session, error) {
	base, err := systemprompt.Load()
	if err != nil {
		return nil, err
	}

	registry := dispatcher.Registry()
	sess := &Session{
		Client:     client,
		Config:     cfg,
		Dispatcher: dispatcher,
		Registry:   registry,
		Logger:     logger,
		model:      cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemprompt.WithTools(base, toolSignatures(registry)),
			},
		},
	}
	return sess, nil
}

func toolSignatures(registry *tools.Registry) []string {
	specs := registry.Specs()
	sigs := make([]string, 0, len(specs))
	for _, spec := range specs {
		sigs = append(sigs, fmt.Sprintf("%s(%s): %s", spec.Name, tools.DescribeParams(spec), spec.Description))
	}
	return sigs
}

// Model returns the model used for completions.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel switches the model for subsequent turns.
func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Turns returns the number of model requests made by the last Run.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// AddMessage adds a message to the conversation history
func (s *Session) AddMessage(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, openai.ChatCompletionMessage{
		Role:    role,
		Content: content,
	})
}

// AddAssistantMessage adds an assistant message with optional tool calls.
func (s *Session) AddAssistantMessage(content string, toolCalls []openai.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, openai.ChatCompletionMessage{
		Role:      openai.ChatMessageRoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AddToolResultMessage appends the result of a native tool call.
func (s *Session) AddToolResultMessage(call openai.ToolCall, result *tools.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := call.Function.Name
	if name == "" {
		name = "unknown_tool"
	}
	s.Messages = append(s.Messages, openai.ChatCompletionMessage{
		Role:       openai.ChatMessageRoleTool,
		Content:    result.Text(),
		Name:       name,
		ToolCallID: call.ID,
	})
}

// MessagesSnapshot returns a copy of the current messages.
func (s *Session) MessagesSnapshot() []openai.ChatCompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]openai.ChatCompletionMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

func (s *Session) request() openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    s.Model(),
		Messages: s.MessagesSnapshot(),
	}
	if !s.Config.InlineToolsOnly {
		req.Tools = s.Registry.OpenAITools()
	}
	if s.Config.Temperature != nil {
		req.Temperature = *s.Config.Temperature
	}
	if s.Config.MaxTokens != nil {
		req.MaxTokens = *s.Config.MaxTokens
	}
	return req
}

// Run sends prompt and relays function calls to the dispatcher until the
// model answers in plain text or maxIterations model turns have elapsed.
// On the cap it returns a notice naming it together with ErrIterationLimit.
func (s *Session) Run(ctx context.Context, prompt string, maxIterations int) (string, error) {
	if maxIterations <= 0 {
		maxIterations = s.Config.MaxIterations
	}
	if maxIterations <= 0 {
		maxIterations = config.DefaultMaxIterations
	}

	s.mu.Lock()
	s.turns = 0
	s.mu.Unlock()

	s.AddMessage(openai.ChatMessageRoleUser, prompt)

	for turn := 1; turn <= maxIterations; turn++ {
		s.mu.Lock()
		s.turns = turn
		s.mu.Unlock()

		s.Logger.Debug().Int("turn", turn).Str("model", s.Model()).Msg("Requesting completion")
		resp, err := s.Client.CreateChatCompletion(ctx, s.request())
		if err != nil {
			return "", &APIError{Operation: "create_completion", Err: err}
		}
		if len(resp.Choices) == 0 {
			return "", &APIError{Operation: "create_completion", Err: errEmptyResponse}
		}

		reply := resp.Choices[0].Message
		if len(reply.ToolCalls) > 0 {
			s.AddAssistantMessage(reply.Content, reply.ToolCalls)
			for _, call := range reply.ToolCalls {
				result := s.dispatchNative(ctx, call)
				s.AddToolResultMessage(call, result)
			}
			continue
		}

		s.AddAssistantMessage(reply.Content, nil)
		calls := ParseInlineFunctionCalls(reply.Content)
		if len(calls) == 0 {
			s.Logger.Debug().Int("turns", turn).Msg("Model returned final answer")
			return reply.Content, nil
		}
		for _, call := range calls {
			result := s.dispatchInline(ctx, call)
			s.AddMessage(openai.ChatMessageRoleUser, "Function result: "+result.Text())
		}
	}

	s.Logger.Warn().Int("max_iterations", maxIterations).Msg("Iteration limit reached")
	notice := fmt.Sprintf("Stopped after reaching the maximum of %d iterations without a final answer from the model.", maxIterations)
	return notice, ErrIterationLimit
}

func (s *Session) dispatchNative(ctx context.Context, call openai.ToolCall) *tools.Result {
	req := tools.FunctionCallRequest{ID: call.ID, ToolName: call.Function.Name}
	req.Arguments, _ = tools.ParseArguments(call.Function.Arguments)
	if s.Observer != nil {
		s.Observer.OnToolCall(req)
	}
	result := s.Dispatcher.DispatchToolCall(ctx, call)
	if s.Observer != nil {
		s.Observer.OnToolResult(req, result)
	}
	return result
}

func (s *Session) dispatchInline(ctx context.Context, call InlineCall) *tools.Result {
	req := call.FunctionCallRequest
	if s.Observer != nil {
		s.Observer.OnToolCall(req)
	}
	var result *tools.Result
	if call.Err != nil {
		result = s.Dispatcher.Reject(ctx, req, call.Err)
	} else {
		result = s.Dispatcher.Dispatch(ctx, req)
	}
	if s.Observer != nil {
		s.Observer.OnToolResult(req, result)
	}
	return result
}

// CheckConnection verifies the runtime answers before any prompt is sent.
func (s *Session) CheckConnection(ctx context.Context) error {
	if _, err := s.Client.ListModels(ctx); err != nil {
		return &APIError{Operation: "connect", Err: err}
	}
	return nil
}

// ListModels returns the sorted IDs of the models the runtime serves.
func (s *Session) ListModels(ctx context.Context) ([]string, error) {
	list, err := s.Client.ListModels(ctx)
	if err != nil {
		return nil, &APIError{Operation: "list_models", Err: err}
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// HasModel reports whether name is served by the runtime. A name without a
// tag matches any tag of that model.
func HasModel(available []string, name string) bool {
	for _, id := range available {
		if id == name {
			return true
		}
		if !strings.Contains(name, ":") && strings.HasPrefix(id, name+":") {
			return true
		}
	}
	return false
}

// ClearHistory clears the conversation history
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	systemMsg := s.Messages[0]
	s.Messages = []openai.ChatCompletionMessage{systemMsg}
}

// History returns the conversation history excluding the system message.
func (s *Session) History() []openai.ChatCompletionMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Messages) <= 1 {
		return []openai.ChatCompletionMessage{}
	}
	history := make([]openai.ChatCompletionMessage, len(s.Messages)-1)
	copy(history, s.Messages[1:])
	return history
}
