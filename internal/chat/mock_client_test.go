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

	"github.com/sashabaranov/go-openai"
)

// MockChatClient is a mock implementation of ChatClient for testing.
type MockChatClient struct {
	// Functions to override behavior
	CreateCompletionFunc func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModelsFunc       func(ctx context.Context) (openai.ModelsList, error)

	// Call tracking
	CompletionCalls []openai.ChatCompletionRequest
	ListModelsCalls int
}

// CreateChatCompletion implements ChatClient.
func (m *MockChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.CompletionCalls = append(m.CompletionCalls, req)
	if m.CreateCompletionFunc != nil {
		return m.CreateCompletionFunc(ctx, req)
	}
	// Default mock response
	return textResponse("mock response"), nil
}

// ListModels implements ChatClient.
func (m *MockChatClient) ListModels(ctx context.Context) (openai.ModelsList, error) {
	m.ListModelsCalls++
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return openai.ModelsList{}, nil
}

func textResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: content,
				},
			},
		},
	}
}

func toolCallResponse(calls ...openai.ToolCall) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					ToolCalls: calls,
				},
			},
		},
	}
}

func toolCall(id, name, args string) openai.ToolCall {
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

// scriptedReplies returns the responses in order, repeating the last one.
func scriptedReplies(replies ...openai.ChatCompletionResponse) func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	idx := 0
	return func(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
		reply := replies[idx]
		if idx < len(replies)-1 {
			idx++
		}
		return reply, nil
	}
}
