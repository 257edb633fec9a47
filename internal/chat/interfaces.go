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

	"localagent/internal/tools"
)

// ChatClient abstracts the model runtime for testing.
//
// Usage:
//   - Production: use NewSession() which creates a real openai.Client
//     pointed at the runtime's OpenAI-compatible endpoint
//   - Testing: use NewSessionWithClient() with a mock implementation
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Observer is notified around every dispatched function call.
type Observer interface {
	OnToolCall(req tools.FunctionCallRequest)
	OnToolResult(req tools.FunctionCallRequest, result *tools.Result)
}

// Verify that openai.Client implements ChatClient at compile time.
var _ ChatClient = (*openai.Client)(nil)
