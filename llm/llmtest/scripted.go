// Package llmtest provides a scripted ChatCompleter for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// ErrExhausted is returned when no scripted reply is left.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Scripted replays queued assistant messages in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	replies  []reply
	requests []openai.ChatCompletionRequest
}

type reply struct {
	msg openai.ChatCompletionMessage
	err error
}

// Text queues an assistant reply with plain content.
func (s *Scripted) Text(content string) *Scripted {
	return s.push(reply{msg: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content}})
}

// ToolCall queues an assistant reply calling a single tool.
func (s *Scripted) ToolCall(id, name, arguments string) *Scripted {
	return s.push(reply{msg: openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       id,
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: name, Arguments: arguments},
		}},
	}})
}

// Error queues a failed request.
func (s *Scripted) Error(err error) *Scripted {
	return s.push(reply{err: err})
}

func (s *Scripted) push(r reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []openai.ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openai.ChatCompletionRequest(nil), s.requests...)
}

// Remaining returns the number of queued replies not yet consumed.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}

func (s *Scripted) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return openai.ChatCompletionResponse{}, ErrExhausted
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	if r.err != nil {
		return openai.ChatCompletionResponse{}, r.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: r.msg}},
	}, nil
}
