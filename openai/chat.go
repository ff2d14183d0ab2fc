package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/devchat/prompt"
)

// Config holds the chat configuration for one backend model.
type Config struct {
	Model       string
	Stream      bool
	Temperature *float64
	MaxTokens   *int
}

// Chat produces prompts and executes completion calls against an
// OpenAI-compatible backend.
type Chat struct {
	config    Config
	client    *Client
	counter   prompt.TokenCounter
	userName  string
	userEmail string
}

var _ prompt.Chat = (*Chat)(nil)

// NewChat creates a chat for the given configuration and requester identity.
func NewChat(config Config, client *Client, userName, userEmail string) *Chat {
	return &Chat{
		config:    config,
		client:    client,
		counter:   NewCounter(),
		userName:  userName,
		userEmail: userEmail,
	}
}

// Config returns the chat configuration.
func (c *Chat) Config() Config {
	return c.config
}

// Counter returns the token counter used for prompts of this chat.
func (c *Chat) Counter() prompt.TokenCounter {
	return c.counter
}

// SetCounter overrides the token counter used for new prompts.
func (c *Chat) SetCounter(counter prompt.TokenCounter) {
	c.counter = counter
}

// Streaming reports whether responses are streamed.
func (c *Chat) Streaming() bool {
	return c.config.Stream
}

// InitPrompt returns a new empty prompt for the given request.
func (c *Chat) InitPrompt(request string) (prompt.Prompt, error) {
	if strings.TrimSpace(request) == "" {
		return nil, fmt.Errorf("cannot init prompt for an empty request")
	}
	return NewPrompt(c.config.Model, c.userName, c.userEmail, c.counter), nil
}

// StreamResponse streams the completion for the prompt, invoking fn once
// per delta payload.
func (c *Chat) StreamResponse(ctx context.Context, p prompt.Prompt, fn func(delta string) error) error {
	return c.client.CreateChatCompletionStream(ctx, c.completionRequest(p), fn)
}

// CompleteResponse performs one blocking completion call for the prompt.
func (c *Chat) CompleteResponse(ctx context.Context, p prompt.Prompt) (string, error) {
	return c.client.CreateChatCompletion(ctx, c.completionRequest(p))
}

func (c *Chat) completionRequest(p prompt.Prompt) *ChatCompletionRequest {
	messages := p.Messages()
	wire := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		wireMessage := ChatMessage{Role: m.Role, Content: m.Content, Name: m.Name}
		if m.FunctionCall != nil {
			wireMessage.FunctionCall = &FunctionCall{
				Name:      m.FunctionCall.Name,
				Arguments: m.FunctionCall.Arguments,
			}
		}
		wire = append(wire, wireMessage)
	}
	return &ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    wire,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
}
