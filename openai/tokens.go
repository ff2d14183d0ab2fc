package openai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/xiaot623/devchat/domain"
)

// Token overhead per message and per name, per the chat-completions
// counting recipe.
const (
	tokensPerMessage = 3
	tokensPerName    = 1
)

// Counter counts message tokens with the tiktoken encoding of the model.
// Encodings are cached per model. Unknown models fall back to a
// bytes-per-token approximation.
type Counter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewCounter creates a token counter.
func NewCounter() *Counter {
	return &Counter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// MessageTokens returns the token cost of one message for the given model.
func (c *Counter) MessageTokens(model string, m domain.Message) int {
	enc := c.encoding(model)
	if enc == nil {
		return approximateTokens(m)
	}

	tokens := tokensPerMessage
	tokens += len(enc.Encode(m.Role, nil, nil))
	tokens += len(enc.Encode(m.Content, nil, nil))
	if m.Name != "" {
		tokens += tokensPerName
		tokens += len(enc.Encode(m.Name, nil, nil))
	}
	if m.FunctionCall != nil {
		tokens += len(enc.Encode(m.FunctionCall.Name, nil, nil))
		tokens += len(enc.Encode(m.FunctionCall.Arguments, nil, nil))
	}
	return tokens
}

func (c *Counter) encoding(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodings[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			enc = nil
		}
	}
	c.encodings[model] = enc
	return enc
}

// approximateTokens estimates the cost at four bytes per token.
func approximateTokens(m domain.Message) int {
	chars := len(m.Role) + len(m.Content) + len(m.Name)
	if m.FunctionCall != nil {
		chars += len(m.FunctionCall.Name) + len(m.FunctionCall.Arguments)
	}
	return tokensPerMessage + chars/4
}
