package openai

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/xiaot623/devchat/domain"
	"github.com/xiaot623/devchat/prompt"
)

const (
	contextOpen  = "<context>\n"
	contextClose = "\n</context>"
)

// Prompt is the prompt representation for the chat-completions wire format.
type Prompt struct {
	prompt.Base
}

var _ prompt.Prompt = (*Prompt)(nil)

// NewPrompt creates an empty prompt for the given model and user identity.
func NewPrompt(model, userName, userEmail string, counter prompt.TokenCounter) *Prompt {
	return &Prompt{Base: prompt.NewBase(model, userName, userEmail, counter)}
}

// Messages lays the prompt out in the order the backend expects:
// instructions, history context, history chat, the request, new context.
func (p *Prompt) Messages() []domain.Message {
	combined := make([]domain.Message, 0,
		len(p.NewInstruct)+len(p.HistoryContext)+len(p.HistoryChat)+1+len(p.NewContext))

	combined = append(combined, p.NewInstruct...)
	for _, m := range p.HistoryContext {
		combined = append(combined, wrapContext(m))
	}
	combined = append(combined, p.HistoryChat...)
	if p.NewRequest != nil {
		combined = append(combined, *p.NewRequest)
	}
	for _, m := range p.NewContext {
		combined = append(combined, wrapContext(m))
	}
	return combined
}

// InputMessages splits a recorded message list back into new and history
// state. Leading system messages are instructions, context-wrapped system
// messages are history context, everything else is chat history; a trailing
// user message becomes the request.
func (p *Prompt) InputMessages(messages []domain.Message) {
	p.NewInstruct = nil
	p.NewRequest = nil
	p.NewContext = nil
	p.HistoryContext = nil
	p.HistoryChat = nil

	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			if strings.HasPrefix(m.Content, contextOpen) {
				p.HistoryContext = append(p.HistoryContext, unwrapContext(m))
			} else {
				p.NewInstruct = append(p.NewInstruct, m)
			}
			continue
		}
		p.HistoryChat = append(p.HistoryChat, m)
	}

	if n := len(p.HistoryChat); n > 0 && p.HistoryChat[n-1].Role == domain.RoleUser {
		last := p.HistoryChat[n-1]
		p.NewRequest = &last
		p.HistoryChat = p.HistoryChat[:n-1]
	}
}

// AppendNew adds a new instruction or context message when it fits the
// available token budget.
func (p *Prompt) AppendNew(kind domain.MessageKind, content string, available domain.TokenBudget) bool {
	message := domain.Message{Role: domain.RoleSystem, Content: content}

	switch kind {
	case domain.KindInstruct, domain.KindContext:
	default:
		log.Printf("ERROR: cannot append new message of kind %q", kind)
		return false
	}

	numTokens := p.Counter.MessageTokens(p.ModelName, message)
	if !available.Allows(numTokens) {
		return false
	}

	if kind == domain.KindInstruct {
		p.NewInstruct = append(p.NewInstruct, message)
	} else {
		p.NewContext = append(p.NewContext, message)
	}
	p.ReqTokens += numTokens
	return true
}

// PrependHistory inserts prev's round at the front of this prompt's
// history: its request and first response become the oldest chat history,
// its context messages the oldest context history. The prompt is left
// unchanged when the addition would exceed the token ceiling.
func (p *Prompt) PrependHistory(prev prompt.Prompt, limit domain.TokenBudget) bool {
	request := prev.Request()
	responses := prev.Responses()
	if request == nil || len(responses) == 0 {
		log.Printf("WARN: cannot prepend incomplete prompt %s to history", prev.Hash())
		return false
	}

	chat := []domain.Message{*request, responses[0]}
	contexts := prev.Context()

	numTokens := 0
	for _, m := range chat {
		numTokens += p.Counter.MessageTokens(p.ModelName, m)
	}
	for _, m := range contexts {
		numTokens += p.Counter.MessageTokens(p.ModelName, m)
	}
	if !limit.Fits(numTokens, p.ReqTokens) {
		return false
	}

	p.HistoryChat = append(chat, p.HistoryChat...)
	p.HistoryContext = append(append([]domain.Message{}, contexts...), p.HistoryContext...)
	p.ReqTokens += numTokens
	return true
}

// SetRequest sets the request message, overwriting any prior value.
func (p *Prompt) SetRequest(content string) {
	message := domain.Message{Role: domain.RoleUser, Content: content}
	if p.NewRequest != nil {
		p.ReqTokens -= p.Counter.MessageTokens(p.ModelName, *p.NewRequest)
	}
	p.NewRequest = &message
	p.ReqTokens += p.Counter.MessageTokens(p.ModelName, message)
}

// SetResponse parses one complete completion payload and populates the
// responses. Token usage and the creation time are taken from the payload
// when present.
func (p *Prompt) SetResponse(responseStr string) error {
	var response ChatCompletionResponse
	if err := json.Unmarshal([]byte(responseStr), &response); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if err := p.validateModel(response.Model); err != nil {
		return err
	}

	if response.Created > 0 {
		p.CreatedAt = response.Created
	}
	if response.Usage != nil {
		p.ReqTokens = response.Usage.PromptTokens
		p.RespTokens = response.Usage.CompletionTokens
	}

	for _, choice := range response.Choices {
		if choice.Message == nil {
			return fmt.Errorf("choice %d has no message", choice.Index)
		}
		if err := p.growResponses(choice.Index); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		message := &p.NewResponses[choice.Index]
		message.Role = choice.Message.Role
		message.Content = choice.Message.Content
		message.FinishReason = choice.FinishReason
		if choice.Message.FunctionCall != nil {
			message.FunctionCall = &domain.FunctionCall{
				Name:      choice.Message.FunctionCall.Name,
				Arguments: choice.Message.FunctionCall.Arguments,
			}
		}
	}
	return nil
}

// AppendResponse parses one streaming chunk, extends the in-progress
// responses, and returns the index-0 delta text revealed by the chunk.
func (p *Prompt) AppendResponse(deltaStr string) (string, error) {
	var chunk StreamChunk
	if err := json.Unmarshal([]byte(deltaStr), &chunk); err != nil {
		return "", fmt.Errorf("failed to parse delta: %w", err)
	}
	if err := p.validateModel(chunk.Model); err != nil {
		return "", err
	}

	if chunk.Created > 0 {
		p.CreatedAt = chunk.Created
	}

	fragment := ""
	for _, choice := range chunk.Choices {
		if err := p.growResponses(choice.Index); err != nil {
			return "", fmt.Errorf("failed to parse delta: %w", err)
		}
		message := &p.NewResponses[choice.Index]

		if choice.Delta != nil {
			if choice.Delta.Role != "" {
				message.Role = choice.Delta.Role
			}
			if choice.Delta.Content != "" {
				message.Content += choice.Delta.Content
				if choice.Index == 0 {
					fragment += choice.Delta.Content
				}
			}
			if choice.Delta.FunctionCall != nil {
				if message.FunctionCall == nil {
					message.FunctionCall = &domain.FunctionCall{}
				}
				message.FunctionCall.Name += choice.Delta.FunctionCall.Name
				message.FunctionCall.Arguments += choice.Delta.FunctionCall.Arguments
			}
		}
		if choice.FinishReason != "" {
			message.FinishReason = choice.FinishReason
		}
	}
	return fragment, nil
}

// Restore reinstates a persisted prompt record.
func (p *Prompt) Restore(rec prompt.Record) {
	p.InputMessages(rec.Messages)
	p.RestoreMetadata(rec)
}

// maxResponses bounds the choice indices a payload may address, so a broken
// backend cannot make the responses slice grow without limit.
const maxResponses = 32

// growResponses extends the responses so that index is valid. Indices are
// stable once assigned; responses only ever grow within a round.
func (p *Prompt) growResponses(index int) error {
	if index < 0 || index >= maxResponses {
		return fmt.Errorf("choice index %d out of range", index)
	}
	for len(p.NewResponses) <= index {
		p.NewResponses = append(p.NewResponses, domain.Message{Role: domain.RoleAssistant})
	}
	return nil
}

// validateModel rejects payloads from a different model family. Backends
// report versioned names, so a prefix match is the contract.
func (p *Prompt) validateModel(model string) error {
	if model != "" && !strings.HasPrefix(model, p.ModelName) {
		return fmt.Errorf("unexpected model %q in response to a %q prompt", model, p.ModelName)
	}
	return nil
}

func wrapContext(m domain.Message) domain.Message {
	m.Content = contextOpen + m.Content + contextClose
	return m
}

func unwrapContext(m domain.Message) domain.Message {
	m.Content = strings.TrimSuffix(strings.TrimPrefix(m.Content, contextOpen), contextClose)
	return m
}
