// Package domain defines the core domain models for the prompt assembly core.
package domain

import (
	"encoding/json"
)

// MessageKind classifies a message within a prompt.
type MessageKind string

const (
	KindInstruct MessageKind = "instruct"
	KindContext  MessageKind = "context"
	KindChat     MessageKind = "chat"
)

// Chat roles in the backend wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Finish reasons reported by the backend.
const (
	FinishStop         = "stop"
	FinishFunctionCall = "function_call"
)

// FunctionCall is the structured payload of a response that asks the caller
// to invoke a function.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Message is a single message owned by a prompt. It doubles as the wire
// record sent to the backend; FinishReason is only ever set on responses.
type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// FunctionCallToJSON renders the function-call payload as a fenced command
// block. It returns the empty string when the message has no function call,
// so callers can concatenate unconditionally.
func (m Message) FunctionCallToJSON() string {
	if m.FunctionCall == nil {
		return ""
	}
	rendered := map[string]interface{}{}
	if m.FunctionCall.Name != "" {
		rendered["name"] = m.FunctionCall.Name
	}
	if m.FunctionCall.Arguments != "" {
		var args interface{}
		if err := json.Unmarshal([]byte(m.FunctionCall.Arguments), &args); err == nil {
			rendered["arguments"] = args
		} else {
			rendered["arguments"] = m.FunctionCall.Arguments
		}
	}
	data, err := json.Marshal(rendered)
	if err != nil {
		return ""
	}
	return "```command\n" + string(data) + "\n```"
}
