// Package prompt defines the prompt entity: one round's request/response
// unit plus carried conversation history and a derived content hash.
package prompt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xiaot623/devchat/domain"
)

// TokenCounter estimates the token cost of a message for a given model.
// Each backend adapter supplies its own counter.
type TokenCounter interface {
	MessageTokens(model string, m domain.Message) int
}

// Prompt is the contract every backend-specific prompt representation must
// satisfy. A prompt is built up by the assistant, sent to the backend,
// accumulates responses, and is finalized into a content-addressed record.
type Prompt interface {
	// Messages lays out history and new messages in the order the backend
	// expects. The returned slice is a read-only view.
	Messages() []domain.Message

	// InputMessages splits a recorded message list back into new-round and
	// history state. The list should have been produced by Messages.
	InputMessages(messages []domain.Message)

	// AppendNew adds a new-round message of the given kind. It returns false
	// and leaves the prompt unchanged when the message does not fit the
	// available token budget.
	AppendNew(kind domain.MessageKind, content string, available domain.TokenBudget) bool

	// PrependHistory inserts another prompt's round at the front of this
	// prompt's history, subject to a cumulative token ceiling. It returns
	// false when inclusion would exceed the ceiling.
	PrependHistory(prev Prompt, limit domain.TokenBudget) bool

	// SetRequest sets the request message for this round, overwriting any
	// prior value.
	SetRequest(content string)

	// SetParent records the hash of the directly preceding prompt.
	SetParent(hash string)

	// SetReferences records the hashes of prompts pulled in as context.
	// Order matters for reproducible hashing.
	SetReferences(hashes []string)

	// SetResponse parses one complete backend response payload and populates
	// the responses.
	SetResponse(responseStr string) error

	// AppendResponse parses one streaming delta payload, extends the
	// in-progress responses, and returns the newly revealed index-0 text.
	AppendResponse(deltaStr string) (string, error)

	// FinalizeHash computes the prompt's content hash. It returns the empty
	// string while the prompt is incomplete and is idempotent once complete.
	FinalizeHash() string

	// Restore reinstates a persisted prompt record, including its hash.
	Restore(rec Record)

	FormattedHeader() string
	FormattedResponse(index int) string
	Shortlog() (*Shortlog, error)

	Hash() string
	Model() string
	User() string
	Identity() (userName, userEmail string)
	Timestamp() int64
	Parent() string
	References() []string
	Request() *domain.Message
	Context() []domain.Message
	Responses() []domain.Message
	RequestTokens() int
	ResponseTokens() int
}

// Chat produces prompts and executes completion calls against a backend.
type Chat interface {
	// InitPrompt returns a new empty prompt for the given request.
	InitPrompt(request string) (Prompt, error)
	// StreamResponse streams the completion, invoking fn once per delta
	// payload.
	StreamResponse(ctx context.Context, p Prompt, fn func(delta string) error) error
	// CompleteResponse performs one blocking completion call and returns the
	// full response payload.
	CompleteResponse(ctx context.Context, p Prompt) (string, error)
	// Streaming reports whether the chat is configured for streaming mode.
	Streaming() bool
}

// Record is the persisted form of a finalized prompt.
type Record struct {
	Hash           string           `json:"hash"`
	Model          string           `json:"model"`
	UserName       string           `json:"user_name"`
	UserEmail      string           `json:"user_email"`
	Parent         string           `json:"parent,omitempty"`
	References     []string         `json:"references,omitempty"`
	Timestamp      int64            `json:"timestamp"`
	RequestTokens  int              `json:"request_tokens"`
	ResponseTokens int              `json:"response_tokens"`
	Messages       []domain.Message `json:"messages"`
	Responses      []domain.Message `json:"responses"`
}

// Shortlog is a compact summary of one completed prompt for history display.
type Shortlog struct {
	User           string           `json:"user"`
	Date           int64            `json:"date"`
	Context        []domain.Message `json:"context"`
	Request        string           `json:"request"`
	Responses      string           `json:"responses"`
	RequestTokens  int              `json:"request_tokens"`
	ResponseTokens int              `json:"response_tokens"`
	Hash           string           `json:"hash"`
	Parent         string           `json:"parent,omitempty"`
}

// Base carries the state and lifecycle shared by all prompt implementations.
// Concrete adapters embed it and provide the wire-format behavior.
type Base struct {
	ModelName string
	UserName  string
	UserEmail string

	// New messages for the current round.
	NewInstruct  []domain.Message
	NewRequest   *domain.Message
	NewContext   []domain.Message
	NewResponses []domain.Message

	// History carried from prior rounds.
	HistoryContext []domain.Message
	HistoryChat    []domain.Message

	ParentHash string
	Refs       []string

	CreatedAt  int64
	ReqTokens  int
	RespTokens int

	Counter TokenCounter

	hash string
}

// NewBase returns a base prompt for the given model and user identity.
func NewBase(model, userName, userEmail string, counter TokenCounter) Base {
	return Base{
		ModelName: model,
		UserName:  userName,
		UserEmail: userEmail,
		CreatedAt: time.Now().Unix(),
		Counter:   counter,
	}
}

func (b *Base) Model() string               { return b.ModelName }
func (b *Base) Timestamp() int64            { return b.CreatedAt }
func (b *Base) Parent() string              { return b.ParentHash }
func (b *Base) References() []string        { return b.Refs }
func (b *Base) Request() *domain.Message    { return b.NewRequest }
func (b *Base) Context() []domain.Message   { return b.NewContext }
func (b *Base) Responses() []domain.Message { return b.NewResponses }
func (b *Base) RequestTokens() int          { return b.ReqTokens }
func (b *Base) ResponseTokens() int         { return b.RespTokens }
func (b *Base) Hash() string                { return b.hash }

// User returns the requester identity as "name <email>".
func (b *Base) User() string {
	return fmt.Sprintf("%s <%s>", b.UserName, b.UserEmail)
}

// Identity returns the requester name and email separately.
func (b *Base) Identity() (string, string) {
	return b.UserName, b.UserEmail
}

// RestoreMetadata reinstates persisted identity metadata and responses when
// loading a prompt from a store. Concrete adapters call it from Restore
// after re-splitting the message list.
func (b *Base) RestoreMetadata(rec Record) {
	b.ParentHash = rec.Parent
	b.Refs = rec.References
	b.CreatedAt = rec.Timestamp
	b.ReqTokens = rec.RequestTokens
	b.RespTokens = rec.ResponseTokens
	b.NewResponses = rec.Responses
	b.RestoreHash(rec.Hash)
}

// SetParent records the hash of the directly preceding prompt.
func (b *Base) SetParent(hash string) { b.ParentHash = hash }

// SetReferences records the hashes of prompts pulled in as context.
func (b *Base) SetReferences(hashes []string) { b.Refs = hashes }

// RestoreHash adopts a previously finalized hash when reconstructing a
// prompt from the store. It never overwrites an existing hash.
func (b *Base) RestoreHash(hash string) {
	if b.hash == "" {
		b.hash = hash
	}
}

// checkComplete reports whether the prompt has everything hashing requires.
func (b *Base) checkComplete() bool {
	if b.NewRequest == nil || len(b.NewResponses) == 0 {
		log.Printf("WARN: incomplete prompt: request = %v, responses = %d",
			b.NewRequest, len(b.NewResponses))
		return false
	}
	if b.ReqTokens == 0 || b.RespTokens == 0 {
		log.Printf("WARN: incomplete prompt: request_tokens = %d, response_tokens = %d",
			b.ReqTokens, b.RespTokens)
		return false
	}
	return true
}

// countResponseTokens computes and caches the token cost of the responses.
func (b *Base) countResponseTokens() int {
	if b.RespTokens != 0 {
		return b.RespTokens
	}
	total := 0
	for _, m := range b.NewResponses {
		total += b.Counter.MessageTokens(b.ModelName, m)
	}
	b.RespTokens = total
	return total
}

// FinalizeHash computes the prompt hash over all identity-relevant fields.
// Incomplete prompts never acquire a hash; complete prompts hash exactly
// once and return the cached value thereafter.
func (b *Base) FinalizeHash() string {
	if b.hash != "" {
		return b.hash
	}

	b.countResponseTokens()

	if !b.checkComplete() {
		b.hash = ""
		return ""
	}

	sum := sha256.Sum256([]byte(b.canonicalString()))
	b.hash = hex.EncodeToString(sum[:])
	return b.hash
}

// canonicalString serializes the identity-relevant fields, sorted by field
// name, so the hash is stable across implementations and declaration order.
// The hash field itself is excluded.
func (b *Base) canonicalString() string {
	fields := map[string]string{
		"model":            b.ModelName,
		"user_name":        b.UserName,
		"user_email":       b.UserEmail,
		"new_messages":     mustJSON(newMessagesRecord{b.NewInstruct, b.NewRequest, b.NewContext, b.NewResponses}),
		"history_messages": mustJSON(historyMessagesRecord{b.HistoryContext, b.HistoryChat}),
		"parent":           b.ParentHash,
		"references":       mustJSON(b.Refs),
		"timestamp":        strconv.FormatInt(b.CreatedAt, 10),
		"request_tokens":   strconv.Itoa(b.ReqTokens),
		"response_tokens":  strconv.Itoa(b.RespTokens),
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(fields[name])
	}
	return sb.String()
}

type newMessagesRecord struct {
	Instruct  []domain.Message `json:"instruct"`
	Request   *domain.Message  `json:"request"`
	Context   []domain.Message `json:"context"`
	Responses []domain.Message `json:"responses"`
}

type historyMessagesRecord struct {
	Context []domain.Message `json:"context"`
	Chat    []domain.Message `json:"chat"`
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only message structs and string slices reach here.
		log.Printf("ERROR: failed to serialize prompt field: %v", err)
		return ""
	}
	return string(data)
}

// FormattedHeader renders the user identity and localized timestamp.
func (b *Base) FormattedHeader() string {
	formatted := fmt.Sprintf("User: %s\n", b.User())
	localTime := time.Unix(b.CreatedAt, 0).Local()
	formatted += fmt.Sprintf("Date: %s\n\n", localTime.Format("Mon Jan 02 15:04:05 2006 -0700"))
	return formatted
}

// FormattedResponse renders one response for display. It returns the empty
// string and logs when the index is out of range or the response at that
// index is incomplete, so display loops degrade gracefully per line.
func (b *Base) FormattedResponse(index int) string {
	if index < 0 || index >= len(b.NewResponses) || b.NewResponses[index].FinishReason == "" {
		log.Printf("ERROR: response index %d is incomplete to format: request = %v, responses = %v",
			index, b.NewRequest, b.NewResponses)
		return ""
	}

	formatted := b.FormattedHeader()

	response := b.NewResponses[index]
	if response.Content != "" {
		formatted += response.Content
		formatted += "\n\n"
	}
	if response.FinishReason == domain.FinishFunctionCall {
		formatted += response.FunctionCallToJSON()
	}
	formatted += fmt.Sprintf("\n\nfinish_reason: %s\n\n", response.FinishReason)

	formatted += fmt.Sprintf("prompt %s", b.hash)
	return formatted
}

// Shortlog summarizes the prompt for history display. It fails when the
// prompt has no request or no responses.
func (b *Base) Shortlog() (*Shortlog, error) {
	if b.NewRequest == nil || len(b.NewResponses) == 0 {
		return nil, fmt.Errorf("prompt is incomplete for shortlog")
	}

	var responses strings.Builder
	for _, message := range b.NewResponses {
		responses.WriteString(message.Content)
		responses.WriteString(message.FunctionCallToJSON())
	}

	return &Shortlog{
		User:           b.User(),
		Date:           b.CreatedAt,
		Context:        b.NewContext,
		Request:        b.NewRequest.Content,
		Responses:      responses.String(),
		RequestTokens:  b.ReqTokens,
		ResponseTokens: b.RespTokens,
		Hash:           b.hash,
		Parent:         b.ParentHash,
	}, nil
}
