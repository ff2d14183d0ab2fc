package prompt_test

import (
	"strings"
	"testing"

	"github.com/xiaot623/devchat/domain"
	"github.com/xiaot623/devchat/openai"
)

// wordCounter counts one token per word plus one for the role.
type wordCounter struct{}

func (wordCounter) MessageTokens(model string, m domain.Message) int {
	return 1 + len(strings.Fields(m.Content))
}

func newTestPrompt() *openai.Prompt {
	p := openai.NewPrompt("gpt-4", "Alice", "alice@example.com", wordCounter{})
	p.CreatedAt = 1700000000
	return p
}

func completeTestPrompt() *openai.Prompt {
	p := newTestPrompt()
	p.SetRequest("fix bug")
	p.NewResponses = []domain.Message{
		{Role: domain.RoleAssistant, Content: "Fixed.", FinishReason: domain.FinishStop},
	}
	return p
}

func TestFinalizeHashDeterminism(t *testing.T) {
	first := completeTestPrompt()
	second := completeTestPrompt()

	hash1 := first.FinalizeHash()
	hash2 := second.FinalizeHash()
	if hash1 == "" || hash1 != hash2 {
		t.Fatalf("expected identical non-empty hashes, got %q and %q", hash1, hash2)
	}
	if len(hash1) != 64 {
		t.Fatalf("expected a sha256 hex digest, got %q", hash1)
	}

	changed := completeTestPrompt()
	changed.SetRequest("fix another bug")
	if changed.FinalizeHash() == hash1 {
		t.Fatalf("changing the request should change the hash")
	}
}

func TestFinalizeHashReferenceOrder(t *testing.T) {
	refA := strings.Repeat("a", 64)
	refB := strings.Repeat("b", 64)

	first := completeTestPrompt()
	first.SetReferences([]string{refA, refB})
	second := completeTestPrompt()
	second.SetReferences([]string{refB, refA})

	if first.FinalizeHash() == second.FinalizeHash() {
		t.Fatalf("reference order should change the hash")
	}
}

func TestFinalizeHashIdempotent(t *testing.T) {
	p := completeTestPrompt()

	hash1 := p.FinalizeHash()
	hash2 := p.FinalizeHash()
	if hash1 != hash2 {
		t.Fatalf("finalize is not idempotent: %q != %q", hash1, hash2)
	}
	if p.Hash() != hash1 {
		t.Fatalf("Hash() should return the finalized value")
	}
}

func TestFinalizeHashIncomplete(t *testing.T) {
	p := newTestPrompt()
	p.SetRequest("fix bug")

	if hash := p.FinalizeHash(); hash != "" {
		t.Fatalf("prompt without responses should not hash, got %q", hash)
	}

	p.NewResponses = []domain.Message{
		{Role: domain.RoleAssistant, Content: "Fixed.", FinishReason: domain.FinishStop},
	}
	if hash := p.FinalizeHash(); hash == "" {
		t.Fatalf("completed prompt should hash")
	}
}

func TestFormattedResponse(t *testing.T) {
	p := completeTestPrompt()
	hash := p.FinalizeHash()

	formatted := p.FormattedResponse(0)
	if formatted == "" {
		t.Fatalf("expected formatted response")
	}
	if !strings.HasPrefix(formatted, "User: Alice <alice@example.com>\nDate: ") {
		t.Fatalf("unexpected header: %q", formatted)
	}
	if !strings.Contains(formatted, "Fixed.\n\n") {
		t.Fatalf("missing response content: %q", formatted)
	}
	if !strings.Contains(formatted, "\n\nfinish_reason: stop\n\n") {
		t.Fatalf("missing finish reason: %q", formatted)
	}
	if !strings.HasSuffix(formatted, "prompt "+hash) {
		t.Fatalf("missing prompt footer: %q", formatted)
	}
}

func TestFormattedResponseFunctionCall(t *testing.T) {
	p := newTestPrompt()
	p.SetRequest("what is the weather")
	p.NewResponses = []domain.Message{{
		Role:         domain.RoleAssistant,
		FinishReason: domain.FinishFunctionCall,
		FunctionCall: &domain.FunctionCall{
			Name:      "weather---query",
			Arguments: `{"city":"Paris"}`,
		},
	}}
	p.FinalizeHash()

	formatted := p.FormattedResponse(0)
	if !strings.Contains(formatted, "```command\n") {
		t.Fatalf("missing command block: %q", formatted)
	}
	if !strings.Contains(formatted, `"city":"Paris"`) {
		t.Fatalf("missing decoded arguments: %q", formatted)
	}
	if !strings.Contains(formatted, "finish_reason: function_call") {
		t.Fatalf("missing finish reason: %q", formatted)
	}
}

func TestFormattedResponseOutOfRange(t *testing.T) {
	p := completeTestPrompt()
	p.FinalizeHash()

	if formatted := p.FormattedResponse(3); formatted != "" {
		t.Fatalf("expected empty string for out-of-range index, got %q", formatted)
	}
	if formatted := p.FormattedResponse(-1); formatted != "" {
		t.Fatalf("expected empty string for negative index, got %q", formatted)
	}
}

func TestShortlog(t *testing.T) {
	p := completeTestPrompt()
	p.AppendNew(domain.KindContext, "file.py contents", domain.Unlimited())
	hash := p.FinalizeHash()

	shortlog, err := p.Shortlog()
	if err != nil {
		t.Fatalf("Shortlog failed: %v", err)
	}
	if shortlog.User != "Alice <alice@example.com>" {
		t.Fatalf("unexpected user: %q", shortlog.User)
	}
	if shortlog.Request != "fix bug" {
		t.Fatalf("unexpected request: %q", shortlog.Request)
	}
	if shortlog.Responses != "Fixed." {
		t.Fatalf("unexpected responses: %q", shortlog.Responses)
	}
	if shortlog.Hash != hash {
		t.Fatalf("unexpected hash: %q", shortlog.Hash)
	}
	if len(shortlog.Context) != 1 || shortlog.Context[0].Content != "file.py contents" {
		t.Fatalf("unexpected context: %+v", shortlog.Context)
	}
}

func TestShortlogIncomplete(t *testing.T) {
	p := newTestPrompt()
	p.SetRequest("fix bug")

	if _, err := p.Shortlog(); err == nil {
		t.Fatalf("expected error for incomplete prompt")
	}
}
