package store_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/xiaot623/devchat/domain"
	"github.com/xiaot623/devchat/openai"
	"github.com/xiaot623/devchat/store"
	"github.com/xiaot623/devchat/tests/helpers"
)

func storedPrompt(t *testing.T, request, response string, timestamp int64, parent string) *openai.Prompt {
	t.Helper()

	p := openai.NewPrompt("gpt-4", "Alice", "alice@example.com", helpers.WordCounter{})
	p.CreatedAt = timestamp
	if parent != "" {
		p.SetParent(parent)
	}
	p.SetRequest(request)
	p.NewResponses = []domain.Message{
		{Role: domain.RoleAssistant, Content: response, FinishReason: domain.FinishStop},
	}
	if p.FinalizeHash() == "" {
		t.Fatalf("fixture prompt did not finalize")
	}
	return p
}

func TestStorePromptRoundTrip(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	p := openai.NewPrompt("gpt-4", "Alice", "alice@example.com", helpers.WordCounter{})
	p.CreatedAt = 1700000000
	p.AppendNew(domain.KindInstruct, "be concise", domain.Unlimited())
	p.SetRequest("fix bug")
	p.NewResponses = []domain.Message{
		{Role: domain.RoleAssistant, Content: "Fixed.", FinishReason: domain.FinishStop},
	}
	hash := p.FinalizeHash()
	if hash == "" {
		t.Fatalf("fixture prompt did not finalize")
	}

	if err := s.StorePrompt(ctx, p); err != nil {
		t.Fatalf("StorePrompt failed: %v", err)
	}

	got, err := s.GetPrompt(ctx, hash)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if got.Hash() != hash {
		t.Fatalf("hash not restored: %q", got.Hash())
	}
	if got.Request() == nil || got.Request().Content != "fix bug" {
		t.Fatalf("request not restored: %+v", got.Request())
	}
	if responses := got.Responses(); len(responses) != 1 || responses[0].Content != "Fixed." {
		t.Fatalf("responses not restored: %+v", responses)
	}
	if got.Timestamp() != 1700000000 {
		t.Fatalf("timestamp not restored: %d", got.Timestamp())
	}
	if got.User() != "Alice <alice@example.com>" {
		t.Fatalf("identity not restored: %q", got.User())
	}
	if got.RequestTokens() != p.RequestTokens() || got.ResponseTokens() != p.ResponseTokens() {
		t.Fatalf("token counts not restored: %d/%d", got.RequestTokens(), got.ResponseTokens())
	}
}

func TestStorePromptIncomplete(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)

	p := openai.NewPrompt("gpt-4", "Alice", "alice@example.com", helpers.WordCounter{})
	p.SetRequest("unanswered")

	if err := s.StorePrompt(context.Background(), p); err == nil {
		t.Fatalf("expected error for incomplete prompt")
	}
}

func TestStorePromptIdempotent(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	p := storedPrompt(t, "fix bug", "Fixed.", 1700000000, "")
	if err := s.StorePrompt(ctx, p); err != nil {
		t.Fatalf("first StorePrompt failed: %v", err)
	}
	if err := s.StorePrompt(ctx, p); err != nil {
		t.Fatalf("second StorePrompt failed: %v", err)
	}

	shortlogs, err := s.SelectRecent(ctx, 0)
	if err != nil {
		t.Fatalf("SelectRecent failed: %v", err)
	}
	if len(shortlogs) != 1 {
		t.Fatalf("expected one stored prompt, got %d", len(shortlogs))
	}
}

func TestGetPromptNotFound(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)

	_, err := s.GetPrompt(context.Background(), strings.Repeat("a", 64))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectRecentOrder(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	older := storedPrompt(t, "first question", "First.", 1700000000, "")
	newer := storedPrompt(t, "second question", "Second.", 1700000300, "")
	for _, p := range []*openai.Prompt{older, newer} {
		if err := s.StorePrompt(ctx, p); err != nil {
			t.Fatalf("StorePrompt failed: %v", err)
		}
	}

	shortlogs, err := s.SelectRecent(ctx, 10)
	if err != nil {
		t.Fatalf("SelectRecent failed: %v", err)
	}
	if len(shortlogs) != 2 {
		t.Fatalf("expected 2 shortlogs, got %d", len(shortlogs))
	}
	if shortlogs[0].Request != "second question" || shortlogs[1].Request != "first question" {
		t.Fatalf("shortlogs not newest first: %q, %q",
			shortlogs[0].Request, shortlogs[1].Request)
	}

	limited, err := s.SelectRecent(ctx, 1)
	if err != nil {
		t.Fatalf("SelectRecent failed: %v", err)
	}
	if len(limited) != 1 || limited[0].Hash != newer.Hash() {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestTopicTitleRuneTruncation(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	request := strings.Repeat("日", 150)
	p := storedPrompt(t, request, "Answer.", 1700000000, "")
	if err := s.StorePrompt(ctx, p); err != nil {
		t.Fatalf("StorePrompt failed: %v", err)
	}

	topics, err := s.ListTopics(ctx, 1)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if len(topics) != 1 {
		t.Fatalf("expected 1 topic, got %d", len(topics))
	}
	if !utf8.ValidString(topics[0].Title) {
		t.Fatalf("title is not valid UTF-8: %q", topics[0].Title)
	}
	if got := []rune(topics[0].Title); len(got) != 100 {
		t.Fatalf("expected a 100-rune title, got %d runes", len(got))
	}
}

func TestTopics(t *testing.T) {
	s := helpers.NewTestSQLiteStore(t)
	ctx := context.Background()

	root := storedPrompt(t, "fix bug", "Fixed.", 1700000000, "")
	if err := s.StorePrompt(ctx, root); err != nil {
		t.Fatalf("StorePrompt failed: %v", err)
	}
	child := storedPrompt(t, "and the tests?", "Green.", 1700000300, root.Hash())
	if err := s.StorePrompt(ctx, child); err != nil {
		t.Fatalf("StorePrompt failed: %v", err)
	}
	other := storedPrompt(t, "unrelated question", "Answer.", 1700000100, "")
	if err := s.StorePrompt(ctx, other); err != nil {
		t.Fatalf("StorePrompt failed: %v", err)
	}

	topics, err := s.ListTopics(ctx, 10)
	if err != nil {
		t.Fatalf("ListTopics failed: %v", err)
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d", len(topics))
	}

	// The chained conversation was touched last, so it comes first and
	// keeps the root's title with the child as its latest round.
	if topics[0].RootHash != root.Hash() || topics[0].LatestHash != child.Hash() {
		t.Fatalf("unexpected topic chain: %+v", topics[0])
	}
	if topics[0].Title != "fix bug" || topics[0].UpdatedAt != 1700000300 {
		t.Fatalf("topic not updated by the child round: %+v", topics[0])
	}
	if topics[1].RootHash != other.Hash() {
		t.Fatalf("unexpected standalone topic: %+v", topics[1])
	}
}
