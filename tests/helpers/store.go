// Package helpers provides shared test fixtures.
package helpers

import (
	"testing"

	"github.com/xiaot623/devchat/domain"
	"github.com/xiaot623/devchat/openai"
	"github.com/xiaot623/devchat/prompt"
	"github.com/xiaot623/devchat/store"
)

// WordCounter is a deterministic token counter for tests: one token per
// whitespace-separated word plus one for the role.
type WordCounter struct{}

func (WordCounter) MessageTokens(model string, m domain.Message) int {
	tokens := 1
	for _, r := range m.Content {
		if r == ' ' || r == '\n' {
			tokens++
		}
	}
	if m.Content != "" {
		tokens++
	}
	if m.FunctionCall != nil {
		tokens++
	}
	return tokens
}

// NewTestSQLiteStore returns an in-memory prompt store that reconstructs
// prompts with the test token counter.
func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	factory := func(model, userName, userEmail string) prompt.Prompt {
		return openai.NewPrompt(model, userName, userEmail, WordCounter{})
	}
	s, err := store.NewSQLiteStore(":memory:", factory)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
