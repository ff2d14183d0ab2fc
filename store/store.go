// Package store persists finalized prompts and resolves them by hash.
package store

import (
	"context"
	"errors"

	"github.com/xiaot623/devchat/prompt"
)

// ErrNotFound is returned when a hash does not resolve to a stored prompt.
var ErrNotFound = errors.New("prompt not found")

// PromptFactory constructs an empty backend-specific prompt so the store
// can reconstruct persisted records.
type PromptFactory func(model, userName, userEmail string) prompt.Prompt

// Store resolves and persists prompts.
type Store interface {
	// GetPrompt resolves a hash to a previously persisted prompt. It returns
	// ErrNotFound when the hash is unknown.
	GetPrompt(ctx context.Context, hash string) (prompt.Prompt, error)

	// StorePrompt persists a finalized prompt. It fails when the prompt is
	// incomplete.
	StorePrompt(ctx context.Context, p prompt.Prompt) error

	// SelectRecent returns shortlogs of the most recent prompts,
	// newest first.
	SelectRecent(ctx context.Context, limit int) ([]*prompt.Shortlog, error)

	// ListTopics returns conversation topics, most recently active first.
	ListTopics(ctx context.Context, limit int) ([]Topic, error)

	Close() error
}

// Topic groups a conversation chain by its root prompt.
type Topic struct {
	RootHash   string `json:"root_hash"`
	LatestHash string `json:"latest_hash"`
	Title      string `json:"title"`
	UpdatedAt  int64  `json:"updated_at"`
}
