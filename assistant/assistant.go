// Package assistant orchestrates prompt construction, the backend exchange,
// and response collection.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/devchat/domain"
	"github.com/xiaot623/devchat/prompt"
	"github.com/xiaot623/devchat/store"
)

// Assistant drives one round at a time: it builds the active prompt, runs
// the backend exchange, and hands the finalized prompt to the store. An
// Assistant holds at most one active prompt; callers must serialize
// MakePrompt and IterateResponses on the same instance.
type Assistant struct {
	chat       prompt.Chat
	store      store.Store
	prompt     prompt.Prompt
	tokenLimit domain.TokenBudget
}

// New creates an assistant over the given chat and store collaborators.
func New(chat prompt.Chat, st store.Store) *Assistant {
	return &Assistant{
		chat:       chat,
		store:      st,
		tokenLimit: domain.Unlimited(),
	}
}

// SetTokenLimit bounds the tokens spent on carried history per prompt.
func (a *Assistant) SetTokenLimit(limit domain.TokenBudget) {
	a.tokenLimit = limit
}

// Prompt returns the active prompt, or nil before the first MakePrompt.
func (a *Assistant) Prompt() prompt.Prompt {
	return a.prompt
}

// MakePrompt builds the active prompt for a round. Parent and reference
// hashes are resolved through the store before anything else is added;
// an unresolvable hash aborts construction and leaves no usable prompt.
func (a *Assistant) MakePrompt(ctx context.Context, request string,
	instructContents, contextContents []string,
	parentHashes, referenceHashes []string) error {
	a.prompt = nil

	p, err := a.chat.InitPrompt(request)
	if err != nil {
		return fmt.Errorf("failed to init prompt: %w", err)
	}

	parents, err := ParseHashes(parentHashes)
	if err != nil {
		return err
	}
	references, err := ParseHashes(referenceHashes)
	if err != nil {
		return err
	}

	referenced := make([]prompt.Prompt, 0, len(references))
	for _, hash := range references {
		ref, err := a.store.GetPrompt(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to resolve reference %s: %w", hash, err)
		}
		referenced = append(referenced, ref)
	}
	parented := make([]prompt.Prompt, 0, len(parents))
	for _, hash := range parents {
		par, err := a.store.GetPrompt(ctx, hash)
		if err != nil {
			return fmt.Errorf("failed to resolve parent %s: %w", hash, err)
		}
		parented = append(parented, par)
	}

	if len(parents) > 0 {
		p.SetParent(parents[0])
	}
	p.SetReferences(references)

	// Carry history: referenced rounds first, then the parent chain from
	// the most recent round backwards, until the token ceiling is hit.
	for _, ref := range referenced {
		if !p.PrependHistory(ref, a.tokenLimit) {
			break
		}
	}
	for _, par := range parented {
		for par != nil {
			if !p.PrependHistory(par, a.tokenLimit) {
				break
			}
			grandparent := par.Parent()
			if grandparent == "" {
				break
			}
			par, err = a.store.GetPrompt(ctx, grandparent)
			if err != nil {
				return fmt.Errorf("failed to resolve parent %s: %w", grandparent, err)
			}
		}
	}

	if len(instructContents) > 0 {
		combined := strings.Join(instructContents, "")
		p.AppendNew(domain.KindInstruct, combined, domain.Unlimited())
	}
	p.SetRequest(request)
	for _, contextContent := range contextContents {
		p.AppendNew(domain.KindContext, contextContent, domain.Unlimited())
	}

	a.prompt = p
	return nil
}

// IterateResponses runs the backend exchange and yields display text
// fragments in order. In streaming mode each revealed fragment is yielded
// as it arrives, followed by a trailer identifying the prompt hash and the
// formatted text of every response beyond index 0. In blocking mode the
// formatted text of every response is yielded. Either way the prompt is
// persisted exactly once before any hash is shown; a failed exchange or a
// yield abandoned mid-stream persists nothing.
func (a *Assistant) IterateResponses(ctx context.Context, yield func(fragment string) error) error {
	if a.prompt == nil {
		return fmt.Errorf("no prompt to iterate responses for")
	}

	if a.chat.Streaming() {
		err := a.chat.StreamResponse(ctx, a.prompt, func(delta string) error {
			fragment, err := a.prompt.AppendResponse(delta)
			if err != nil {
				return err
			}
			return yield(fragment)
		})
		if err != nil {
			return err
		}
		if err := a.store.StorePrompt(ctx, a.prompt); err != nil {
			return err
		}
		if err := yield(fmt.Sprintf("\n\nprompt %s\n", a.prompt.Hash())); err != nil {
			return err
		}
		for index := 1; index < len(a.prompt.Responses()); index++ {
			formatted := a.prompt.FormattedResponse(index)
			if formatted == "" {
				continue
			}
			if err := yield(formatted + "\n"); err != nil {
				return err
			}
		}
		return nil
	}

	responseStr, err := a.chat.CompleteResponse(ctx, a.prompt)
	if err != nil {
		return err
	}
	if err := a.prompt.SetResponse(responseStr); err != nil {
		return err
	}
	if err := a.store.StorePrompt(ctx, a.prompt); err != nil {
		return err
	}
	for index := 0; index < len(a.prompt.Responses()); index++ {
		formatted := a.prompt.FormattedResponse(index)
		if formatted == "" {
			continue
		}
		if err := yield(formatted + "\n"); err != nil {
			return err
		}
	}
	return nil
}
