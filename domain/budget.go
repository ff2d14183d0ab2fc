package domain

// TokenBudget is a bounded-or-unbounded token allowance. The zero value is
// unlimited, so an omitted budget never constrains anything.
type TokenBudget struct {
	limited bool
	tokens  int
}

// Budget returns a budget capped at n tokens.
func Budget(n int) TokenBudget {
	return TokenBudget{limited: true, tokens: n}
}

// Unlimited returns a budget with no cap.
func Unlimited() TokenBudget {
	return TokenBudget{}
}

// Limited reports whether the budget has a cap.
func (b TokenBudget) Limited() bool {
	return b.limited
}

// Tokens returns the cap. It is meaningless for unlimited budgets.
func (b TokenBudget) Tokens() int {
	return b.tokens
}

// Allows reports whether a message costing n tokens fits the budget.
func (b TokenBudget) Allows(n int) bool {
	return !b.limited || n <= b.tokens
}

// Fits reports whether a message costing n tokens fits the budget after
// used tokens have already been spent.
func (b TokenBudget) Fits(n, used int) bool {
	return !b.limited || n <= b.tokens-used
}
