package engine

import (
	"sync"
	"sync/atomic"

	"github.com/tokex-dev/tokex/internal/core"
)

// PolicyManager hands out the current Engine and swaps it atomically on
// rule reload. In-flight evaluations keep the engine they started with.
type PolicyManager struct {
	current atomic.Pointer[Engine]
	mu      sync.Mutex
}

var _ core.Evaluator = (*PolicyManager)(nil)

func NewManager(initialRules []core.Rule) *PolicyManager {
	m := &PolicyManager{}
	m.current.Store(New(initialRules))
	return m
}

func (m *PolicyManager) Engine() *Engine {
	return m.current.Load()
}

// Evaluate delegates to the current engine, so the manager can stand in
// wherever a core.Evaluator is expected.
func (m *PolicyManager) Evaluate(claims core.ClaimSet, fact core.Fact) (*core.Rule, bool) {
	return m.Engine().Evaluate(claims, fact)
}

// Update replaces the rule set. Rules must already be validated.
func (m *PolicyManager) Update(rules []core.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Store(New(rules))
}
