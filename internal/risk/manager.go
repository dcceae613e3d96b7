package risk

import (
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// Manager owns an ordered pipeline of risk rules and a shared context map
// that rules read during evaluation. All methods are safe for concurrent
// use.
type Manager struct {
	mu      sync.Mutex
	rules   []Rule
	byName  map[string]Rule
	context map[string]any
	logger  *logger.Logger
}

// NewManager creates an empty rule pipeline. A nil logger is replaced with a
// no-op logger.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Manager{
		byName:  make(map[string]Rule),
		context: make(map[string]any),
		logger:  log,
	}
}

// AddRule appends a rule to the end of the pipeline. Rule names must be
// unique within a Manager.
func (m *Manager) AddRule(rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byName[rule.Name()]; exists {
		return errors.Newf(errors.ErrCodeDuplicateRule, "risk rule %q already registered", rule.Name())
	}
	m.rules = append(m.rules, rule)
	m.byName[rule.Name()] = rule
	return nil
}

// RemoveRule deletes a rule from the pipeline.
func (m *Manager) RemoveRule(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, exists := m.byName[name]
	if !exists {
		return errors.Newf(errors.ErrCodeUnknownRule, "risk rule %q not found", name)
	}
	delete(m.byName, name)
	for i, r := range m.rules {
		if r == rule {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			break
		}
	}
	return nil
}

// EnableRule turns a rule back on.
func (m *Manager) EnableRule(name string) error {
	return m.setEnabled(name, true)
}

// DisableRule excludes a rule from evaluation without removing it. The
// rule's internal state is preserved.
func (m *Manager) DisableRule(name string) error {
	return m.setEnabled(name, false)
}

func (m *Manager) setEnabled(name string, enabled bool) error {
	m.mu.Lock()
	rule, exists := m.byName[name]
	m.mu.Unlock()
	if !exists {
		return errors.Newf(errors.ErrCodeUnknownRule, "risk rule %q not found", name)
	}
	rule.SetEnabled(enabled)
	return nil
}

// UpdateRuleParams forwards new parameters to the named rule.
func (m *Manager) UpdateRuleParams(name string, params map[string]any) error {
	m.mu.Lock()
	rule, exists := m.byName[name]
	m.mu.Unlock()
	if !exists {
		return errors.Newf(errors.ErrCodeUnknownRule, "risk rule %q not found", name)
	}
	return rule.UpdateParams(params)
}

// UpdateContext merges the given entries into the shared risk context.
// Callers feed it live market state such as drawdown, last prices and the
// current engine time.
func (m *Manager) UpdateContext(entries map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		m.context[k] = v
	}
}

// ContextValue reads a single entry from the shared context.
func (m *Manager) ContextValue(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.context[key]
	return v, ok
}

// CheckOrder runs the order through every enabled rule in insertion order.
// The first denial wins and later rules are not consulted. An empty
// pipeline allows everything.
func (m *Manager) CheckOrder(order types.Order, account types.AccountInfo) Decision {
	m.mu.Lock()
	rules := make([]Rule, len(m.rules))
	copy(rules, m.rules)
	ctx := make(map[string]any, len(m.context))
	for k, v := range m.context {
		ctx[k] = v
	}
	m.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled() {
			continue
		}
		decision := rule.Check(order, account, ctx)
		if !decision.Allowed {
			m.logger.Debug("order rejected by risk rule",
				zap.String("rule", decision.Rule),
				zap.String("reason", decision.Reason),
				zap.String("order_id", order.OrderID),
				zap.String("symbol", order.Symbol))
			return decision
		}
	}
	return Allow()
}
