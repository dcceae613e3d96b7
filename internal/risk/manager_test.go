package risk

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// stubRule records evaluation order and returns a fixed decision.
type stubRule struct {
	name     string
	enabled  bool
	decision Decision
	calls    *[]string
}

func (s *stubRule) Name() string                      { return s.name }
func (s *stubRule) Enabled() bool                     { return s.enabled }
func (s *stubRule) SetEnabled(enabled bool)           { s.enabled = enabled }
func (s *stubRule) UpdateParams(map[string]any) error { return nil }

func (s *stubRule) Check(types.Order, types.AccountInfo, map[string]any) Decision {
	if s.calls != nil {
		*s.calls = append(*s.calls, s.name)
	}
	return s.decision
}

type ManagerTestSuite struct {
	suite.Suite
	manager *Manager
	account types.AccountInfo
}

func (s *ManagerTestSuite) SetupTest() {
	s.manager = NewManager(logger.NewNopLogger())
	s.account = types.AccountInfo{
		Balance:   10000,
		Equity:    10000,
		Positions: make(map[string]types.Position),
	}
}

func (s *ManagerTestSuite) newMarketOrder(symbol string, qty float64) types.Order {
	return types.Order{
		OrderID:   uuid.New().String(),
		Symbol:    symbol,
		Side:      types.OrderSideBuy,
		OrderType: types.OrderTypeMarket,
		Quantity:  qty,
		Timestamp: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
}

func (s *ManagerTestSuite) TestEmptyPipelineAllows() {
	decision := s.manager.CheckOrder(s.newMarketOrder("BTCUSDT", 1), s.account)
	s.True(decision.Allowed)
}

func (s *ManagerTestSuite) TestDuplicateRuleRejected() {
	s.Require().NoError(s.manager.AddRule(&stubRule{name: "r1", enabled: true, decision: Allow()}))
	err := s.manager.AddRule(&stubRule{name: "r1", enabled: true, decision: Allow()})
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeDuplicateRule))
}

func (s *ManagerTestSuite) TestUnknownRuleErrors() {
	s.True(errors.HasCode(s.manager.EnableRule("missing"), errors.ErrCodeUnknownRule))
	s.True(errors.HasCode(s.manager.DisableRule("missing"), errors.ErrCodeUnknownRule))
	s.True(errors.HasCode(s.manager.RemoveRule("missing"), errors.ErrCodeUnknownRule))
	s.True(errors.HasCode(s.manager.UpdateRuleParams("missing", nil), errors.ErrCodeUnknownRule))
}

func (s *ManagerTestSuite) TestInsertionOrderFirstDenialWins() {
	var calls []string
	s.Require().NoError(s.manager.AddRule(&stubRule{name: "r1", enabled: true, decision: Deny("r1", "first"), calls: &calls}))
	s.Require().NoError(s.manager.AddRule(&stubRule{name: "r2", enabled: true, decision: Deny("r2", "second"), calls: &calls}))

	decision := s.manager.CheckOrder(s.newMarketOrder("BTCUSDT", 1), s.account)
	s.False(decision.Allowed)
	s.Equal("r1", decision.Rule)
	s.Equal("first", decision.Reason)
	s.Equal([]string{"r1"}, calls, "r2 must not be consulted after r1 denies")
}

func (s *ManagerTestSuite) TestDisabledRuleSkipped() {
	var calls []string
	deny := &stubRule{name: "r1", enabled: true, decision: Deny("r1", "no"), calls: &calls}
	s.Require().NoError(s.manager.AddRule(deny))
	s.Require().NoError(s.manager.DisableRule("r1"))

	decision := s.manager.CheckOrder(s.newMarketOrder("BTCUSDT", 1), s.account)
	s.True(decision.Allowed)
	s.Empty(calls)

	s.Require().NoError(s.manager.EnableRule("r1"))
	decision = s.manager.CheckOrder(s.newMarketOrder("BTCUSDT", 1), s.account)
	s.False(decision.Allowed)
}

func (s *ManagerTestSuite) TestRemoveRule() {
	s.Require().NoError(s.manager.AddRule(&stubRule{name: "r1", enabled: true, decision: Deny("r1", "no")}))
	s.Require().NoError(s.manager.RemoveRule("r1"))
	s.True(s.manager.CheckOrder(s.newMarketOrder("BTCUSDT", 1), s.account).Allowed)

	// The name becomes available again after removal.
	s.Require().NoError(s.manager.AddRule(&stubRule{name: "r1", enabled: true, decision: Allow()}))
}

func (s *ManagerTestSuite) TestUpdateContextMerges() {
	s.manager.UpdateContext(map[string]any{"a": 1, "b": 2})
	s.manager.UpdateContext(map[string]any{"b": 3})

	v, ok := s.manager.ContextValue("a")
	s.True(ok)
	s.Equal(1, v)
	v, ok = s.manager.ContextValue("b")
	s.True(ok)
	s.Equal(3, v)
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}
