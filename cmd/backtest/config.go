package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy/internal/backtest"
	"github.com/rxtech-lab/argo-strategy/internal/risk"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RiskRuleConfig selects a built-in risk rule by name and carries its
// parameters.
type RiskRuleConfig struct {
	Name   string         `yaml:"name" validate:"required"`
	Params map[string]any `yaml:"params"`
}

// AppConfig is the yaml configuration of one backtest run.
type AppConfig struct {
	Backtest   backtest.Config   `yaml:"backtest" validate:"required"`
	Strategies []strategy.Config `yaml:"strategies" validate:"required,min=1"`
	RiskRules  []RiskRuleConfig  `yaml:"risk_rules"`
}

var validate = validator.New()

// LoadConfig reads and validates a yaml config file.
func LoadConfig(path string) (*AppConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	var config AppConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}
	for _, sc := range config.Strategies {
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// buildRiskRule instantiates a built-in rule from config. Rules whose
// threshold is their whole reason to exist must carry it in the config.
func buildRiskRule(config RiskRuleConfig) (risk.Rule, error) {
	var rule risk.Rule
	switch config.Name {
	case "position_size":
		rule = risk.NewPositionSizeRule(config.Params)
		return rule, nil
	case "max_drawdown":
		if _, ok := config.Params["max_drawdown"]; !ok {
			return nil, errors.Newf(errors.ErrCodeMissingParameter, "risk rule %q requires parameter %q", config.Name, "max_drawdown")
		}
		rule = risk.NewMaxDrawdownRule(0)
	case "max_trades_per_day":
		if _, ok := config.Params["max_trades_per_day"]; !ok {
			return nil, errors.Newf(errors.ErrCodeMissingParameter, "risk rule %q requires parameter %q", config.Name, "max_trades_per_day")
		}
		rule = risk.NewMaxTradesPerDayRule(0)
	default:
		return nil, errors.Newf(errors.ErrCodeUnknownRule, "unknown risk rule %q", config.Name)
	}
	if err := rule.UpdateParams(config.Params); err != nil {
		return nil, err
	}
	return rule, nil
}
