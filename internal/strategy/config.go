package strategy

import (
	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

var validate = validator.New()

// Config describes one strategy instance: which strategy to run, the
// market data it subscribes to and its tunable parameters.
type Config struct {
	// StrategyName resolves against the registry.
	StrategyName string `yaml:"strategy" json:"strategy" validate:"required"`
	// Symbols the instance subscribes to. At least one is required.
	Symbols []string `yaml:"symbols" json:"symbols" validate:"required,min=1,dive,required"`
	// Exchanges the instance trades on. At least one is required.
	Exchanges []string `yaml:"exchanges" json:"exchanges" validate:"required,min=1,dive,required"`
	// Intervals of the bars delivered to the instance. Data is routed on
	// (symbol, interval) pairs.
	Intervals []types.Interval `yaml:"intervals" json:"intervals" validate:"required,min=1"`
	// Params are passed through to the strategy untouched.
	Params map[string]any `yaml:"params" json:"params"`
}

// Validate checks structural validity and the interval values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid strategy config", err)
	}
	for _, interval := range c.Intervals {
		if !interval.IsValid() {
			return errors.Newf(errors.ErrCodeInvalidInterval, "unknown interval %q", interval)
		}
	}
	return nil
}

// ValidateParams checks that every parameter a strategy declares as
// required is present in the config.
func (c Config) ValidateParams(s Strategy) error {
	rp, ok := s.(RequiredParamer)
	if !ok {
		return nil
	}
	for _, key := range rp.RequiredParams() {
		if _, present := c.Params[key]; !present {
			return errors.Newf(errors.ErrCodeMissingParameter, "strategy %q requires parameter %q", c.StrategyName, key)
		}
	}
	return nil
}
