package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrUnconfigured   = errors.New("mail: no delivery provider configured")
	ErrDeliveryFailed = errors.New("mail: delivery failed")
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Strategy is one delivery backend. A strategy that is enabled but lacks
// credentials must return ErrUnconfigured from Send.
type Strategy interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg Message) error
}

type Result struct {
	Provider string
	Attempts int
}

// Observer is notified once per attempt with the provider name and outcome
// ("sent", "failed", "unconfigured").
type Observer func(provider, outcome string)

// Chain tries enabled strategies in order, each at most once, and stops at
// the first success.
type Chain struct {
	strategies []Strategy
	logger     zerolog.Logger
	observe    Observer
}

func NewChain(logger zerolog.Logger, observe Observer, strategies ...Strategy) *Chain {
	if observe == nil {
		observe = func(string, string) {}
	}
	return &Chain{strategies: strategies, logger: logger, observe: observe}
}

func (c *Chain) Send(ctx context.Context, msg Message) (Result, error) {
	enabled := make([]Strategy, 0, len(c.strategies))
	for _, strategy := range c.strategies {
		if strategy.Enabled() {
			enabled = append(enabled, strategy)
		}
	}
	if len(enabled) == 0 {
		return Result{}, ErrUnconfigured
	}

	var result Result
	for i, strategy := range enabled {
		result.Provider = strategy.Name()
		result.Attempts++
		err := strategy.Send(ctx, msg)
		if err == nil {
			c.observe(strategy.Name(), "sent")
			return result, nil
		}

		outcome := "failed"
		if errors.Is(err, ErrUnconfigured) {
			outcome = "unconfigured"
		}
		c.observe(strategy.Name(), outcome)

		if i < len(enabled)-1 {
			c.logger.Warn().Err(err).Str("provider", strategy.Name()).Msg("mail provider failed, trying next")
			continue
		}
		if errors.Is(err, ErrUnconfigured) {
			return result, fmt.Errorf("%s: %w", strategy.Name(), err)
		}
		return result, fmt.Errorf("%w: %s: %w", ErrDeliveryFailed, strategy.Name(), err)
	}
	return result, ErrDeliveryFailed
}
