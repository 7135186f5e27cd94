package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain falls back through providers in order, e.g. ElevenLabs then
// OpenAI. Fallback only happens before audio starts: once a provider
// returns a stream the utterance stays with it.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		providers: providers,
		logger:    logger.With("component", "tts.chain"),
	}, nil
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	return first(ctx, c, text, Provider.Synthesize)
}

func (c *Chain) Stream(ctx context.Context, text string) (AudioStream, error) {
	return first(ctx, c, text, Provider.Stream)
}

// first returns the result of the first provider that succeeds. A
// cancelled context stops the walk instead of burning the fallbacks.
func first[T any](ctx context.Context, c *Chain, text string, call func(Provider, context.Context, string) (T, error)) (T, error) {
	var zero T
	var errs []error
	for i, p := range c.providers {
		out, err := call(p, ctx, text)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback voice in use", "provider", p.Name(), "chars", len(text))
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("voice provider failed", "provider", p.Name(), "error", err)
	}
	return zero, &ChainError{Errors: errs}
}

// Health succeeds if any provider is reachable.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("tts chain: no healthy provider: %w", errors.Join(errs...))
}

func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// ChainError holds one failure per provider, in chain order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "tts chain: no providers tried"
	case 1:
		return "tts chain: " + e.Errors[0].Error()
	}
	return fmt.Sprintf("tts chain: all %d providers failed, last: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every provider failure to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error { return e.Errors }

var _ Provider = (*Chain)(nil)
