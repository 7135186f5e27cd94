// Package response turns a finalized transcript into a reply.
//
// Crisis language short-circuits to a fixed message before any model is
// called. Otherwise the primary model, the secondary endpoint and the rule
// table are tried strictly in that order; the rule table always answers.
// Reveal paces the chosen reply to the UI one word at a time.
package response

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-companion/pkg/inference"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Tiers in fallback order.
const (
	TierPrimary   = 1
	TierSecondary = 2
	TierRules     = 3
)

// Attempt is one tier invocation.
type Attempt struct {
	ID        string
	Tier      int
	Provider  string
	StartedAt time.Time
	Duration  time.Duration
	Err       *voice.Error
}

// Succeeded reports whether the tier produced a reply.
func (a Attempt) Succeeded() bool { return a.Err == nil }

// Result is the outcome of one Generate call.
type Result struct {
	Text     string
	Tier     int
	Crisis   bool
	Category string // rule category when Tier is TierRules
	Attempts []Attempt
}

// Pipeline generates replies.
type Pipeline struct {
	primary   inference.Provider
	secondary inference.Provider
	full      Profile
	brief     Profile
	rules     *RuleResponder
	reveal    time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPrimary sets the tier 1 provider.
func WithPrimary(p inference.Provider) Option {
	return func(pl *Pipeline) { pl.primary = p }
}

// WithSecondary sets the tier 2 provider.
func WithSecondary(p inference.Provider) Option {
	return func(pl *Pipeline) { pl.secondary = p }
}

// WithProfiles overrides the tier profiles.
func WithProfiles(full, brief Profile) Option {
	return func(pl *Pipeline) {
		pl.full = full
		pl.brief = brief
	}
}

// WithRules replaces the rule table.
func WithRules(rules ...Rule) Option {
	return func(pl *Pipeline) { pl.rules = NewRuleResponder(rules...) }
}

// WithConfig applies context window, tier timeouts and reveal pacing.
func WithConfig(cfg voice.Config) Option {
	return func(pl *Pipeline) {
		pl.full = FullProfile(cfg.ContextMessages, cfg.PrimaryTimeout)
		pl.brief = BriefProfile(cfg.FallbackTimeout)
		pl.reveal = cfg.RevealInterval
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(pl *Pipeline) {
		if logger != nil {
			pl.logger = logger
		}
	}
}

// New creates a Pipeline. Without providers only the rule tier runs.
func New(opts ...Option) *Pipeline {
	pl := &Pipeline{
		rules:  NewRuleResponder(),
		logger: slog.Default(),
		now:    time.Now,
	}
	WithConfig(voice.DefaultConfig())(pl)
	for _, opt := range opts {
		opt(pl)
	}
	pl.logger = pl.logger.With("component", "response.pipeline")
	return pl
}

// Generate produces a reply for transcript. history is the conversation so
// far, oldest first, not including transcript. Tier failures fall through;
// the only error is cancellation of ctx.
func (pl *Pipeline) Generate(ctx context.Context, transcript string, history []voice.Message) (Result, error) {
	transcript = strings.TrimSpace(transcript)

	if IsCrisis(transcript) {
		pl.logger.Warn("crisis language detected, returning crisis resources")
		return Result{Text: CrisisMessage, Tier: TierRules, Crisis: true, Category: "crisis"}, nil
	}

	var res Result
	tiers := []struct {
		tier     int
		provider inference.Provider
		profile  Profile
	}{
		{TierPrimary, pl.primary, pl.full},
		{TierSecondary, pl.secondary, pl.brief},
	}
	for _, t := range tiers {
		if t.provider == nil {
			continue
		}
		text, attempt := pl.attempt(ctx, t.tier, t.provider, t.profile, transcript, history)
		res.Attempts = append(res.Attempts, attempt)
		if attempt.Succeeded() {
			res.Text = text
			res.Tier = t.tier
			pl.logger.Info("reply generated", "tier", t.tier, "provider", attempt.Provider, "latency", attempt.Duration)
			return res, nil
		}
		if ctx.Err() != nil {
			return res, voice.NewError(voice.KindAborted, ctx.Err())
		}
		pl.logger.Warn("tier failed, falling back", "tier", t.tier, "provider", attempt.Provider, "error", attempt.Err)
	}

	reply := pl.rules.Respond(transcript)
	res.Attempts = append(res.Attempts, Attempt{
		ID:        uuid.NewString(),
		Tier:      TierRules,
		Provider:  "rules",
		StartedAt: pl.now(),
	})
	res.Text = reply.Text
	res.Tier = TierRules
	res.Category = reply.Category
	res.Crisis = reply.Category == "crisis"
	pl.logger.Info("reply generated", "tier", TierRules, "category", reply.Category)
	return res, nil
}

func (pl *Pipeline) attempt(ctx context.Context, tier int, p inference.Provider, profile Profile, transcript string, history []voice.Message) (string, Attempt) {
	a := Attempt{
		ID:        uuid.NewString(),
		Tier:      tier,
		Provider:  p.Name(),
		StartedAt: pl.now(),
	}

	if profile.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, profile.Timeout)
		defer cancel()
	}

	resp, err := p.Chat(ctx, &inference.ChatRequest{
		Messages:  BuildMessages(profile, transcript, history),
		MaxTokens: profile.MaxTokens,
	})
	a.Duration = pl.now().Sub(a.StartedAt)
	if err != nil {
		a.Err = voice.NewProviderError(tier, err)
		return "", a
	}
	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		a.Err = voice.NewProviderError(tier, inference.ErrEmptyResponse)
		return "", a
	}
	return text, a
}

// BuildMessages assembles the instruction, the last profile.ContextMessages
// history entries and the transcript.
func BuildMessages(profile Profile, transcript string, history []voice.Message) []inference.Message {
	msgs := make([]inference.Message, 0, profile.ContextMessages+2)
	if profile.Instruction != "" {
		msgs = append(msgs, inference.NewSystemMessage(profile.Instruction))
	}
	if n := profile.ContextMessages; n > 0 {
		if len(history) > n {
			history = history[len(history)-n:]
		}
		for _, m := range history {
			if m.IsUser {
				msgs = append(msgs, inference.NewUserMessage(m.Text))
			} else {
				msgs = append(msgs, inference.NewAssistantMessage(m.Text))
			}
		}
	}
	return append(msgs, inference.NewUserMessage(transcript))
}

// Stream generates a reply and reveals it through fn at the configured pace.
// The Result is returned even when the reveal is cancelled.
func (pl *Pipeline) Stream(ctx context.Context, transcript string, history []voice.Message, fn RevealFunc) (Result, error) {
	res, err := pl.Generate(ctx, transcript, history)
	if err != nil {
		return res, err
	}
	if err := Reveal(ctx, res.Text, pl.reveal, fn); err != nil {
		return res, voice.NewError(voice.KindAborted, err)
	}
	return res, nil
}
