// Package transcript folds a listening attempt's events into a single outcome.
//
// The Aggregator finalizes eagerly: the first final segment of at least
// MinLength runes decides the attempt, the stream is asked to stop, and
// anything arriving afterwards is drained and ignored. Without such a
// segment the finals are joined when the stream ends. Short or placeholder
// transcripts count as no speech.
package transcript

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/teslashibe/go-companion/pkg/recognition"
	"github.com/teslashibe/go-companion/pkg/voice"
)

// Stream is the part of a recognition stream the aggregator drives.
type Stream interface {
	Events() <-chan recognition.Event
	Stop()
	Abort()
}

// Outcome is the single result of one listening attempt.
// Exactly one of Finalized or Cause is set.
type Outcome struct {
	Finalized bool
	Text      string
	Cause     *voice.Error

	// Eager is true when a final segment decided before the stream ended.
	Eager bool
}

// Hooks receive live feedback while the attempt runs. All are optional
// and are called from the goroutine running Run.
type Hooks struct {
	Interim func(text string)
	Speech  func()
	Level   func(level uint8)
}

// Aggregator applies the length and placeholder gates.
type Aggregator struct {
	minLength    int
	placeholders map[string]bool
	logger       *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMinLength sets the shortest accepted transcript in runes. Default: 3.
func WithMinLength(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minLength = n
		}
	}
}

// WithPlaceholders sets transcripts that count as no speech.
func WithPlaceholders(values ...string) Option {
	return func(a *Aggregator) {
		a.placeholders = make(map[string]bool, len(values))
		for _, v := range values {
			a.placeholders[normalize(v)] = true
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// FromConfig applies the aggregation settings of a voice.Config.
func FromConfig(cfg voice.Config) Option {
	return func(a *Aggregator) {
		WithMinLength(cfg.MinTranscriptLength)(a)
		WithPlaceholders(cfg.Placeholders...)(a)
	}
}

// New creates an Aggregator.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		minLength: 3,
		logger:    slog.Default(),
	}
	WithPlaceholders(voice.DefaultConfig().Placeholders...)(a)
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "transcript.aggregator")
	return a
}

// Run consumes s until its event channel closes and returns the outcome.
// Cancelling ctx aborts the stream; Run still drains it before returning.
func (a *Aggregator) Run(ctx context.Context, s Stream, hooks Hooks) Outcome {
	var (
		finals   []string
		firstErr *voice.Error
		decided  *Outcome
		aborted  bool
	)

	done := ctx.Done()
	events := s.Events()
	for events != nil {
		select {
		case <-done:
			done = nil
			aborted = true
			s.Abort()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if decided != nil || aborted {
				continue
			}
			switch ev.Type {
			case recognition.EventSpeech:
				if hooks.Speech != nil {
					hooks.Speech()
				}
			case recognition.EventLevel:
				if hooks.Level != nil {
					hooks.Level(ev.Level)
				}
			case recognition.EventResult:
				text := strings.TrimSpace(ev.Transcript.Text)
				if !ev.Transcript.IsFinal {
					if hooks.Interim != nil && text != "" {
						hooks.Interim(text)
					}
					continue
				}
				if text == "" {
					continue
				}
				finals = append(finals, text)
				if a.accept(text) {
					decided = &Outcome{Finalized: true, Text: strings.Join(finals, " "), Eager: true}
					a.logger.Debug("finalized eagerly", "chars", len(decided.Text))
					s.Stop()
				}
			case recognition.EventError:
				if firstErr == nil {
					firstErr = ev.Err
				}
			}
		}
	}

	switch {
	case aborted:
		return Outcome{Cause: voice.NewError(voice.KindAborted, ctx.Err())}
	case decided != nil:
		return *decided
	}

	joined := strings.Join(finals, " ")
	if len(finals) > 0 && a.accept(joined) {
		return Outcome{Finalized: true, Text: joined}
	}
	if len(finals) > 0 {
		a.logger.Debug("degenerate transcript treated as no speech", "text", joined)
		return Outcome{Cause: voice.NewError(voice.KindNoSpeech, nil)}
	}
	if firstErr != nil {
		return Outcome{Cause: firstErr}
	}
	return Outcome{Cause: voice.NewError(voice.KindNoSpeech, nil)}
}

// accept reports whether text passes the length and placeholder gates.
func (a *Aggregator) accept(text string) bool {
	n := normalize(text)
	if a.placeholders[n] {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) >= a.minLength
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
