package response

import (
	"context"
	"time"
	"unicode"
	"unicode/utf8"
)

// SplitWords splits text into reveal steps, one per word. Each step carries
// the whitespace that follows its word, and leading whitespace rides on the
// first step, so the steps concatenate back to text exactly.
func SplitWords(text string) []string {
	var (
		steps []string
		start int
		i     int
	)
	for i < len(text) {
		// skip to the end of the current run of whitespace
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		if i == len(text) {
			break
		}
		// word
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		// trailing whitespace
		for i < len(text) {
			r, size := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}
		steps = append(steps, text[start:i])
		start = i
	}
	return steps
}

// RevealFunc receives each step and the text revealed so far.
type RevealFunc func(step, revealed string)

// Reveal emits text one word at a time, waiting interval between steps.
// It returns ctx.Err() if cancelled before the last step.
func Reveal(ctx context.Context, text string, interval time.Duration, fn RevealFunc) error {
	steps := SplitWords(text)
	if len(steps) == 0 {
		return nil
	}

	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	revealed := ""
	for i, step := range steps {
		if i > 0 && ticker != nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		revealed += step
		fn(step, revealed)
	}
	return nil
}
