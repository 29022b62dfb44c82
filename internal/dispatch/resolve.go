package dispatch

import (
	"context"
	"strings"
)

// MaxRetries caps regeneration after a duplicate: one initial call plus up
// to MaxRetries more per destination per cycle.
const MaxRetries = 3

// Outcome is the result of resolving a message for one destination.
// Sent=false means every attempt collided with recent history.
type Outcome struct {
	Sent     bool
	Text     string
	Attempts int
	// Last is the final generated text when Sent is false.
	Last string
}

// GenerateFunc produces one candidate message.
type GenerateFunc func(ctx context.Context) (string, error)

// ResolveMessage calls generate until it returns a text not present in
// recent, retrying at most maxRetries times after the
// first call. Texts are compared trimmed but returned as generated. Empty
// texts count as collisions. A generator error aborts
// resolution and is returned as is.
func ResolveMessage(ctx context.Context, recent []string, generate GenerateFunc, maxRetries int) (Outcome, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	seen := make(map[string]struct{}, len(recent))
	for _, m := range recent {
		seen[strings.TrimSpace(m)] = struct{}{}
	}

	var out Outcome
	for out.Attempts <= maxRetries {
		out.Attempts++
		text, err := generate(ctx)
		if err != nil {
			return out, err
		}
		key := strings.TrimSpace(text)
		if _, dup := seen[key]; !dup && key != "" {
			out.Sent = true
			out.Text = text
			return out, nil
		}
		out.Last = key
	}
	return out, nil
}
