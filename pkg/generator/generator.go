package generator

import (
	"context"
	"errors"

	"github.com/go-go-golems/blockchat/pkg/conversation"
)

// ErrUnavailable is returned by generators that cannot produce a response,
// including timeouts.
var ErrUnavailable = errors.New("generator unavailable")

// Generator produces raw assistant output for a linear history. The output is
// expected to be a block envelope in JSON, but may be anything.
type Generator interface {
	Generate(ctx context.Context, history []conversation.Message) (string, error)
}

// Func adapts a function to the Generator interface.
type Func func(ctx context.Context, history []conversation.Message) (string, error)

func (f Func) Generate(ctx context.Context, history []conversation.Message) (string, error) {
	return f(ctx, history)
}

// LastUserText returns the text of the last user message of history.
func LastUserText(history []conversation.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleUser {
			return history[i].Text
		}
	}
	return ""
}
