package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
)

// Echo answers with the last user message. Questions get a yes/no button
// group and "choose: a, b, c" gets an optional multi-select, so the
// interactive paths can be exercised without a model.
type Echo struct{}

var _ Generator = Echo{}

func (Echo) Generate(ctx context.Context, history []conversation.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := LastUserText(history)
	if last == "" {
		last = "(nothing yet)"
	}

	n := len(history)
	env := blocks.NewEnvelope(&blocks.Text{ID: fmt.Sprintf("echo-%d", n), Text: "You said: " + last})
	trimmed := strings.TrimSpace(last)
	switch {
	case strings.HasSuffix(trimmed, "?"):
		group := blocks.NewButtonGroup("Answer",
			blocks.Button{Label: "Yes", Value: "yes", Style: "primary"},
			blocks.Button{Label: "No", Value: "no"},
		)
		group.ID = fmt.Sprintf("echo-%d-answer", n)
		env.Blocks = append(env.Blocks, group)

	case strings.HasPrefix(strings.ToLower(trimmed), choosePrefix):
		if options := chooseOptions(trimmed[len(choosePrefix):]); len(options) > 0 {
			sel := blocks.NewMultiSelect("Choose any", 0, len(options), options...)
			sel.ID = fmt.Sprintf("echo-%d-choice", n)
			env.Blocks = append(env.Blocks, sel)
		}
	}
	env.Metadata.SuggestedNext = []string{"Tell me more"}

	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

const choosePrefix = "choose:"

func chooseOptions(list string) []blocks.Option {
	var ret []blocks.Option
	seen := map[string]struct{}{}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		ret = append(ret, blocks.Option{Label: item, Value: item})
	}
	return ret
}
