package conversation

import (
	"strings"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

const (
	// SelectedPrefix introduces the synthesized text of an interaction response.
	SelectedPrefix = "Selected: "
	// PartSeparator joins the text pieces of a single turn.
	PartSeparator = "\n\n"
)

// Reduce converts persisted turns into the linear history fed to a generator.
//
// User turns contribute their text blocks and "Selected: <value>" for each
// interaction response. Assistant turns contribute their text blocks only:
// interactive blocks are not replayed, the user's following selection carries
// the choice. Turns without any text are skipped. The order of turns is kept
// as given.
func Reduce(turns []*Turn) []Message {
	ret := make([]Message, 0, len(turns))
	for _, t := range turns {
		if t == nil || t.Envelope == nil {
			continue
		}
		var parts []string
		for _, b := range t.Envelope.Blocks {
			switch v := b.(type) {
			case *blocks.Text:
				if v.Text != "" {
					parts = append(parts, v.Text)
				}
			case *blocks.InteractionResponse:
				if t.Role == RoleUser {
					parts = append(parts, SelectedPrefix+v.Value.String())
				}
			}
		}
		if len(parts) == 0 {
			continue
		}
		ret = append(ret, Message{Role: t.Role, Text: strings.Join(parts, PartSeparator)})
	}
	return ret
}

// ResolvedInteractions returns the ids of interactive blocks that already have a response.
func ResolvedInteractions(turns []*Turn) map[string]struct{} {
	ret := map[string]struct{}{}
	for _, t := range turns {
		if t == nil || t.Envelope == nil || t.Role != RoleUser {
			continue
		}
		for _, b := range t.Envelope.Blocks {
			if r, ok := b.(*blocks.InteractionResponse); ok {
				ret[r.TargetBlockID] = struct{}{}
			}
		}
	}
	return ret
}

// FindInteractive looks up an interactive block offered by an assistant turn.
func FindInteractive(turns []*Turn, blockID string) (blocks.Interactive, bool) {
	for _, t := range turns {
		if t == nil || t.Role != RoleAssistant {
			continue
		}
		if b, ok := t.Envelope.Find(blockID); ok {
			if i, ok := b.(blocks.Interactive); ok {
				return i, true
			}
			return nil, false
		}
	}
	return nil, false
}

// PendingInteractive returns the unresolved interactive blocks of the latest
// turn, if that turn is an assistant turn. Any later user turn supersedes
// pending interactions, so only the tail of the history matters.
func PendingInteractive(turns []*Turn) []blocks.Interactive {
	if len(turns) == 0 {
		return nil
	}
	last := turns[len(turns)-1]
	if last == nil || last.Role != RoleAssistant {
		return nil
	}
	resolved := ResolvedInteractions(turns)
	var ret []blocks.Interactive
	for _, i := range last.Envelope.Interactive() {
		if _, done := resolved[i.BlockID()]; !done {
			ret = append(ret, i)
		}
	}
	return ret
}

// BlockIDs returns every block id used in the given turns.
func BlockIDs(turns []*Turn) map[string]struct{} {
	ret := map[string]struct{}{}
	for _, t := range turns {
		if t == nil || t.Envelope == nil {
			continue
		}
		for _, b := range t.Envelope.Blocks {
			if b != nil {
				ret[b.BlockID()] = struct{}{}
			}
		}
	}
	return ret
}
