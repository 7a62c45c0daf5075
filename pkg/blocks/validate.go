package blocks

import (
	"errors"
	"fmt"
)

const (
	MinButtons = 2
	MaxButtons = 5
)

var (
	ErrValidation       = errors.New("validation error")
	ErrInvalidSelection = errors.New("invalid selection")
)

// ValidationError reports a block or envelope that violates the schema rules.
type ValidationError struct {
	BlockID string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ErrValidation.Error()
	}
	switch {
	case e.BlockID != "" && e.Field != "":
		return fmt.Sprintf("%s: block %q (%s): %s", ErrValidation, e.BlockID, e.Field, e.Reason)
	case e.BlockID != "":
		return fmt.Sprintf("%s: block %q: %s", ErrValidation, e.BlockID, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("%s (%s): %s", ErrValidation, e.Field, e.Reason)
	default:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SelectionError reports an interaction value that does not fit its target block.
type SelectionError struct {
	BlockID string
	Reason  string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("%s for block %q: %s", ErrInvalidSelection, e.BlockID, e.Reason)
}

func (e *SelectionError) Is(target error) bool { return target == ErrInvalidSelection }

// Interactive is implemented by blocks that take exactly one user response.
type Interactive interface {
	Block
	// OptionValues lists the values the user may pick from.
	OptionValues() []string
	// Accepts checks whether v is a valid response to the block.
	Accepts(v InteractionValue) error
}

var (
	_ Interactive = (*ButtonGroup)(nil)
	_ Interactive = (*MultiSelect)(nil)
)

func (b *ButtonGroup) OptionValues() []string {
	ret := make([]string, 0, len(b.Buttons))
	for _, btn := range b.Buttons {
		ret = append(ret, btn.Value)
	}
	return ret
}

func (b *ButtonGroup) Accepts(v InteractionValue) error {
	n := len(v.Values)
	if n == 0 {
		return &SelectionError{BlockID: b.ID, Reason: "no value selected"}
	}
	if !b.AllowMultiple && n != 1 {
		return &SelectionError{BlockID: b.ID, Reason: fmt.Sprintf("exactly one value expected, got %d", n)}
	}
	return checkMembership(b.ID, b.OptionValues(), v.Values)
}

func (b *MultiSelect) OptionValues() []string {
	ret := make([]string, 0, len(b.Options))
	for _, o := range b.Options {
		ret = append(ret, o.Value)
	}
	return ret
}

func (b *MultiSelect) Accepts(v InteractionValue) error {
	n := len(v.Values)
	if n < b.Min || n > b.Max {
		return &SelectionError{BlockID: b.ID, Reason: fmt.Sprintf("between %d and %d values expected, got %d", b.Min, b.Max, n)}
	}
	return checkMembership(b.ID, b.OptionValues(), v.Values)
}

func checkMembership(id string, allowed []string, picked []string) error {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	seen := make(map[string]struct{}, len(picked))
	for _, p := range picked {
		if _, ok := set[p]; !ok {
			return &SelectionError{BlockID: id, Reason: fmt.Sprintf("%q is not one of the offered values", p)}
		}
		if _, dup := seen[p]; dup {
			return &SelectionError{BlockID: id, Reason: fmt.Sprintf("%q selected twice", p)}
		}
		seen[p] = struct{}{}
	}
	return nil
}

// ValidateBlock checks a single block against the schema rules.
func ValidateBlock(b Block) error {
	if b == nil {
		return &ValidationError{Reason: "nil block"}
	}
	id := b.BlockID()
	if id == "" {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("%s block has an empty id", b.Kind())}
	}
	if b.Kind() == "" {
		return &ValidationError{BlockID: id, Field: "type", Reason: "empty block type"}
	}

	switch v := b.(type) {
	case *ButtonGroup:
		if n := len(v.Buttons); n < MinButtons || n > MaxButtons {
			return &ValidationError{BlockID: id, Field: "buttons", Reason: fmt.Sprintf("expected %d to %d buttons, got %d", MinButtons, MaxButtons, n)}
		}
		for i, btn := range v.Buttons {
			if btn.Label == "" || btn.Value == "" {
				return &ValidationError{BlockID: id, Field: fmt.Sprintf("buttons[%d]", i), Reason: "label and value are required"}
			}
		}
	case *MultiSelect:
		n := len(v.Options)
		if n < 1 {
			return &ValidationError{BlockID: id, Field: "options", Reason: "at least one option is required"}
		}
		if v.Min < 0 || v.Min > v.Max || v.Max > n {
			return &ValidationError{BlockID: id, Field: "min/max", Reason: fmt.Sprintf("need 0 <= min <= max <= %d, got min=%d max=%d", n, v.Min, v.Max)}
		}
		for i, o := range v.Options {
			if o.Label == "" || o.Value == "" {
				return &ValidationError{BlockID: id, Field: fmt.Sprintf("options[%d]", i), Reason: "label and value are required"}
			}
		}
	case *InteractionResponse:
		if v.TargetBlockID == "" {
			return &ValidationError{BlockID: id, Field: "targetBlockId", Reason: "target block id is required"}
		}
	}
	return nil
}

// ValidateGenerated checks an envelope produced by a generator: at least one
// block, valid blocks with unique ids, and no interaction responses.
func ValidateGenerated(e *Envelope) error {
	if e == nil || len(e.Blocks) == 0 {
		return &ValidationError{Field: "blocks", Reason: "envelope has no blocks"}
	}
	seen := make(map[string]struct{}, len(e.Blocks))
	for _, b := range e.Blocks {
		if err := ValidateBlock(b); err != nil {
			return err
		}
		if b.Kind() == KindInteractionResponse {
			return &ValidationError{BlockID: b.BlockID(), Field: "type", Reason: "interaction responses cannot be generated"}
		}
		if _, dup := seen[b.BlockID()]; dup {
			return &ValidationError{BlockID: b.BlockID(), Field: "id", Reason: "duplicate block id"}
		}
		seen[b.BlockID()] = struct{}{}
	}
	return nil
}
