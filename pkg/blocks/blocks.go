package blocks

import (
	"github.com/google/uuid"
)

// Kind is the wire discriminator of a Block (the "type" field).
type Kind string

const (
	KindText                Kind = "text"
	KindButtonGroup         Kind = "button_group"
	KindMultiSelect         Kind = "multi_select"
	KindInteractionResponse Kind = "interaction_response"
)

// IsKnown reports whether the kind belongs to the vocabulary this package understands.
// Unknown kinds are still valid blocks, they are carried as *Unknown.
func (k Kind) IsKnown() bool {
	switch k {
	case KindText, KindButtonGroup, KindMultiSelect, KindInteractionResponse:
		return true
	default:
		return false
	}
}

// IsInteractive reports whether blocks of this kind suspend free-text input until resolved.
func (k Kind) IsInteractive() bool {
	return k == KindButtonGroup || k == KindMultiSelect
}

// Block is a single typed unit of conversational content.
//
// Concrete implementations are *Text, *ButtonGroup, *MultiSelect,
// *InteractionResponse and *Unknown, which preserves kinds this version does
// not know about.
type Block interface {
	BlockID() string
	Kind() Kind
}

// Text is plain (markdown) text content.
type Text struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (b *Text) BlockID() string { return b.ID }
func (b *Text) Kind() Kind      { return KindText }

// Button is one choice offered by a ButtonGroup.
type Button struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Style string `json:"style,omitempty"`
}

// ButtonGroup offers a small set of buttons, by default only one may be picked.
type ButtonGroup struct {
	ID            string   `json:"id"`
	Label         string   `json:"label,omitempty"`
	Buttons       []Button `json:"buttons"`
	AllowMultiple bool     `json:"allowMultiple,omitempty"`
}

func (b *ButtonGroup) BlockID() string { return b.ID }
func (b *ButtonGroup) Kind() Kind      { return KindButtonGroup }

// Option is one entry of a MultiSelect.
type Option struct {
	Label       string `json:"label"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// MultiSelect asks the user to pick between Min and Max options.
type MultiSelect struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Options []Option `json:"options"`
	Min     int      `json:"min"`
	Max     int      `json:"max"`
}

func (b *MultiSelect) BlockID() string { return b.ID }
func (b *MultiSelect) Kind() Kind      { return KindMultiSelect }

// InteractionResponse records the user's answer to an interactive block.
// It only ever appears in persisted user turns.
type InteractionResponse struct {
	ID            string           `json:"id"`
	TargetBlockID string           `json:"targetBlockId"`
	Value         InteractionValue `json:"value"`
}

func (b *InteractionResponse) BlockID() string { return b.ID }
func (b *InteractionResponse) Kind() Kind      { return KindInteractionResponse }

// Unknown carries a block whose kind is not part of the known vocabulary.
// Raw holds the original JSON object and is re-emitted verbatim.
type Unknown struct {
	ID   string
	Type Kind
	Raw  []byte
}

func (b *Unknown) BlockID() string { return b.ID }
func (b *Unknown) Kind() Kind      { return b.Type }

var (
	_ Block = (*Text)(nil)
	_ Block = (*ButtonGroup)(nil)
	_ Block = (*MultiSelect)(nil)
	_ Block = (*InteractionResponse)(nil)
	_ Block = (*Unknown)(nil)
)

// NewText returns a text block with a fresh id.
func NewText(text string) *Text {
	return &Text{ID: uuid.NewString(), Text: text}
}

// NewButtonGroup returns a single-choice button group with a fresh id.
func NewButtonGroup(label string, buttons ...Button) *ButtonGroup {
	return &ButtonGroup{ID: uuid.NewString(), Label: label, Buttons: buttons}
}

// NewMultiSelect returns a multi-select with a fresh id.
func NewMultiSelect(label string, min, max int, options ...Option) *MultiSelect {
	return &MultiSelect{ID: uuid.NewString(), Label: label, Options: options, Min: min, Max: max}
}

// NewInteractionResponse returns the user-side record of resolving targetBlockID.
func NewInteractionResponse(targetBlockID string, value InteractionValue) *InteractionResponse {
	return &InteractionResponse{ID: uuid.NewString(), TargetBlockID: targetBlockID, Value: value}
}
