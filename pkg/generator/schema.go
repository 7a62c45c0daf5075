package generator

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

type schemaButton struct {
	Label string `json:"label" jsonschema:"required,description=Text shown on the button"`
	Value string `json:"value" jsonschema:"required,description=Value sent back when the button is picked"`
	Style string `json:"style,omitempty" jsonschema:"enum=primary,enum=secondary,enum=danger"`
}

type schemaOption struct {
	Label       string `json:"label" jsonschema:"required"`
	Value       string `json:"value" jsonschema:"required"`
	Description string `json:"description,omitempty"`
}

type schemaBlock struct {
	ID            string         `json:"id" jsonschema:"required,description=Identifier unique within the conversation"`
	Type          string         `json:"type" jsonschema:"required,enum=text,enum=button_group,enum=multi_select"`
	Text          string         `json:"text,omitempty" jsonschema:"description=Markdown content of a text block"`
	Label         string         `json:"label,omitempty" jsonschema:"description=Prompt shown above a button_group or multi_select"`
	Buttons       []schemaButton `json:"buttons,omitempty" jsonschema:"minItems=2,maxItems=5,description=Choices of a button_group"`
	AllowMultiple bool           `json:"allowMultiple,omitempty"`
	Options       []schemaOption `json:"options,omitempty" jsonschema:"minItems=1,description=Choices of a multi_select"`
	Min           int            `json:"min,omitempty" jsonschema:"minimum=0,description=Minimum number of multi_select choices"`
	Max           int            `json:"max,omitempty" jsonschema:"minimum=0,description=Maximum number of multi_select choices"`
}

type schemaMetadata struct {
	Thinking      string   `json:"thinking,omitempty" jsonschema:"description=Private reasoning that is never shown as a block"`
	SuggestedNext []string `json:"suggestedNext,omitempty" jsonschema:"description=Short follow-up prompts the user may send next"`
}

type schemaEnvelope struct {
	Blocks   []schemaBlock  `json:"blocks" jsonschema:"required,minItems=1"`
	Metadata schemaMetadata `json:"metadata,omitempty"`
}

// EnvelopeSchema is the JSON schema of an envelope a model is asked to emit.
func EnvelopeSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := reflector.Reflect(&schemaEnvelope{})
	s.Title = "Turn envelope"
	s.Description = "One assistant turn made of typed blocks"
	return s
}

const systemPromptPreamble = `You are a chat assistant that answers with structured blocks.
Reply with exactly one JSON object and nothing else. The object must follow this JSON schema:`

const systemPromptRules = `Rules:
- use "text" blocks for prose; markdown is allowed inside "text".
- use a "button_group" (2 to 5 buttons) when the user should pick one answer.
- use a "multi_select" with min and max when several answers may be picked.
- never reuse a block id that appeared earlier in the conversation.`

// SystemPrompt instructs a model to answer with envelopes.
func SystemPrompt() (string, error) {
	b, err := json.MarshalIndent(EnvelopeSchema(), "", "  ")
	if err != nil {
		return "", err
	}
	return strings.Join([]string{systemPromptPreamble, string(b), systemPromptRules}, "\n\n"), nil
}
