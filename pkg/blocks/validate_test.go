package blocks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buttons(n int) []Button {
	ret := make([]Button, n)
	for i := range ret {
		v := string(rune('a' + i))
		ret[i] = Button{Label: "L" + v, Value: v}
	}
	return ret
}

func TestValidateGenerated(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr bool
	}{
		{name: "nil", env: nil, wantErr: true},
		{name: "empty", env: NewEnvelope(), wantErr: true},
		{name: "text", env: NewEnvelope(&Text{ID: "t", Text: "x"})},
		{name: "missing id", env: NewEnvelope(&Text{Text: "x"}), wantErr: true},
		{name: "nil block", env: &Envelope{Blocks: Blocks{nil}}, wantErr: true},
		{name: "duplicate ids", env: NewEnvelope(&Text{ID: "t", Text: "x"}, &Text{ID: "t", Text: "y"}), wantErr: true},
		{name: "one button", env: NewEnvelope(&ButtonGroup{ID: "b", Buttons: buttons(1)}), wantErr: true},
		{name: "two buttons", env: NewEnvelope(&ButtonGroup{ID: "b", Buttons: buttons(2)})},
		{name: "five buttons", env: NewEnvelope(&ButtonGroup{ID: "b", Buttons: buttons(5)})},
		{name: "six buttons", env: NewEnvelope(&ButtonGroup{ID: "b", Buttons: buttons(6)}), wantErr: true},
		{name: "button without value", env: NewEnvelope(&ButtonGroup{ID: "b", Buttons: []Button{{Label: "a"}, {Label: "b", Value: "b"}}}), wantErr: true},
		{name: "multi select ok", env: NewEnvelope(&MultiSelect{ID: "m", Label: "x", Options: []Option{{Label: "a", Value: "a"}}, Min: 0, Max: 1})},
		{name: "multi select no options", env: NewEnvelope(&MultiSelect{ID: "m", Label: "x"}), wantErr: true},
		{name: "multi select max too large", env: NewEnvelope(&MultiSelect{ID: "m", Options: []Option{{Label: "a", Value: "a"}}, Min: 1, Max: 2}), wantErr: true},
		{name: "multi select min above max", env: NewEnvelope(&MultiSelect{ID: "m", Options: []Option{{Label: "a", Value: "a"}, {Label: "b", Value: "b"}}, Min: 2, Max: 1}), wantErr: true},
		{name: "multi select negative min", env: NewEnvelope(&MultiSelect{ID: "m", Options: []Option{{Label: "a", Value: "a"}}, Min: -1, Max: 1}), wantErr: true},
		{name: "generated interaction response", env: NewEnvelope(&InteractionResponse{ID: "r", TargetBlockID: "b", Value: SingleValue("y")}), wantErr: true},
		{name: "unknown kind", env: NewEnvelope(&Unknown{ID: "u", Type: "carousel"})},
		{name: "unknown without type", env: NewEnvelope(&Unknown{ID: "u"}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGenerated(tt.env)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestButtonGroupAccepts(t *testing.T) {
	single := &ButtonGroup{ID: "b", Buttons: buttons(3)}
	require.NoError(t, single.Accepts(SingleValue("a")))
	require.NoError(t, single.Accepts(MultiValue("b")))
	assert.ErrorIs(t, single.Accepts(MultiValue("a", "b")), ErrInvalidSelection)
	assert.ErrorIs(t, single.Accepts(SingleValue("z")), ErrInvalidSelection)
	assert.ErrorIs(t, single.Accepts(InteractionValue{}), ErrInvalidSelection)

	multi := &ButtonGroup{ID: "b", Buttons: buttons(3), AllowMultiple: true}
	require.NoError(t, multi.Accepts(MultiValue("a", "c")))
	assert.ErrorIs(t, multi.Accepts(MultiValue("a", "a")), ErrInvalidSelection)
}

func TestMultiSelectAccepts(t *testing.T) {
	ms := &MultiSelect{ID: "m", Options: []Option{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}, {Label: "C", Value: "c"}}, Min: 1, Max: 2}
	require.NoError(t, ms.Accepts(SingleValue("a")))
	require.NoError(t, ms.Accepts(MultiValue("a", "b")))
	assert.ErrorIs(t, ms.Accepts(MultiValue()), ErrInvalidSelection)
	assert.ErrorIs(t, ms.Accepts(MultiValue("a", "b", "c")), ErrInvalidSelection)
	assert.ErrorIs(t, ms.Accepts(MultiValue("a", "x")), ErrInvalidSelection)

	optional := &MultiSelect{ID: "m", Options: ms.Options, Min: 0, Max: 3}
	require.NoError(t, optional.Accepts(MultiValue()))
}
