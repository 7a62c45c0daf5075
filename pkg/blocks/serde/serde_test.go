package serde

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

func TestYAMLRoundTripEnvelope(t *testing.T) {
	env := &blocks.Envelope{
		Blocks: blocks.Blocks{
			&blocks.Text{ID: "t1", Text: "Pick a plan"},
			&blocks.ButtonGroup{ID: "b1", Buttons: []blocks.Button{{Label: "Basic", Value: "basic"}, {Label: "Pro", Value: "pro"}}},
			&blocks.Unknown{ID: "u1", Type: "chart", Raw: []byte(`{"id":"u1","type":"chart","series":[1,2]}`)},
		},
		Metadata: blocks.Metadata{SuggestedNext: []string{"compare plans"}},
	}

	data, err := ToYAML(env)
	require.NoError(t, err)
	assert.Contains(t, string(data), "type: button_group")

	back, err := EnvelopeFromYAML(data)
	require.NoError(t, err)
	require.Len(t, back.Blocks, 3)
	assert.Equal(t, env.Blocks[0], back.Blocks[0])
	assert.Equal(t, env.Blocks[1], back.Blocks[1])
	assert.Equal(t, blocks.Kind("chart"), back.Blocks[2].Kind())
	assert.Equal(t, []string{"compare plans"}, back.Metadata.SuggestedNext)
}

func TestSaveAndLoadEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	env := blocks.NewEnvelope(&blocks.Text{ID: "t1", Text: "hello"})

	require.NoError(t, SaveYAML(path, env))
	back, err := LoadEnvelopeYAML(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, back.Texts())
}
