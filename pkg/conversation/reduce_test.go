package conversation

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/blockchat/pkg/blocks"
)

func turn(role Role, bs ...blocks.Block) *Turn {
	return &Turn{ID: "turn", SessionID: "s", Role: role, Envelope: blocks.NewEnvelope(bs...), CreatedAt: time.Unix(0, 0)}
}

func twoButtons(id string) *blocks.ButtonGroup {
	return &blocks.ButtonGroup{ID: id, Buttons: []blocks.Button{{Label: "Yes", Value: "y"}, {Label: "No", Value: "n"}}}
}

func TestReduce_UserAndAssistantText(t *testing.T) {
	msgs := Reduce([]*Turn{
		turn(RoleUser, &blocks.Text{ID: "u1", Text: "hello"}),
		turn(RoleAssistant, &blocks.Text{ID: "a1", Text: "hi"}, &blocks.Text{ID: "a2", Text: "how can I help?"}),
	})

	assert.Equal(t, []Message{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleAssistant, Text: "hi\n\nhow can I help?"},
	}, msgs)
}

func TestReduce_InteractionResponses(t *testing.T) {
	msgs := Reduce([]*Turn{
		turn(RoleAssistant, &blocks.Text{ID: "a1", Text: "Pick one"}, twoButtons("b1")),
		turn(RoleUser, &blocks.InteractionResponse{ID: "r1", TargetBlockID: "b1", Value: blocks.SingleValue("y")}),
		turn(RoleUser, &blocks.InteractionResponse{ID: "r2", TargetBlockID: "m1", Value: blocks.MultiValue("a", "c")}),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, Message{Role: RoleAssistant, Text: "Pick one"}, msgs[0])
	assert.Equal(t, Message{Role: RoleUser, Text: "Selected: y"}, msgs[1])
	assert.Equal(t, Message{Role: RoleUser, Text: "Selected: a, c"}, msgs[2])
}

func TestReduce_SkipsEmptyTurns(t *testing.T) {
	msgs := Reduce([]*Turn{
		turn(RoleAssistant, twoButtons("b1")),
		turn(RoleAssistant, &blocks.Unknown{ID: "x", Type: "chart", Raw: []byte(`{"id":"x","type":"chart"}`)}),
		turn(RoleAssistant, &blocks.InteractionResponse{ID: "r", TargetBlockID: "b1", Value: blocks.SingleValue("y")}),
		nil,
		turn(RoleUser, &blocks.Text{ID: "u", Text: "next"}),
	})
	assert.Equal(t, []Message{{Role: RoleUser, Text: "next"}}, msgs)
}

func TestReduce_Empty(t *testing.T) {
	assert.Empty(t, Reduce(nil))
}

func TestPendingInteractive(t *testing.T) {
	history := []*Turn{
		turn(RoleUser, &blocks.Text{ID: "u1", Text: "hi"}),
		turn(RoleAssistant, &blocks.Text{ID: "a1", Text: "Pick"}, twoButtons("b1"), &blocks.MultiSelect{
			ID: "m1", Label: "many", Min: 1, Max: 2,
			Options: []blocks.Option{{Label: "A", Value: "a"}, {Label: "B", Value: "b"}},
		}),
	}

	pending := PendingInteractive(history)
	require.Len(t, pending, 2)
	assert.Equal(t, "b1", pending[0].BlockID())
	assert.Equal(t, "m1", pending[1].BlockID())

	answered := append(history, turn(RoleUser, &blocks.InteractionResponse{ID: "r1", TargetBlockID: "b1", Value: blocks.SingleValue("y")}))
	assert.Empty(t, PendingInteractive(answered))

	_, resolved := ResolvedInteractions(answered)["b1"]
	assert.True(t, resolved)
	_, resolved = ResolvedInteractions(answered)["m1"]
	assert.False(t, resolved)

	assert.Empty(t, PendingInteractive(nil))
}

func TestFindInteractive(t *testing.T) {
	history := []*Turn{
		turn(RoleAssistant, &blocks.Text{ID: "a1", Text: "Pick"}, twoButtons("b1")),
		turn(RoleUser, &blocks.Text{ID: "b2", Text: "user text with colliding-looking id"}),
	}

	i, ok := FindInteractive(history, "b1")
	require.True(t, ok)
	assert.Equal(t, []string{"y", "n"}, i.OptionValues())

	_, ok = FindInteractive(history, "a1")
	assert.False(t, ok)
	_, ok = FindInteractive(history, "b2")
	assert.False(t, ok)
	_, ok = FindInteractive(history, "missing")
	assert.False(t, ok)
}

func TestBlockIDs(t *testing.T) {
	ids := BlockIDs([]*Turn{
		turn(RoleUser, &blocks.Text{ID: "u1", Text: "hi"}),
		turn(RoleAssistant, twoButtons("b1")),
	})
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "u1")
	assert.Contains(t, ids, "b1")
}

func TestReduceProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genTurns := gen.SliceOf(gen.Struct(reflectTurnShape, map[string]gopter.Gen{
		"User":  gen.Bool(),
		"Texts": gen.SliceOf(gen.AlphaString()),
	}))

	properties.Property("reduce is deterministic", prop.ForAll(
		func(shapes []turnShape) bool {
			turns := buildTurns(shapes)
			return assert.ObjectsAreEqual(Reduce(turns), Reduce(turns))
		},
		genTurns,
	))

	properties.Property("reduce keeps order and never yields empty messages", prop.ForAll(
		func(shapes []turnShape) bool {
			msgs := Reduce(buildTurns(shapes))
			j := 0
			for _, s := range shapes {
				nonEmpty := false
				for _, txt := range s.Texts {
					if txt != "" {
						nonEmpty = true
					}
				}
				if !nonEmpty {
					continue
				}
				if j >= len(msgs) || msgs[j].Role != s.role() || msgs[j].Text == "" {
					return false
				}
				j++
			}
			return j == len(msgs)
		},
		genTurns,
	))

	properties.TestingRun(t)
}

type turnShape struct {
	User  bool
	Texts []string
}

func (s turnShape) role() Role {
	if s.User {
		return RoleUser
	}
	return RoleAssistant
}

var reflectTurnShape = reflect.TypeOf(turnShape{})

func buildTurns(shapes []turnShape) []*Turn {
	ret := make([]*Turn, 0, len(shapes))
	for i, s := range shapes {
		var bs []blocks.Block
		for j, txt := range s.Texts {
			bs = append(bs, &blocks.Text{ID: fmt.Sprintf("t-%d-%d", i, j), Text: txt})
		}
		ret = append(ret, turn(s.role(), bs...))
	}
	return ret
}
