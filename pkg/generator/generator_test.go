package generator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/blockchat/pkg/blocks"
	"github.com/go-go-golems/blockchat/pkg/conversation"
	"github.com/go-go-golems/blockchat/pkg/parse"
)

func history(texts ...string) []conversation.Message {
	var ret []conversation.Message
	for i, t := range texts {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		ret = append(ret, conversation.Message{Role: role, Text: t})
	}
	return ret
}

func TestEcho(t *testing.T) {
	raw, err := Echo{}.Generate(context.Background(), history("hello"))
	require.NoError(t, err)

	res := parse.NewParser(parse.Options{}).ParseWithResult(raw)
	require.NoError(t, res.Err)
	assert.Equal(t, parse.StageStrict, res.Stage)
	assert.Equal(t, []string{"You said: hello"}, res.Envelope.Texts())
	assert.Empty(t, res.Envelope.Interactive())

	raw, err = Echo{}.Generate(context.Background(), history("hello", "You said: hello", "really?"))
	require.NoError(t, err)
	env := parse.Parse(raw)
	require.Len(t, env.Interactive(), 1)
	assert.Equal(t, []string{"yes", "no"}, env.Interactive()[0].OptionValues())
	assert.Equal(t, "echo-3-answer", env.Interactive()[0].BlockID())
}

func TestEcho_Choose(t *testing.T) {
	raw, err := Echo{}.Generate(context.Background(), history("Choose: red, green, red, ,blue"))
	require.NoError(t, err)

	res := parse.NewParser(parse.Options{}).ParseWithResult(raw)
	require.NoError(t, res.Err)
	require.Len(t, res.Envelope.Interactive(), 1)
	sel, ok := res.Envelope.Interactive()[0].(*blocks.MultiSelect)
	require.True(t, ok)
	assert.Equal(t, "echo-1-choice", sel.ID)
	assert.Equal(t, []string{"red", "green", "blue"}, sel.OptionValues())
	assert.Equal(t, 0, sel.Min)
	assert.Equal(t, 3, sel.Max)
	assert.NoError(t, sel.Accepts(blocks.MultiValue()))

	raw, err = Echo{}.Generate(context.Background(), history("choose: , ,"))
	require.NoError(t, err)
	assert.Empty(t, parse.Parse(raw).Interactive())
}

func TestEcho_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Echo{}.Generate(ctx, history("hello"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLastUserText(t *testing.T) {
	assert.Equal(t, "c", LastUserText(history("a", "b", "c", "d")))
	assert.Equal(t, "", LastUserText(nil))
}

func TestScripted(t *testing.T) {
	g := NewScripted(Script{Steps: []Step{
		{Raw: "not json"},
		{Envelope: map[string]interface{}{"blocks": []interface{}{map[string]interface{}{"id": "t1", "type": "text", "text": "hi"}}}},
		{Error: "model overloaded"},
	}})
	ctx := context.Background()

	out, err := g.Generate(ctx, history("one"))
	require.NoError(t, err)
	assert.Equal(t, "not json", out)

	out, err = g.Generate(ctx, history("one", "x", "two"))
	require.NoError(t, err)
	env, err := blocks.DecodeEnvelope([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, env.Texts())

	_, err = g.Generate(ctx, nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = g.Generate(ctx, nil)
	assert.ErrorIs(t, err, ErrUnavailable)

	calls := g.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "two", calls[1][2].Text)
}

func TestScripted_Loop(t *testing.T) {
	g := NewScripted(Script{Steps: []Step{{Raw: "a"}, {Raw: "b"}}, Loop: true})
	var got []string
	for i := 0; i < 5; i++ {
		out, err := g.Generate(context.Background(), nil)
		require.NoError(t, err)
		got = append(got, out)
	}
	assert.Equal(t, []string{"a", "b", "a", "b", "a"}, got)
}

func TestScripted_DelayHonoursDeadline(t *testing.T) {
	g := NewScripted(Script{Steps: []Step{{Raw: "late", Delay: "5s"}}})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := g.Generate(ctx, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestLoadScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
loop: true
steps:
  - envelope:
      blocks:
        - id: b1
          type: button_group
          label: Continue?
          buttons:
            - {label: "Yes", value: "y"}
            - {label: "No", value: "n"}
  - raw: "plain text answer"
    delay: 10ms
`), 0o644))

	s, err := LoadScript(path)
	require.NoError(t, err)
	require.Len(t, s.Steps, 2)
	assert.True(t, s.Loop)

	out, err := NewScripted(*s).Generate(context.Background(), nil)
	require.NoError(t, err)
	env := parse.Parse(out)
	assert.False(t, env.Metadata.ParseFailed)
	require.Len(t, env.Interactive(), 1)
	assert.Equal(t, "b1", env.Interactive()[0].BlockID())

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("steps:\n  - raw: x\n    delay: soon\n"), 0o644))
	_, err = LoadScript(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("steps: []\n"), 0o644))
	_, err = LoadScript(empty)
	assert.Error(t, err)
}

func TestEnvelopeSchema(t *testing.T) {
	b, err := json.Marshal(EnvelopeSchema())
	require.NoError(t, err)

	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &schema))
	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "blocks")
	assert.Contains(t, props, "metadata")
	assert.Contains(t, string(b), "button_group")
	assert.Contains(t, string(b), "multi_select")

	prompt, err := SystemPrompt()
	require.NoError(t, err)
	assert.Contains(t, prompt, "button_group")
}

func TestOpenAI_Generate(t *testing.T) {
	var gotReq map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"blocks\":[{\"id\":\"t1\",\"type\":\"text\",\"text\":\"hi\"}]}"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`))
	}))
	defer srv.Close()

	g, err := NewOpenAI(OpenAISettings{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), history("hello", "hi there", "again"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, parse.Parse(out).Texts())

	assert.Equal(t, "test-model", gotReq["model"])
	msgs, ok := gotReq["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]interface{})["role"])
	assert.Equal(t, "again", msgs[3].(map[string]interface{})["content"])
	format, ok := gotReq["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAI(OpenAISettings{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = g.Generate(context.Background(), history("hello"))
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = NewOpenAI(OpenAISettings{})
	assert.Error(t, err)
}
