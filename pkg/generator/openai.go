package generator

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/blockchat/pkg/conversation"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAISettings struct {
	APIKey  string
	BaseURL string
	Model   string
	// SystemPrompt overrides the default block envelope instructions.
	SystemPrompt string
}

// OpenAI asks a chat completion model for an envelope in JSON mode.
type OpenAI struct {
	client       *go_openai.Client
	model        string
	systemPrompt string
}

var _ Generator = (*OpenAI)(nil)

func NewOpenAI(s OpenAISettings) (*OpenAI, error) {
	if s.APIKey == "" {
		return nil, errors.New("openai generator: no API key")
	}
	config := go_openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}
	model := s.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	prompt := s.SystemPrompt
	if prompt == "" {
		var err error
		prompt, err = SystemPrompt()
		if err != nil {
			return nil, errors.Wrap(err, "openai generator: system prompt")
		}
	}
	return &OpenAI{
		client:       go_openai.NewClientWithConfig(config),
		model:        model,
		systemPrompt: prompt,
	}, nil
}

func (o *OpenAI) makeRequest(history []conversation.Message) go_openai.ChatCompletionRequest {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleSystem,
		Content: o.systemPrompt,
	})
	for _, m := range history {
		role := go_openai.ChatMessageRoleUser
		if m.Role == conversation.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return go_openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
		ResponseFormat: &go_openai.ChatCompletionResponseFormat{
			Type: go_openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

func (o *OpenAI) Generate(ctx context.Context, history []conversation.Message) (string, error) {
	req := o.makeRequest(history)
	log.Debug().Str("model", o.model).Int("messages", len(req.Messages)).Msg("openai chat completion")

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", errors.Wrap(ErrUnavailable, err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", errors.Wrap(ErrUnavailable, "openai returned no choices")
	}
	log.Debug().
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Str("finish_reason", string(resp.Choices[0].FinishReason)).
		Msg("openai chat completion done")
	return resp.Choices[0].Message.Content, nil
}
