package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

type OpenAICompatibleClient struct {
	client *openai.Client
	cfg    ChatConfig
}

func NewOpenAICompatibleClient(cfg ChatConfig) *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		client: newClient(cfg.BaseURL, cfg.APIKey),
		cfg:    cfg,
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, false))
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamComplete streams the completion, calling onChunk for every non-empty
// delta, and returns the full answer. An onChunk error aborts the stream.
func (c *OpenAICompatibleClient) StreamComplete(
	ctx context.Context,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.request(messages, true))
	if err != nil {
		return "", fmt.Errorf("llm stream request failed: %w", err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read llm stream failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		text := resp.Choices[0].Delta.Content
		if text == "" {
			continue
		}

		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func (c *OpenAICompatibleClient) request(messages []ChatMessage, stream bool) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      stream,
	}
}
