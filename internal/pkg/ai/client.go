package ai

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/simplify-ai/simplify/internal/pkg/config"
)

const defaultSystemPrompt = "You are an expert editor. Rewrite the text in plain, simple language without losing meaning."

// Generator is the text-transformation collaborator. The billing core only
// cares that it can fail after a unit was consumed.
type Generator interface {
	Simplify(ctx context.Context, systemPrompt, input string, temperature float32) (string, error)
}

// Client wraps the OpenAI-compatible chat completion API.
type Client struct {
	cfg config.OpenAI
	api *openai.Client
}

func NewClient(cfg config.OpenAI) *Client {
	return &Client{cfg: cfg, api: openai.NewClient(cfg.APIKey)}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) Simplify(ctx context.Context, systemPrompt, input string, temperature float32) (string, error) {
	if !c.Configured() {
		return "", errors.New("OPENAI_API_KEY is not configured")
	}
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("AI provider returned no content")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("AI provider returned empty content")
	}
	return output, nil
}
