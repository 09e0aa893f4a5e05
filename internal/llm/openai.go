package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Embedder and ChatModel on the OpenAI API.
type OpenAIClient struct {
	client         *openai.Client
	chatModel      string
	embeddingModel string
}

// NewOpenAIClient creates a client for the OpenAI API. baseURL overrides the
// API endpoint (including the /v1 suffix) when non-empty.
func NewOpenAIClient(apiKey, baseURL, chatModel, embeddingModel string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(cfg),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}
}

// EmbedTexts implements Embedder.
func (c *OpenAIClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings request failed: %w", asStatusError(err))
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || result[d.Index] != nil {
			return nil, fmt.Errorf("unexpected embedding index %d", d.Index)
		}
		result[d.Index] = d.Embedding
	}
	return result, nil
}

// ChatWithMessages implements ChatModel.
func (c *OpenAIClient) ChatWithMessages(ctx context.Context, messages []Message, params ChatParams) (string, error) {
	model := params.Model
	if model == "" {
		model = c.chatModel
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	// The request omits a zero temperature, which the API reads as its default.
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI chat request failed: %w", asStatusError(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// asStatusError converts go-openai HTTP errors to *StatusError so the retry
// policy can classify them. Other errors are returned unchanged.
func asStatusError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
