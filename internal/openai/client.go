package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docsage/docsage/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = string(openai.SmallEmbedding3)
	// DefaultEmbeddingDimensions is the embedding dimension requested from the model
	DefaultEmbeddingDimensions = 384
	// DefaultCompletionModel is the chat model used for answer generation
	DefaultCompletionModel = openai.GPT4oMini
)

var (
	// ErrEmptyInput is returned when no texts are given to embed
	ErrEmptyInput = errors.New("no texts to embed")
	// ErrNoAPIKey is returned when the OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// API defines the raw OpenAI surface the client depends on, narrowed for
// testing.
type API interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds OpenAI client configuration. Zero timeouts leave calls
// bounded only by the caller's context.
type Config struct {
	APIKey              string
	EmbeddingModel      string
	EmbeddingDimensions int
	CompletionModel     string
	EmbeddingTimeout    time.Duration
	CompletionTimeout   time.Duration
}

// Client wraps the OpenAI API as both the embedding function and the text
// completion service. Failures are mapped onto the domain error taxonomy so
// callers can treat them as retryable service-unavailable conditions.
type Client struct {
	api               API
	embeddingModel    openai.EmbeddingModel
	dimensions        int
	completionModel   string
	embeddingTimeout  time.Duration
	completionTimeout time.Duration
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	c := &Client{
		api:               openai.NewClient(cfg.APIKey),
		embeddingModel:    openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:        cfg.EmbeddingDimensions,
		completionModel:   cfg.CompletionModel,
		embeddingTimeout:  cfg.EmbeddingTimeout,
		completionTimeout: cfg.CompletionTimeout,
	}
	if c.embeddingModel == "" {
		c.embeddingModel = openai.EmbeddingModel(DefaultEmbeddingModel)
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	if c.completionModel == "" {
		c.completionModel = DefaultCompletionModel
	}
	return c
}

// NewClientFromEnv creates a new OpenAI client using the OPENAI_API_KEY
// environment variable.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Dimensions returns the embedding dimension the client enforces.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedTexts generates one embedding per input text, preserving order.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	if c.embeddingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.embeddingTimeout)
		defer cancel()
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      c.embeddingModel,
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbeddingUnavailable, "embedding request failed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable,
			fmt.Sprintf("embedding service returned %d vectors for %d inputs", len(resp.Data), len(texts)))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable, "embedding service returned an out-of-range index")
		}
		if len(item.Embedding) != c.dimensions {
			return nil, domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable,
				fmt.Sprintf("embedding has wrong dimensions: got %d, want %d", len(item.Embedding), c.dimensions))
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, domain.NewDomainError(domain.ErrCodeEmbeddingUnavailable,
				fmt.Sprintf("embedding service returned no vector for input %d", i))
		}
	}

	return vectors, nil
}

// Complete requests a chat completion for the prompt at the given sampling
// temperature.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	if c.completionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.completionTimeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.completionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeLLMUnavailable, "completion request failed", err)
	}

	if len(resp.Choices) == 0 {
		return "", domain.NewDomainError(domain.ErrCodeLLMUnavailable, "completion response has no choices")
	}

	return resp.Choices[0].Message.Content, nil
}
