package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsage/docsage/internal/domain"
)

type fakeAPI struct {
	embedResp openai.EmbeddingResponse
	embedErr  error
	chatResp  openai.ChatCompletionResponse
	chatErr   error

	// block makes calls wait for the context instead of returning, to
	// exercise client-side timeouts.
	block bool

	embedReq         openai.EmbeddingRequest
	chatReq          openai.ChatCompletionRequest
	embedHasDeadline bool
	chatHasDeadline  bool
}

func (f *fakeAPI) CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if r, ok := req.(openai.EmbeddingRequest); ok {
		f.embedReq = r
	}
	_, f.embedHasDeadline = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return openai.EmbeddingResponse{}, ctx.Err()
	}
	return f.embedResp, f.embedErr
}

func (f *fakeAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chatReq = req
	_, f.chatHasDeadline = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return openai.ChatCompletionResponse{}, ctx.Err()
	}
	return f.chatResp, f.chatErr
}

func newTestClient(api API, dims int) *Client {
	c := NewClientWithConfig(Config{APIKey: "test", EmbeddingDimensions: dims})
	c.api = api
	return c
}

func makeVector(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbedTexts_Success(t *testing.T) {
	api := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Index: 1, Embedding: makeVector(4, 0.2)},
				{Index: 0, Embedding: makeVector(4, 0.1)},
			},
		},
	}
	client := newTestClient(api, 4)

	vectors, err := client.EmbedTexts(context.Background(), []string{"first", "second"})
	require.NoError(t, err)

	require.Len(t, vectors, 2)
	assert.Equal(t, makeVector(4, 0.1), vectors[0])
	assert.Equal(t, makeVector(4, 0.2), vectors[1])
	assert.Equal(t, 4, api.embedReq.Dimensions)
}

func TestEmbedTexts_EmptyInput(t *testing.T) {
	client := newTestClient(&fakeAPI{}, 4)

	_, err := client.EmbedTexts(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedTexts_APIError(t *testing.T) {
	api := &fakeAPI{embedErr: errors.New("connection refused")}
	client := newTestClient(api, 4)

	_, err := client.EmbedTexts(context.Background(), []string{"text"})
	require.Error(t, err)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeEmbeddingUnavailable, de.Code)
	assert.True(t, domain.IsRetryable(err))
}

func TestEmbedTexts_WrongDimensions(t *testing.T) {
	api := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: makeVector(3, 0.1)}},
		},
	}
	client := newTestClient(api, 4)

	_, err := client.EmbedTexts(context.Background(), []string{"text"})
	require.Error(t, err)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeEmbeddingUnavailable, de.Code)
}

func TestEmbedTexts_MissingVector(t *testing.T) {
	api := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: makeVector(4, 0.1)}},
		},
	}
	client := newTestClient(api, 4)

	_, err := client.EmbedTexts(context.Background(), []string{"first", "second"})
	assert.Error(t, err)
}

func TestComplete_Success(t *testing.T) {
	api := &fakeAPI{
		chatResp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "the answer"}},
			},
		},
	}
	client := newTestClient(api, 4)

	answer, err := client.Complete(context.Background(), "a prompt", 0.1, 256)
	require.NoError(t, err)
	assert.Equal(t, "the answer", answer)
	assert.Equal(t, float32(0.1), api.chatReq.Temperature)
	assert.Equal(t, 256, api.chatReq.MaxTokens)
}

func TestComplete_APIError(t *testing.T) {
	api := &fakeAPI{chatErr: errors.New("timeout")}
	client := newTestClient(api, 4)

	_, err := client.Complete(context.Background(), "a prompt", 0.1, 256)
	require.Error(t, err)

	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeLLMUnavailable, de.Code)
	assert.True(t, domain.IsRetryable(err))
}

func TestClient_Timeouts_BoundCalls(t *testing.T) {
	api := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: makeVector(4, 0.1)}},
		},
		chatResp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "ok"}},
			},
		},
	}
	c := NewClientWithConfig(Config{
		APIKey:              "test",
		EmbeddingDimensions: 4,
		EmbeddingTimeout:    time.Minute,
		CompletionTimeout:   time.Minute,
	})
	c.api = api

	_, err := c.EmbedTexts(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.True(t, api.embedHasDeadline)

	_, err = c.Complete(context.Background(), "a prompt", 0.1, 256)
	require.NoError(t, err)
	assert.True(t, api.chatHasDeadline)
}

func TestClient_Timeouts_ExpireAsRetryable(t *testing.T) {
	c := NewClientWithConfig(Config{
		APIKey:              "test",
		EmbeddingDimensions: 4,
		EmbeddingTimeout:    time.Millisecond,
		CompletionTimeout:   time.Millisecond,
	})
	c.api = &fakeAPI{block: true}

	_, err := c.EmbedTexts(context.Background(), []string{"text"})
	require.Error(t, err)
	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeEmbeddingUnavailable, de.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = c.Complete(context.Background(), "a prompt", 0.1, 256)
	require.Error(t, err)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, domain.ErrCodeLLMUnavailable, de.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_ZeroTimeouts_LeaveContextUnbounded(t *testing.T) {
	api := &fakeAPI{
		embedResp: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: makeVector(4, 0.1)}},
		},
	}
	client := newTestClient(api, 4)

	_, err := client.EmbedTexts(context.Background(), []string{"text"})
	require.NoError(t, err)
	assert.False(t, api.embedHasDeadline)
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test"})
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())
	assert.Equal(t, openai.EmbeddingModel(DefaultEmbeddingModel), client.embeddingModel)
	assert.Equal(t, DefaultCompletionModel, client.completionModel)
}
