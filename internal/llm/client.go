// Package llm talks to an OpenAI-compatible API (Groq by default) for query
// enhancement, explanations and embeddings.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hyperjump/shelf/internal/metrics"
	"github.com/hyperjump/shelf/internal/models"
	"github.com/hyperjump/shelf/pkg/utils"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the chat model used for enhancement and explanations.
	DefaultModel = "llama-3.1-8b-instant"
	// DefaultAPIKeyEnv names the environment variable holding the API key.
	DefaultAPIKeyEnv = "GROQ_API_KEY"

	defaultEnhanceTemperature = 0.3
	defaultExplainTemperature = 0.7
)

const (
	enhancePrompt = "Enhance the book search query to improve recommendation results. " +
		"Add relevant themes, genres, and literary elements. Reply with the enhanced query only."
	explainPrompt = "Generate a natural explanation for why this book matches the user's query. " +
		"Focus on specific elements that align with their interests. Keep it to two or three sentences."
)

// Config holds the client settings.
type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	EmbeddingModel     string // empty disables Embed
	Dimensions         int
	EnhanceTemperature float32
	ExplainTemperature float32
	Provider           string // label for errors and metrics
	Logger             *zap.Logger
	Metrics            *metrics.Metrics
}

// Client implements query enhancement, explanation and embedding over one API connection.
type Client struct {
	client             *openai.Client
	model              string
	embeddingModel     openai.EmbeddingModel
	dimensions         int
	enhanceTemperature float32
	explainTemperature float32
	provider           string
	logger             *zap.Logger
	metrics            *metrics.Metrics
}

// New creates a client. An empty API key is rejected.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is empty: %w", models.ErrValidation)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EnhanceTemperature == 0 {
		cfg.EnhanceTemperature = defaultEnhanceTemperature
	}
	if cfg.ExplainTemperature == 0 {
		cfg.ExplainTemperature = defaultExplainTemperature
	}
	if cfg.Provider == "" {
		cfg.Provider = "groq"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL

	return &Client{
		client:             openai.NewClientWithConfig(clientCfg),
		model:              cfg.Model,
		embeddingModel:     openai.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:         cfg.Dimensions,
		enhanceTemperature: cfg.EnhanceTemperature,
		explainTemperature: cfg.ExplainTemperature,
		provider:           cfg.Provider,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
	}, nil
}

// Enhance rewrites query with extra themes and genres.
func (c *Client) Enhance(ctx context.Context, query string) (string, error) {
	return c.chat(ctx, "enhance", enhancePrompt, query, c.enhanceTemperature)
}

// Explain says why the summarized book matches query.
func (c *Client) Explain(ctx context.Context, summary models.BookSummary, query string) (string, error) {
	user := "Query: " + query + "\nBook: " + summary.String()
	return c.chat(ctx, "explain", explainPrompt, user, c.explainTemperature)
}

// Embed returns the unit-length embedding of text using the embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, c.providerError("embed", errors.New("no embedding model configured"))
	}
	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          c.embeddingModel,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err == nil && len(resp.Data) == 0 {
		err = errors.New("empty embedding response")
	}
	c.metrics.ObserveProvider(c.provider, "embed", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, c.providerError("embed", parseAPIError(err))
	}

	v := resp.Data[0].Embedding
	if c.dimensions > 0 && len(v) != c.dimensions {
		return nil, c.providerError("embed", &models.DimensionError{Expected: c.dimensions, Got: len(v)})
	}
	utils.NormalizeL2(v)
	return v, nil
}

// Dimensions returns the configured embedding dimension.
func (c *Client) Dimensions() int { return c.dimensions }

func (c *Client) chat(ctx context.Context, op, system, user string, temperature float32) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	var content string
	if err == nil {
		if len(resp.Choices) == 0 {
			err = errors.New("empty completion response")
		} else {
			content = strings.TrimSpace(resp.Choices[0].Message.Content)
			if content == "" {
				err = errors.New("blank completion")
			}
		}
	}
	c.metrics.ObserveProvider(c.provider, op, time.Since(start).Seconds(), err)
	if err != nil {
		return "", c.providerError(op, parseAPIError(err))
	}
	c.logger.Debug("Completion received",
		zap.String("op", op),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return content, nil
}

func (c *Client) providerError(stage string, err error) error {
	return &models.ProviderError{Provider: c.provider, Stage: stage, Err: err}
}

// parseAPIError extracts a readable message from an API error response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("api error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("api error %d: %w", reqErr.HTTPStatusCode, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("api error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return err
}

// extractDetail reads the "detail" field some compatible servers put in error bodies.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
