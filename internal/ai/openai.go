package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// openAIConfig also serves OpenAI compatible gateways such as OpenRouter
// through base_url.
type openAIConfig struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	Temperature *float64 `json:"temperature"`
	EmbedDim    int      `json:"embed_dim"`
}

type openAIProvider struct {
	cfg openAIConfig

	mu        sync.Mutex
	chat      *openai.LLM
	embedders map[string]*embeddings.EmbedderImpl
}

func (p *openAIProvider) Name() string {
	return "openai"
}

func (p *openAIProvider) options(extra ...openai.Option) []openai.Option {
	opts := []openai.Option{openai.WithToken(p.cfg.APIKey)}
	if p.cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(p.cfg.BaseURL))
	}
	return append(opts, extra...)
}

func (p *openAIProvider) chatClient() (*openai.LLM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chat != nil {
		return p.chat, nil
	}
	client, err := openai.New(p.options()...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	p.chat = client
	return client, nil
}

func (p *openAIProvider) embedder(model string) (*embeddings.EmbedderImpl, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.embedders[model]; ok {
		return e, nil
	}
	extra := []openai.Option{openai.WithEmbeddingModel(model)}
	if p.cfg.EmbedDim > 0 {
		extra = append(extra, openai.WithEmbeddingDimensions(p.cfg.EmbedDim))
	}
	client, err := openai.New(p.options(extra...)...)
	if err != nil {
		return nil, fmt.Errorf("create openai embedding client: %w", err)
	}
	e, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create openai embedder: %w", err)
	}
	p.embedders[model] = e
	return e, nil
}

func (p *openAIProvider) Generate(ctx context.Context, model string, msgs []Message) (string, error) {
	if p.cfg.APIKey == "" {
		return "", ErrUnavailable
	}
	client, err := p.chatClient()
	if err != nil {
		return "", err
	}
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(role, m.Content))
	}
	opts := []llms.CallOption{llms.WithModel(model)}
	if p.cfg.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*p.cfg.Temperature))
	}
	resp, err := client.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// Embed ignores taskType; OpenAI embeddings are symmetric.
func (p *openAIProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	if p.cfg.APIKey == "" {
		return nil, ErrUnavailable
	}
	e, err := p.embedder(model)
	if err != nil {
		return nil, err
	}
	vec, err := e.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("no embedding values returned")
	}
	return vec, nil
}

func createOpenAIFactory(args interface{}) (IProvider, error) {
	cfg := openAIConfig{}
	if err := decodeConfig(args, &cfg); err != nil {
		return nil, err
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &openAIProvider{cfg: cfg, embedders: make(map[string]*embeddings.EmbedderImpl)}, nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
