package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider identifies a supported chat backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderGemini    Provider = "gemini"
)

// Options configures a langchaingo-backed client.
type Options struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	// CallTimeout bounds each Chat call. The plugin core has no retry
	// policy, so a hung provider call would otherwise stall a whole
	// execution layer indefinitely.
	CallTimeout time.Duration
}

// LangchainClient implements Client over langchaingo chat models.
type LangchainClient struct {
	model llms.Model
	opts  Options
}

// NewLangchainClient builds the provider-specific model for opts.
func NewLangchainClient(ctx context.Context, opts Options) (*LangchainClient, error) {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 2 * time.Minute
	}

	var model llms.Model
	var err error
	switch opts.Provider {
	case ProviderOpenAI:
		oo := []openai.Option{
			openai.WithToken(opts.APIKey),
			openai.WithModel(opts.Model),
		}
		if opts.BaseURL != "" {
			oo = append(oo, openai.WithBaseURL(opts.BaseURL))
		}
		model, err = openai.New(oo...)
	case ProviderAnthropic:
		model, err = anthropic.New(
			anthropic.WithToken(opts.APIKey),
			anthropic.WithModel(opts.Model),
		)
	case ProviderOllama:
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(opts.Model),
		)
	case ProviderGemini:
		model, err = googleai.New(ctx, googleai.WithAPIKey(opts.APIKey))
	default:
		return nil, fmt.Errorf("llm: unsupported provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: create %s model: %w", opts.Provider, err)
	}

	return &LangchainClient{model: model, opts: opts}, nil
}

// Chat sends messages to the provider, streaming the response and
// returning the full accumulated text.
func (c *LangchainClient) Chat(ctx context.Context, messages []Message, onChunk StreamFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	var acc strings.Builder
	callOpts := []llms.CallOption{
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			acc.Write(chunk)
			if onChunk != nil {
				onChunk(string(chunk))
			}
			return nil
		}),
	}
	if c.opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(c.opts.Model))
	}
	if c.opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(c.opts.Temperature))
	}
	if c.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.opts.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", fmt.Errorf("llm: %s call: %w", c.opts.Provider, err)
	}

	// Some providers deliver everything through the streaming func, others
	// only in the final response. Prefer accumulated chunks when present.
	if acc.Len() > 0 {
		return acc.String(), nil
	}
	if len(resp.Choices) > 0 {
		return resp.Choices[0].Content, nil
	}
	return "", nil
}

// Model returns the configured model name.
func (c *LangchainClient) Model() string {
	return c.opts.Model
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
