package llm

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Provider names accepted by configuration.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderGoogle = "google"
)

const (
	defaultOpenAIURL   = "https://api.openai.com/v1/chat/completions"
	defaultOpenAIModel = "gpt-4o-mini"
	defaultGroqURL     = "https://api.groq.com/openai/v1/chat/completions"
	defaultGroqModel   = "llama3-70b-8192"
	defaultGoogleURL   = "https://generativelanguage.googleapis.com/v1beta/models"
	defaultGoogleModel = "gemini-2.0-flash"

	chatTemperature = 0.3
)

// Options are per-call settings passed to a Provider.
type Options struct {
	Model     string
	MaxTokens int
}

// HTTPRequest is a provider-neutral description of one POST.
type HTTPRequest struct {
	URL    string
	Query  map[string]string
	Header map[string]string
	Body   any
}

// Provider adapts one LLM API shape: how to build the request and where the
// generated text sits in the response.
type Provider interface {
	Name() string
	BuildRequest(prompt string, opts Options) (HTTPRequest, error)
	ParseResponse(raw []byte) (string, error)
}

// ProviderConfig selects and parameterizes a Provider.
type ProviderConfig struct {
	Name    string // explicit choice; empty infers from APIKey
	APIKey  string
	BaseURL string // overrides the provider's default endpoint
	Model   string // overrides the provider's default model
}

// ResolveProvider returns the strategy for cfg. An explicit name wins; otherwise
// the key shape decides (Google keys start with "AIza", Groq keys with "gsk_"),
// defaulting to an OpenAI-compatible endpoint.
func ResolveProvider(cfg ProviderConfig) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name == "" {
		name = inferProvider(cfg.APIKey)
	}
	switch name {
	case ProviderOpenAI:
		return &chatCompletions{
			name:   ProviderOpenAI,
			url:    firstNonEmpty(cfg.BaseURL, defaultOpenAIURL),
			model:  firstNonEmpty(cfg.Model, defaultOpenAIModel),
			apiKey: cfg.APIKey,
		}, nil
	case ProviderGroq:
		return &chatCompletions{
			name:   ProviderGroq,
			url:    firstNonEmpty(cfg.BaseURL, defaultGroqURL),
			model:  firstNonEmpty(cfg.Model, defaultGroqModel),
			apiKey: cfg.APIKey,
		}, nil
	case ProviderGoogle:
		return &generativeLanguage{
			baseURL: strings.TrimRight(firstNonEmpty(cfg.BaseURL, defaultGoogleURL), "/"),
			model:   firstNonEmpty(cfg.Model, defaultGoogleModel),
			apiKey:  cfg.APIKey,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
}

func inferProvider(apiKey string) string {
	switch {
	case strings.HasPrefix(apiKey, "AIza"):
		return ProviderGoogle
	case strings.HasPrefix(apiKey, "gsk_"):
		return ProviderGroq
	default:
		return ProviderOpenAI
	}
}

// chatCompletions speaks the OpenAI chat completions shape (OpenAI, Groq and
// compatible gateways).
type chatCompletions struct {
	name   string
	url    string
	model  string
	apiKey string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
}

func (p *chatCompletions) Name() string { return p.name }

func (p *chatCompletions) BuildRequest(prompt string, opts Options) (HTTPRequest, error) {
	return HTTPRequest{
		URL:    p.url,
		Header: map[string]string{"Authorization": "Bearer " + p.apiKey},
		Body: chatRequest{
			Model:       firstNonEmpty(opts.Model, p.model),
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
			MaxTokens:   opts.MaxTokens,
			Temperature: chatTemperature,
		},
	}, nil
}

// ParseResponse returns choices[0].message.content, falling back to the legacy
// completions choices[0].text. A well-formed body without either yields "".
func (p *chatCompletions) ParseResponse(raw []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse %s response: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	c := resp.Choices[0]
	if c.Message.Content != nil {
		return *c.Message.Content, nil
	}
	if c.Text != nil {
		return *c.Text, nil
	}
	return "", nil
}

// generativeLanguage speaks Google's generateContent API. The key travels as a
// query parameter; no Authorization header is sent.
type generativeLanguage struct {
	baseURL string
	model   string
	apiKey  string
}

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	Contents         []googleContent         `json:"contents"`
	GenerationConfig *googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		Output string `json:"output"`
	} `json:"candidates"`
}

func (p *generativeLanguage) Name() string { return ProviderGoogle }

func (p *generativeLanguage) BuildRequest(prompt string, opts Options) (HTTPRequest, error) {
	model := firstNonEmpty(opts.Model, p.model)
	body := googleRequest{
		Contents: []googleContent{{Parts: []googlePart{{Text: prompt}}}},
	}
	if opts.MaxTokens > 0 {
		body.GenerationConfig = &googleGenerationConfig{MaxOutputTokens: opts.MaxTokens}
	}
	return HTTPRequest{
		URL:   p.baseURL + "/" + url.PathEscape(model) + ":generateContent",
		Query: map[string]string{"key": p.apiKey},
		Body:  body,
	}, nil
}

// ParseResponse returns candidates[0].content.parts[0].text, falling back to
// the older candidates[0].output field.
func (p *generativeLanguage) ParseResponse(raw []byte) (string, error) {
	var resp googleResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("parse google response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", nil
	}
	c := resp.Candidates[0]
	if len(c.Content.Parts) > 0 && c.Content.Parts[0].Text != "" {
		return c.Content.Parts[0].Text, nil
	}
	return c.Output, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
