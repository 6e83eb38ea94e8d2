package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/travel-insights-service/internal/advisory"
	"github.com/kjstillabower/travel-insights-service/internal/llm"
	"github.com/kjstillabower/travel-insights-service/internal/models"
	"github.com/kjstillabower/travel-insights-service/internal/observability"
	"github.com/kjstillabower/travel-insights-service/internal/prompt"
	"github.com/kjstillabower/travel-insights-service/internal/validation"
)

const (
	defaultInsightsMaxTokens = 700
	defaultCity              = "Unknown city"
	noPreference             = "no strong preference"

	providerFallbackSummary   = "AI insights unavailable; see advisories for guidance."
	validationFallbackSummary = "AI returned unexpected output; see advisories for evidence-based guidance."

	tierSuccess            = "success"
	tierProviderFallback   = "provider_fallback"
	tierValidationFallback = "validation_fallback"
)

// LLMClient is the completion call the orchestrator depends on.
type LLMClient interface {
	Call(ctx context.Context, req llm.Request) (llm.Response, error)
}

// InsightsConfig configures an InsightsService.
type InsightsConfig struct {
	MaxTokens int
	Logger    *zap.Logger
}

// InsightsService turns caller-supplied weather into travel insights. LLM
// failures never surface as errors: a provider failure yields deterministic
// advisories only, and invalid model output is salvaged where possible.
type InsightsService struct {
	llm       LLMClient
	maxTokens int
	logger    *zap.Logger
}

// NewInsightsService returns an InsightsService calling client.
func NewInsightsService(client LLMClient, cfg InsightsConfig) *InsightsService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultInsightsMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &InsightsService{llm: client, maxTokens: cfg.MaxTokens, logger: cfg.Logger}
}

// Generate returns insights for req. The only error is ErrMissingFields.
// The result's advisories always start with the computed advisories.
func (s *InsightsService) Generate(ctx context.Context, req models.InsightsRequest) (models.Insights, error) {
	if req.Current == nil || req.Forecast == nil {
		return nil, ErrMissingFields
	}
	city := strings.TrimSpace(req.City)
	if city == "" {
		city = defaultCity
	}
	logger := observability.LoggerFrom(ctx, s.logger).With(zap.String("city", city))

	var (
		wg       sync.WaitGroup
		text     string
		computed []string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		text = prompt.BuildInsightsPrompt(prompt.Input{City: city, Current: *req.Current, Forecast: req.Forecast})
	}()
	go func() {
		defer wg.Done()
		computed = advisory.Compute(req.Current, req.Forecast)
	}()
	wg.Wait()

	resp, err := s.llm.Call(ctx, llm.Request{Prompt: text, MaxTokens: s.maxTokens})
	if err != nil {
		logger.Warn("llm call failed, falling back to computed advisories", zap.Error(err))
		observability.InsightsTierTotal.WithLabelValues(tierProviderFallback).Inc()
		return models.Insights{
			"summary":          providerFallbackSummary,
			"best_time_of_day": noPreference,
			"recommendations":  []string{},
			"advisories":       advisory.Dedupe(computed),
		}, nil
	}
	logger.Debug("llm raw output", zap.String("provider", resp.Provider), zap.String("text", resp.Text))

	parsed, decodeErr := llm.DecodeJSON(resp.Text)
	result := validation.ValidateInsights(parsed)
	obj, _ := parsed.(map[string]any)

	if !result.OK {
		logger.Warn("llm returned invalid insights",
			zap.Strings("errors", result.Errors),
			zap.NamedError("decode_error", decodeErr))
		observability.InsightsTierTotal.WithLabelValues(tierValidationFallback).Inc()
		best := noPreference
		if v, ok := obj["best_time_of_day"].(string); ok && v != "" {
			best = v
		}
		return models.Insights{
			"summary":          validationFallbackSummary,
			"best_time_of_day": best,
			"recommendations":  stringElems(obj["recommendations"]),
			"advisories":       advisory.Dedupe(computed, stringElems(obj["advisories"])),
		}, nil
	}

	observability.InsightsTierTotal.WithLabelValues(tierSuccess).Inc()
	out := models.Insights(obj)
	out["advisories"] = advisory.Dedupe(computed, stringElems(obj["advisories"]))
	return out, nil
}

// stringElems returns the string elements of a decoded JSON array, never nil.
func stringElems(v any) []string {
	out := []string{}
	items, _ := v.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
