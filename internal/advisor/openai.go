package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/pkg/logger"
)

// OpenAIConfig holds configuration for the OpenAI-backed recommender.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Temperature     float32
	MaxTokens       int
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// OpenAIRecommender asks a chat model for a JSON recommendation.
// Calls go through a circuit breaker so a failing endpoint is skipped quickly.
type OpenAIRecommender struct {
	client  *openai.Client
	config  OpenAIConfig
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewOpenAIRecommender creates the recommender. doer may be nil (http.DefaultClient).
func NewOpenAIRecommender(cfg OpenAIConfig, doer openai.HTTPDoer, log *logger.Logger) *OpenAIRecommender {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 600
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if doer != nil {
		clientCfg.HTTPClient = doer
	}

	l := log.WithComponent("advisor.openai")
	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "advisor-openai",
		Interval: time.Minute,
		Timeout:  cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &OpenAIRecommender{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		breaker: breaker,
		logger:  l,
	}
}

// State exposes the breaker state for diagnostics.
func (r *OpenAIRecommender) State() gobreaker.State {
	return r.breaker.State()
}

const recommendSystemPrompt = "You are an S&OP forecasting advisor. Prefer low error and stable models. " +
	"Select the most reliable forecasting model using the provided backtest metrics."

const compareSystemPrompt = "You are a senior S&OP advisor balancing service level, inventory risk, and forecast accuracy. " +
	"Rank candidate forecasting options and explain tradeoffs for demand planners."

// Recommend asks for a single model choice.
func (r *OpenAIRecommender) Recommend(ctx context.Context, req Request) (map[string]any, error) {
	metrics, err := json.Marshal(req.CandidateMetrics)
	if err != nil {
		return nil, err
	}
	task := fmt.Sprintf("Choose one model from [%s] based on backtest metrics. "+
		"Respond ONLY valid JSON with keys: recommended_model (string), confidence (0..1), reason (string). "+
		"Default model if uncertain: %s.\nHistory months: %d.\nData quality flags: %s.\nCandidate metrics: %s",
		supportedList(), req.DefaultModel, req.HistoryMonths, flagList(req.DataQualityFlags), metrics)
	return r.complete(ctx, recommendSystemPrompt, task)
}

// Compare asks for a ranking narrative over sandbox options.
func (r *OpenAIRecommender) Compare(ctx context.Context, req CompareRequest) (map[string]any, error) {
	options, err := json.Marshal(req.Options)
	if err != nil {
		return nil, err
	}
	task := fmt.Sprintf("You are comparing forecast model options. Respond ONLY JSON with keys: "+
		"recommended_model (string), confidence (0..1), reason (string), "+
		"conservative_model (string), aggressive_model (string), option_summaries (object model_id->string). "+
		"Default model if uncertain: %s. History months: %d. Data quality flags: %s. Options: %s",
		req.DefaultModel, req.HistoryMonths, flagList(req.DataQualityFlags), options)
	return r.complete(ctx, compareSystemPrompt, task)
}

func (r *OpenAIRecommender) complete(ctx context.Context, system, task string) (map[string]any, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       r.config.Model,
			Temperature: r.config.Temperature,
			MaxTokens:   r.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: task},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("advisor: empty completion")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}

	content, _ := out.(string)
	r.logger.WithField("chars", len(content)).Debug("Advisor completion received")
	return map[string]any{"content": content}, nil
}

func supportedList() string {
	quoted := make([]string, len(contracts.SupportedModels))
	for i, id := range contracts.SupportedModels {
		quoted[i] = "'" + string(id) + "'"
	}
	return strings.Join(quoted, ",")
}

func flagList(flags []string) string {
	if len(flags) == 0 {
		return "[]"
	}
	return "[" + strings.Join(flags, ", ") + "]"
}
