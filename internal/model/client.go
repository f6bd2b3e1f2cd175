package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Generation parameters matching the production assistant: low
// temperature for factual lookups, tight output budget.
const (
	defaultModel           = "gemini-2.5-flash"
	defaultTemperature     = float32(0.3)
	defaultTopP            = float32(0.8)
	defaultMaxOutputTokens = int32(512)
	defaultRetryBackoff    = 500 * time.Millisecond
)

// fallbackAnswer is returned when the model yields an empty reply with
// no call requests, so the turn still terminates with an answer.
const fallbackAnswer = "The request was processed, but no answer text was produced. Please try rephrasing."

// Config configures the model client.
type Config struct {
	APIKey string
	Model  string // default gemini-2.5-flash

	// SystemInstruction steers the model toward the maintenance domain
	// and the registered functions.
	SystemInstruction string

	Temperature     float32 // 0 uses the default
	TopP            float32 // 0 uses the default
	MaxOutputTokens int32   // 0 uses the default

	// RateLimiter throttles every attempt. Nil installs the default
	// (10 req/s sustained, burst 30).
	RateLimiter *rate.Limiter

	// Breaker configures the circuit breaker (zero value = defaults).
	Breaker BreakerConfig

	// RetryBackoff is the pause before the single retry.
	RetryBackoff time.Duration

	Logger *slog.Logger
}

// generateFunc matches genai's Models.GenerateContent; swapped out in
// unit tests so no network is involved.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Client adapts the Gemini API to the orchestrator's Converse contract.
// Safe for concurrent use.
type Client struct {
	generate generateFunc
	model    string
	system   string
	temp     float32
	topP     float32
	maxOut   int32
	limiter  *rate.Limiter
	breaker  *breaker
	backoff  time.Duration
	logger   *slog.Logger
}

// NewClient dials the Gemini API and returns a ready client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model client: API key is required")
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	c := newClientWithGenerate(cfg, gc.Models.GenerateContent)
	c.logger.Info("model client initialized", "model", c.model)
	return c, nil
}

// newClientWithGenerate wires a client around an arbitrary generate
// function. Tests use this to script model behavior.
func newClientWithGenerate(cfg Config, generate generateFunc) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	temp := cfg.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}
	topP := cfg.TopP
	if topP == 0 {
		topP = defaultTopP
	}
	maxOut := cfg.MaxOutputTokens
	if maxOut == 0 {
		maxOut = defaultMaxOutputTokens
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	backoff := cfg.RetryBackoff
	if backoff == 0 {
		backoff = defaultRetryBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		generate: generate,
		model:    model,
		system:   cfg.SystemInstruction,
		temp:     temp,
		topP:     topP,
		maxOut:   maxOut,
		limiter:  limiter,
		breaker:  newBreaker(cfg.Breaker),
		backoff:  backoff,
		logger:   logger,
	}
}

// Converse sends the context and available function declarations to the
// model and returns the parsed turn result. Transport failures map to
// ErrModelUnavailable and unparseable replies (including requests for
// undeclared functions) to ErrMalformedReply; each is retried exactly
// once with the same context before surfacing.
func (c *Client) Converse(ctx context.Context, msgs []Message, decls []*genai.FunctionDeclaration) (*TurnResult, error) {
	if err := c.breaker.allow(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	contents := buildContents(msgs)
	config := c.buildConfig(decls)
	allowed := make(map[string]bool, len(decls))
	for _, d := range decls {
		allowed[d.Name] = true
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying model call", "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.generate(ctx, c.model, contents, config)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = classifyTransportError(err)
			continue
		}

		result, err := parseResponse(resp, allowed)
		if err != nil {
			lastErr = err
			continue
		}

		c.breaker.success()
		return result, nil
	}

	c.breaker.failure()
	return nil, lastErr
}

func (c *Client) buildConfig(decls []*genai.FunctionDeclaration) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.temp),
		TopP:            genai.Ptr(c.topP),
		MaxOutputTokens: c.maxOut,
	}
	if c.system != "" {
		config.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}
	if len(decls) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}
	return config
}

// buildContents renders adapter messages to the wire format. In-turn
// call requests and their results become functionCall/functionResponse
// part pairs; everything else is plain text.
func buildContents(msgs []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleModel:
			if len(msg.Calls) > 0 {
				parts := make([]*genai.Part, 0, len(msg.Calls))
				for _, call := range msg.Calls {
					parts = append(parts, genai.NewPartFromFunctionCall(call.Name, call.Args))
				}
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
				continue
			}
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleModel))

		case RoleFunction:
			part := genai.NewPartFromFunctionResponse(msg.Function, msg.Payload)
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))

		default:
			contents = append(contents, genai.NewContentFromText(msg.Text, genai.RoleUser))
		}
	}
	return contents
}

// parseResponse maps a raw reply to the tagged TurnResult variant.
func parseResponse(resp *genai.GenerateContentResponse, allowed map[string]bool) (*TurnResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: no candidates in reply", ErrMalformedReply)
	}

	var calls []CallRequest
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			name := part.FunctionCall.Name
			if !allowed[name] {
				return nil, fmt.Errorf("%w: call to undeclared function %q", ErrMalformedReply, name)
			}
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, CallRequest{Name: name, Args: args})
			continue
		}
		text.WriteString(part.Text)
	}

	if len(calls) > 0 {
		return &TurnResult{Kind: KindCalls, Calls: calls}, nil
	}

	answer := strings.TrimSpace(text.String())
	if answer == "" {
		answer = fallbackAnswer
	}
	return &TurnResult{Kind: KindFinal, Text: answer}, nil
}

// classifyTransportError wraps any generate error as unavailable,
// keeping the provider detail in the chain for logs.
func classifyTransportError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: api error %d: %s", ErrModelUnavailable, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
}
