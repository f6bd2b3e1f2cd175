package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/evscmms/assistant/internal/log"
)

func testConfig() Config {
	return Config{
		APIKey:       "unused",
		RetryBackoff: time.Millisecond,
		RateLimiter:  rate.NewLimiter(rate.Inf, 1),
		Logger:       log.NewNop(),
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func callResponse(calls ...*genai.FunctionCall) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, len(calls))
	for i, c := range calls {
		parts[i] = &genai.Part{FunctionCall: c}
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: parts,
			},
		}},
	}
}

func inventoryDecls() []*genai.FunctionDeclaration {
	return []*genai.FunctionDeclaration{
		{Name: "get_inventory"},
		{Name: "get_spare_parts"},
	}
}

func TestConverse_FinalAnswer(t *testing.T) {
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("Center C-01 holds 42 brake pads."), nil
	})

	result, err := c.Converse(context.Background(), []Message{{Role: RoleUser, Text: "stock?"}}, inventoryDecls())
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if result.Kind != KindFinal {
		t.Fatalf("Kind = %v, want KindFinal", result.Kind)
	}
	if result.Text != "Center C-01 holds 42 brake pads." {
		t.Errorf("Text = %q", result.Text)
	}
}

func TestConverse_RequestedCallsKeepOrder(t *testing.T) {
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return callResponse(
			&genai.FunctionCall{Name: "get_inventory", Args: map[string]any{"center_id": "C-01"}},
			&genai.FunctionCall{Name: "get_spare_parts", Args: nil},
		), nil
	})

	result, err := c.Converse(context.Background(), nil, inventoryDecls())
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if result.Kind != KindCalls {
		t.Fatalf("Kind = %v, want KindCalls", result.Kind)
	}
	if len(result.Calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(result.Calls))
	}
	if result.Calls[0].Name != "get_inventory" || result.Calls[1].Name != "get_spare_parts" {
		t.Errorf("call order = %s, %s", result.Calls[0].Name, result.Calls[1].Name)
	}
	if result.Calls[1].Args == nil {
		t.Error("nil args should be normalized to an empty map")
	}
}

func TestConverse_UndeclaredFunctionIsMalformed(t *testing.T) {
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return callResponse(&genai.FunctionCall{Name: "drop_tables"}), nil
	})

	_, err := c.Converse(context.Background(), nil, inventoryDecls())
	if !errors.Is(err, ErrMalformedReply) {
		t.Fatalf("expected ErrMalformedReply, got %v", err)
	}
}

func TestConverse_RetriesExactlyOnce(t *testing.T) {
	attempts := 0
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		return nil, errors.New("connection reset")
	})

	_, err := c.Converse(context.Background(), nil, inventoryDecls())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (one retry)", attempts)
	}
}

func TestConverse_RetryRecovers(t *testing.T) {
	attempts := 0
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("503 unavailable")
		}
		return textResponse("recovered"), nil
	})

	result, err := c.Converse(context.Background(), nil, inventoryDecls())
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("Text = %q", result.Text)
	}
}

func TestConverse_EmptyReplyFallsBack(t *testing.T) {
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return textResponse("   "), nil
	})

	result, err := c.Converse(context.Background(), nil, inventoryDecls())
	if err != nil {
		t.Fatalf("Converse: %v", err)
	}
	if result.Kind != KindFinal || result.Text != fallbackAnswer {
		t.Errorf("expected fallback answer, got %+v", result)
	}
}

func TestConverse_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := testConfig()
	cfg.Breaker = BreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Cooldown: time.Hour}
	c := newClientWithGenerate(cfg, func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return nil, errors.New("boom")
	})

	for i := 0; i < 2; i++ {
		if _, err := c.Converse(context.Background(), nil, nil); !errors.Is(err, ErrModelUnavailable) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}

	_, err := c.Converse(context.Background(), nil, nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestConverse_ContextCancellationNotRetried(t *testing.T) {
	attempts := 0
	ctx, cancel := context.WithCancel(context.Background())
	c := newClientWithGenerate(testConfig(), func(_ context.Context, _ string, _ []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		attempts++
		cancel()
		return nil, context.Canceled
	})

	_, err := c.Converse(ctx, nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestBuildContents_PairsCallsWithResults(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Text: "inventory for C-01?"},
		{Role: RoleModel, Calls: []CallRequest{{Name: "get_inventory", Args: map[string]any{"center_id": "C-01"}}}},
		{Role: RoleFunction, Function: "get_inventory", Payload: map[string]any{"count": 3}},
	}

	contents := buildContents(msgs)
	if len(contents) != 3 {
		t.Fatalf("len = %d, want 3", len(contents))
	}
	if contents[1].Parts[0].FunctionCall == nil {
		t.Error("model call request not rendered as functionCall part")
	}
	if contents[2].Parts[0].FunctionResponse == nil {
		t.Error("function result not rendered as functionResponse part")
	}
}
