package testutil

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/evscmms/assistant/internal/model"
)

// ModelStep is one scripted reply: either a turn result or an error.
type ModelStep struct {
	Result *model.TurnResult
	Err    error
}

// ScriptedModel replays a fixed sequence of replies, recording the
// message history it was handed at each step. It satisfies the
// orchestrator's model interface. Thread-safe.
type ScriptedModel struct {
	mu    sync.Mutex
	steps []ModelStep
	next  int
	Seen  [][]model.Message
}

// NewScriptedModel builds a model that answers with the given steps in
// order. Running past the script is a test bug and returns an error.
func NewScriptedModel(steps ...ModelStep) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// FinalStep is shorthand for a step that ends the turn with text.
func FinalStep(text string) ModelStep {
	return ModelStep{Result: &model.TurnResult{Kind: model.KindFinal, Text: text}}
}

// CallsStep is shorthand for a step that requests function calls.
func CallsStep(calls ...model.CallRequest) ModelStep {
	return ModelStep{Result: &model.TurnResult{Kind: model.KindCalls, Calls: calls}}
}

// ErrStep is shorthand for a step that fails.
func ErrStep(err error) ModelStep {
	return ModelStep{Err: err}
}

// Converse returns the next scripted step.
func (s *ScriptedModel) Converse(ctx context.Context, msgs []model.Message, decls []*genai.FunctionDeclaration) (*model.TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]model.Message, len(msgs))
	copy(snapshot, msgs)
	s.Seen = append(s.Seen, snapshot)

	if s.next >= len(s.steps) {
		return nil, fmt.Errorf("scripted model exhausted after %d steps", len(s.steps))
	}
	step := s.steps[s.next]
	s.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Result, nil
}

// Calls reports how many times Converse ran.
func (s *ScriptedModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Seen)
}
