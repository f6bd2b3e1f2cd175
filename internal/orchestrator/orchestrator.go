// Package orchestrator runs conversation turns. A turn takes one user
// message, consults the model, executes whatever function calls it
// requests, feeds results back, and repeats until the model produces a
// final answer or the iteration cap trips.
//
// Turns on the same conversation are serialized: one runs, a bounded
// number wait, the rest are rejected with ErrConversationBusy. Distinct
// conversations proceed in parallel. A turn commits its messages to the
// conversation store only when it completes; failed or cancelled turns
// leave the conversation untouched, though executed calls stay in the
// trace.
//
// Each function call runs under a context derived from the turn's, so
// cancelling a turn also cancels its in-flight calls. Either way their
// results are discarded: a cancelled turn commits nothing.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/conversation"
	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/model"
	"github.com/evscmms/assistant/internal/registry"
)

const (
	// DefaultMaxIterations caps model consultations per turn.
	DefaultMaxIterations = 5
	// DefaultCallTimeout bounds each function execution.
	DefaultCallTimeout = 10 * time.Second
	// DefaultQueueDepth is how many turns may wait behind a running one
	// on the same conversation.
	DefaultQueueDepth = 4
	// DefaultHistoryWindow is how many stored messages replay to the
	// model each turn.
	DefaultHistoryWindow = 20
)

// Converser is the model dependency. *model.Client satisfies it.
type Converser interface {
	Converse(ctx context.Context, msgs []model.Message, decls []*genai.FunctionDeclaration) (*model.TurnResult, error)
}

// Config wires an Orchestrator. Registry, Model, Store, and Trace are
// required.
type Config struct {
	Registry      *registry.Registry
	Model         Converser
	Store         *conversation.Store
	Trace         *calltrace.Log
	Logger        log.Logger
	MaxIterations int
	CallTimeout   time.Duration
	QueueDepth    int
	HistoryWindow int
}

// TurnRequest is one user message addressed to a conversation. An empty
// ConversationID starts a new conversation. Context carries optional
// caller-supplied facts the model should see alongside the message.
type TurnRequest struct {
	ConversationID string
	UserID         string
	Message        string
	Context        map[string]any
}

// CallOutcome reports one executed (or rejected) function call in
// dispatch order.
type CallOutcome struct {
	Function string         `json:"function"`
	Success  bool           `json:"success"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// TurnResponse is the completed turn.
type TurnResponse struct {
	ConversationID string        `json:"conversation_id"`
	Answer         string        `json:"answer"`
	Invoked        []string      `json:"invoked,omitempty"`
	Calls          []CallOutcome `json:"calls,omitempty"`
	CallCount      int           `json:"call_count"`
	CreatedAt      time.Time     `json:"created_at"`
}

// gate serializes turns on one conversation. The slot channel holds the
// running turn's token; waiting counts turns parked behind it.
type gate struct {
	slot    chan struct{}
	waiting int
}

// Orchestrator coordinates model, registry, store, and trace.
type Orchestrator struct {
	registry *registry.Registry
	model    Converser
	store    *conversation.Store
	trace    *calltrace.Log
	logger   log.Logger
	tracer   trace.Tracer

	maxIterations int
	callTimeout   time.Duration
	queueDepth    int
	historyWindow int

	mu    sync.Mutex
	gates map[string]*gate
}

// New validates cfg and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("orchestrator: registry is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("orchestrator: model is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator: conversation store is required")
	}
	if cfg.Trace == nil {
		return nil, fmt.Errorf("orchestrator: call trace is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}

	return &Orchestrator{
		registry:      cfg.Registry,
		model:         cfg.Model,
		store:         cfg.Store,
		trace:         cfg.Trace,
		logger:        cfg.Logger,
		tracer:        otel.Tracer("github.com/evscmms/assistant/internal/orchestrator"),
		maxIterations: cfg.MaxIterations,
		callTimeout:   cfg.CallTimeout,
		queueDepth:    cfg.QueueDepth,
		historyWindow: cfg.HistoryWindow,
	}, nil
}

// Turn runs one conversation turn to completion. It blocks while an
// earlier turn on the same conversation runs, up to the queue depth;
// beyond that it fails fast with ErrConversationBusy. Cancelling ctx
// abandons the turn without committing anything.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.Message == "" {
		return nil, ErrEmptyMessage
	}

	info := o.store.GetOrCreate(req.ConversationID, req.UserID)
	convID := info.ID

	message := req.Message
	if len(req.Context) > 0 {
		message = fmt.Sprintf("%s\n\n(context: %s)", message, compactJSON(req.Context))
	}

	if err := o.acquire(ctx, convID); err != nil {
		return nil, err
	}
	defer o.release(convID)

	ctx, span := o.tracer.Start(ctx, "orchestrator.turn",
		trace.WithAttributes(attribute.String("conversation.id", convID)))
	defer span.End()

	resp, err := o.runTurn(ctx, convID, message)
	if err != nil {
		span.SetAttributes(attribute.String("turn.state", StateFailed.String()))
		o.logger.Warn("turn failed", "conversation_id", convID, "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("turn.state", StateDone.String()),
		attribute.Int("turn.calls", len(resp.Calls)),
	)
	return resp, nil
}

// runTurn is the state machine. The caller holds the conversation gate.
func (o *Orchestrator) runTurn(ctx context.Context, convID, message string) (*TurnResponse, error) {
	msgs := replayHistory(o.store.History(convID, o.historyWindow))
	msgs = append(msgs, model.Message{Role: model.RoleUser, Text: message})

	staged := []conversation.Message{conversation.NewUserMessage(message)}
	decls := o.registry.Declarations()

	var invoked []string
	var outcomes []CallOutcome

	state := StateAwaitingModel
	for iteration := 0; iteration < o.maxIterations; iteration++ {
		o.logger.Debug("turn state", "conversation_id", convID, "state", state, "iteration", iteration)

		res, err := o.model.Converse(ctx, msgs, decls)
		if err != nil {
			// Model failures are turn-fatal; nothing commits.
			return nil, fmt.Errorf("consulting model: %w", err)
		}

		if res.Kind == model.KindFinal {
			staged = append(staged, conversation.NewModelMessage(res.Text))
			if err := o.store.Append(convID, staged...); err != nil {
				return nil, fmt.Errorf("committing turn: %w", err)
			}
			return &TurnResponse{
				ConversationID: convID,
				Answer:         res.Text,
				Invoked:        invoked,
				Calls:          outcomes,
				CallCount:      len(outcomes),
				CreatedAt:      time.Now().UTC(),
			}, nil
		}

		state = StateExecutingCalls
		msgs = append(msgs, model.Message{Role: model.RoleModel, Calls: res.Calls})

		results := o.executeCalls(ctx, convID, res.Calls)
		if err := ctx.Err(); err != nil {
			// Cancelled mid-dispatch: the trace keeps what ran, the
			// conversation stays untouched.
			return nil, err
		}

		for _, r := range results {
			msgs = append(msgs, model.Message{Role: model.RoleFunction, Function: r.call.Name, Payload: r.feedback})
			staged = append(staged, conversation.NewFunctionMessage(r.call.Name, r.feedback))
			invoked = append(invoked, r.call.Name)
			outcomes = append(outcomes, CallOutcome{
				Function: r.call.Name,
				Success:  r.success,
				Result:   r.payload,
				Error:    r.errMsg,
			})
		}
		state = StateAwaitingModel
	}

	return nil, fmt.Errorf("%w (cap %d)", ErrMaxIterations, o.maxIterations)
}

// replayHistory converts stored messages into model messages. Past
// function results become plain text: functionResponse parts must pair
// with a functionCall in the same request, which prior turns can no
// longer provide.
func replayHistory(history []conversation.Message) []model.Message {
	msgs := make([]model.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			msgs = append(msgs, model.Message{Role: model.RoleUser, Text: m.Text})
		case conversation.RoleModel:
			msgs = append(msgs, model.Message{Role: model.RoleModel, Text: m.Text})
		case conversation.RoleFunction:
			msgs = append(msgs, model.Message{
				Role: model.RoleUser,
				Text: fmt.Sprintf("(earlier %s result: %s)", m.Function, compactJSON(m.Payload)),
			})
		}
	}
	return msgs
}

func compactJSON(payload map[string]any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}

// acquire takes the conversation's turn slot, waiting behind a running
// turn if the queue has room.
func (o *Orchestrator) acquire(ctx context.Context, convID string) error {
	o.mu.Lock()
	g, ok := o.gates[convID]
	if !ok {
		if o.gates == nil {
			o.gates = make(map[string]*gate)
		}
		g = &gate{slot: make(chan struct{}, 1)}
		o.gates[convID] = g
	}
	select {
	case g.slot <- struct{}{}:
		o.mu.Unlock()
		return nil
	default:
	}
	if g.waiting >= o.queueDepth {
		o.mu.Unlock()
		return ErrConversationBusy
	}
	g.waiting++
	o.mu.Unlock()

	select {
	case g.slot <- struct{}{}:
		o.mu.Lock()
		g.waiting--
		o.mu.Unlock()
		return nil
	case <-ctx.Done():
		o.mu.Lock()
		g.waiting--
		o.mu.Unlock()
		return ctx.Err()
	}
}

// release frees the slot and drops idle gates so the map tracks only
// live conversations.
func (o *Orchestrator) release(convID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	g, ok := o.gates[convID]
	if !ok {
		return
	}
	<-g.slot
	if g.waiting == 0 {
		delete(o.gates, convID)
	}
}
