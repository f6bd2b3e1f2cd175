package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/evscmms/assistant/internal/gateway"
)

// GatewayCall records one gateway invocation.
type GatewayCall struct {
	Function string
	Args     map[string]any
}

// UsageQuery records one MonthlyUsage call.
type UsageQuery struct {
	Months      int64
	SparePartID string
	CenterID    string
}

// FakeGateway returns canned payloads per function name and records
// every invocation, including repeats. It implements both
// gateway.Invoker and gateway.UsageSource. Thread-safe.
type FakeGateway struct {
	mu       sync.Mutex
	payloads map[string]map[string]any
	errs     map[string]error
	handlers map[string]func(ctx context.Context, args map[string]any) (map[string]any, error)
	calls    []GatewayCall

	usage        []gateway.UsageBucket
	usageErr     error
	usageQueries []UsageQuery
}

// NewFakeGateway builds an empty fake; unknown functions fail.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		payloads: make(map[string]map[string]any),
		errs:     make(map[string]error),
		handlers: make(map[string]func(context.Context, map[string]any) (map[string]any, error)),
	}
}

// Respond sets a static payload for a function.
func (g *FakeGateway) Respond(function string, payload map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payloads[function] = payload
}

// Fail makes a function return err.
func (g *FakeGateway) Fail(function string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[function] = err
}

// Handle installs a dynamic handler, taking precedence over Respond
// and Fail.
func (g *FakeGateway) Handle(function string, fn func(ctx context.Context, args map[string]any) (map[string]any, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[function] = fn
}

// Invoke implements gateway.Invoker.
func (g *FakeGateway) Invoke(ctx context.Context, function string, args map[string]any) (map[string]any, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GatewayCall{Function: function, Args: args})
	handler := g.handlers[function]
	err := g.errs[function]
	payload := g.payloads[function]
	g.mu.Unlock()

	if handler != nil {
		return handler(ctx, args)
	}
	if err != nil {
		return nil, err
	}
	if payload != nil {
		return payload, nil
	}
	return nil, fmt.Errorf("fake gateway: no response for %q", function)
}

// RespondUsage sets the monthly usage buckets MonthlyUsage returns.
func (g *FakeGateway) RespondUsage(buckets ...gateway.UsageBucket) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usage = buckets
}

// FailUsage makes MonthlyUsage return err.
func (g *FakeGateway) FailUsage(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usageErr = err
}

// MonthlyUsage implements gateway.UsageSource.
func (g *FakeGateway) MonthlyUsage(ctx context.Context, months int64, sparePartID, centerID string) ([]gateway.UsageBucket, error) {
	g.mu.Lock()
	g.usageQueries = append(g.usageQueries, UsageQuery{Months: months, SparePartID: sparePartID, CenterID: centerID})
	err := g.usageErr
	buckets := make([]gateway.UsageBucket, len(g.usage))
	copy(buckets, g.usage)
	g.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return buckets, nil
}

// UsageQueries returns a copy of all recorded MonthlyUsage calls.
func (g *FakeGateway) UsageQueries() []UsageQuery {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]UsageQuery, len(g.usageQueries))
	copy(out, g.usageQueries)
	return out
}

// CallLog returns a copy of all recorded invocations.
func (g *FakeGateway) CallLog() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GatewayCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount counts invocations of one function.
func (g *FakeGateway) CallCount(function string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Function == function {
			n++
		}
	}
	return n
}
