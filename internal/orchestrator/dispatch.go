package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/model"
)

// callResult is one finished dispatch. feedback is always non-nil and
// is what the model sees: the payload on success, an error object on
// failure.
type callResult struct {
	call     model.CallRequest
	success  bool
	payload  map[string]any
	errMsg   string
	feedback map[string]any
	latency  time.Duration
}

// executeCalls runs one round of requested calls concurrently, each
// under its own timeout, and joins the results in request order.
// Duplicate requests execute independently; the registry handlers own
// any caching. Failures are absorbed into the results so the model can
// react; only ctx cancellation aborts the round (checked by the
// caller).
func (o *Orchestrator) executeCalls(ctx context.Context, convID string, calls []model.CallRequest) []callResult {
	results := make([]callResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.CallRequest) {
			defer wg.Done()
			results[i] = o.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	// The trace records in request order regardless of completion
	// order, keeping replays deterministic.
	for _, r := range results {
		o.trace.Record(convID, calltrace.Entry{
			Function: r.call.Name,
			Args:     r.call.Args,
			Success:  r.success,
			Payload:  r.payload,
			Error:    r.errMsg,
			Latency:  r.latency,
		})
	}
	return results
}

func (o *Orchestrator) executeOne(ctx context.Context, call model.CallRequest) callResult {
	start := time.Now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.call",
		trace.WithAttributes(attribute.String("function.name", call.Name)))
	defer span.End()

	validated, err := o.registry.Validate(call.Name, call.Args)
	if err != nil {
		// Bad arguments never reach the handler; the full violation
		// list goes back to the model so it can correct the call.
		span.SetAttributes(attribute.Bool("function.rejected", true))
		return failedCall(call, err.Error(), time.Since(start))
	}

	spec, err := o.registry.Resolve(call.Name)
	if err != nil {
		return failedCall(call, err.Error(), time.Since(start))
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	payload, err := spec.Handler(callCtx, validated)
	latency := time.Since(start)
	if err != nil {
		o.logger.Warn("function call failed", "function", call.Name, "error", err, "latency", latency)
		return failedCall(call, err.Error(), latency)
	}

	return callResult{
		call:     call,
		success:  true,
		payload:  payload,
		feedback: payload,
		latency:  latency,
	}
}

func failedCall(call model.CallRequest, errMsg string, latency time.Duration) callResult {
	return callResult{
		call:     call,
		errMsg:   errMsg,
		feedback: map[string]any{"error": errMsg},
		latency:  latency,
	}
}
