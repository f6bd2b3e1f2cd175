// Package gateway defines the data-access boundary the orchestrator
// consumes. Implementations execute a named function with validated
// arguments against the maintenance backend and return structured data.
//
// Calls must be safe to run concurrently and tolerant of repetition:
// the orchestrator re-executes duplicate requests rather than
// deduplicating them.
package gateway

import "context"

// Registered function names. These are the capabilities the model can
// invoke; the registry carries their schemas and descriptions.
const (
	FuncGetSpareParts   = "get_spare_parts"
	FuncGetInventory    = "get_inventory"
	FuncGetUsageHistory = "get_usage_history"
	FuncForecastDemand  = "forecast_demand"
)

// Invoker executes one named function. The synchronous-per-call
// contract: Invoke blocks until the payload or error is ready, honoring
// ctx for cancellation and timeouts.
type Invoker interface {
	Invoke(ctx context.Context, function string, args map[string]any) (map[string]any, error)
}

// UsageBucket is one calendar month of aggregated part consumption.
type UsageBucket struct {
	Month string // "2006-01"
	Used  int64
}

// UsageSource feeds the forecast engine. Unlike the chat-facing usage
// history, which caps rows to keep model context small, implementations
// aggregate the full lookback window by month with no row cap. Empty
// filter values mean no filter.
type UsageSource interface {
	MonthlyUsage(ctx context.Context, months int64, sparePartID, centerID string) ([]UsageBucket, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, function string, args map[string]any) (map[string]any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, function string, args map[string]any) (map[string]any, error) {
	return f(ctx, function, args)
}

// OptString extracts an optional string argument, treating absent,
// empty, and the literal "None" the model sometimes emits as unset.
func OptString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" || s == "None" {
		return "", false
	}
	return s, true
}

// OptInt extracts an optional integer argument (post-validation the
// registry normalizes integers to int64).
func OptInt(args map[string]any, key string) (int64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
