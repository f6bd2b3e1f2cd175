// Package functions declares the model-callable capabilities of the
// maintenance assistant and binds them to their executors.
package functions

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/evscmms/assistant/internal/forecast"
	"github.com/evscmms/assistant/internal/gateway"
	"github.com/evscmms/assistant/internal/registry"
)

// Argument bounds. History looks back up to two years; forecasts
// project at most one year ahead.
const (
	MaxHistoryMonths  = 24
	MaxForecastMonths = 12
)

// NewRegistry builds the registry with all four functions registered:
// three data lookups served by the gateway and the demand forecast
// served by the engine.
func NewRegistry(invoker gateway.Invoker, engine *forecast.Engine) (*registry.Registry, error) {
	r := registry.New()

	gatewayHandler := func(name string) registry.Handler {
		return func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return invoker.Invoke(ctx, name, args)
		}
	}

	specs := []registry.FunctionSpec{
		{
			Name:        gateway.FuncGetSpareParts,
			Description: "Search the spare parts catalog. Matches part names fuzzily, so partial names and close misspellings still find parts. Returns part details including price, manufacturer, type, and compatible vehicle model.",
			Parameters: objectSchema(nil, map[string]*jsonschema.Schema{
				"part_name": {
					Type:        "string",
					Description: "Full or partial part name to search for. Omit to list parts.",
				},
			}),
			Handler: gatewayHandler(gateway.FuncGetSpareParts),
		},
		{
			Name:        gateway.FuncGetInventory,
			Description: "Get current inventory levels across service centers, lowest stock first. Each row reports quantity on hand, the minimum stock level, and whether the item is below minimum.",
			Parameters: objectSchema(nil, map[string]*jsonschema.Schema{
				"center_id": {
					Type:        "string",
					Description: "Restrict to one service center. Omit for all centers.",
				},
			}),
			Handler: gatewayHandler(gateway.FuncGetInventory),
		},
		{
			Name:        gateway.FuncGetUsageHistory,
			Description: "Get spare part usage records from the recent past, newest first. Useful for questions about consumption patterns and maintenance activity.",
			Parameters: objectSchema([]string{"months"}, map[string]*jsonschema.Schema{
				"months": {
					Type:        "integer",
					Description: fmt.Sprintf("How many months back to look, between 1 and %d.", MaxHistoryMonths),
					Minimum:     ptr(1.0),
					Maximum:     ptr(float64(MaxHistoryMonths)),
				},
				"spare_part_id": {
					Type:        "string",
					Description: "Restrict to one spare part.",
				},
				"center_id": {
					Type:        "string",
					Description: "Restrict to one service center.",
				},
			}),
			Handler: gatewayHandler(gateway.FuncGetUsageHistory),
		},
		{
			Name:        gateway.FuncForecastDemand,
			Description: "Forecast future spare part demand from historical usage. Returns projected quantities and a short analysis of the trend.",
			Parameters: objectSchema([]string{"months"}, map[string]*jsonschema.Schema{
				"months": {
					Type:        "integer",
					Description: fmt.Sprintf("How many months ahead to forecast, between 1 and %d.", MaxForecastMonths),
					Minimum:     ptr(1.0),
					Maximum:     ptr(float64(MaxForecastMonths)),
				},
				"spare_part_id": {
					Type:        "string",
					Description: "Forecast for one spare part only.",
				},
				"center_id": {
					Type:        "string",
					Description: "Forecast for one service center only.",
				},
			}),
			Handler: engine.Forecast,
		},
	}

	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, fmt.Errorf("registering %s: %w", spec.Name, err)
		}
	}
	return r, nil
}

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Required:   required,
		Properties: props,
	}
}

func ptr[T any](v T) *T { return &v }
