// Package forecast estimates future spare-part demand. It pulls the
// full lookback window of monthly usage totals from the data source and
// asks the model for an analyst-style projection; when the model is
// unavailable it falls back to a linear trend over the same data.
package forecast

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/evscmms/assistant/internal/gateway"
	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/model"
)

// Lookback bounds: the engine studies roughly twice the requested
// horizon, never less than six months of history.
const (
	minLookbackMonths = 6
	maxLookbackMonths = 24
)

// Generator produces text. *model.Client satisfies it.
type Generator interface {
	Converse(ctx context.Context, msgs []model.Message, decls []*genai.FunctionDeclaration) (*model.TurnResult, error)
}

// Engine builds demand forecasts from usage history.
type Engine struct {
	source gateway.UsageSource
	gen    Generator
	logger log.Logger
	now    func() time.Time
}

// New wires the engine to its data source and model. gen may be nil;
// forecasts then always use the trend method.
func New(source gateway.UsageSource, gen Generator, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{source: source, gen: gen, logger: logger, now: time.Now}
}

// Forecast handles the forecast_demand function. args carry the
// validated horizon in months plus optional spare_part_id and
// center_id filters.
func (e *Engine) Forecast(ctx context.Context, args map[string]any) (map[string]any, error) {
	horizon, ok := gateway.OptInt(args, "months")
	if !ok {
		return nil, fmt.Errorf("forecast: months is required")
	}

	lookback := horizon * 2
	if lookback < minLookbackMonths {
		lookback = minLookbackMonths
	}
	if lookback > maxLookbackMonths {
		lookback = maxLookbackMonths
	}

	sparePartID, _ := gateway.OptString(args, "spare_part_id")
	centerID, _ := gateway.OptString(args, "center_id")

	buckets, err := e.source.MonthlyUsage(ctx, lookback, sparePartID, centerID)
	if err != nil {
		return nil, fmt.Errorf("forecast: fetching monthly usage: %w", err)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Month < buckets[j].Month })

	var total int64
	for _, b := range buckets {
		total += b.Used
	}

	result := map[string]any{
		"horizon_months":   horizon,
		"based_on_months":  lookback,
		"total_used":       total,
		"monthly_usage":    bucketsToRows(buckets),
		"projected_demand": projectDemand(buckets, horizon),
	}

	if len(buckets) == 0 {
		result["method"] = "none"
		result["analysis"] = "No usage recorded in the analysis window; demand cannot be projected from history."
		return result, nil
	}

	if analysis, err := e.modelAnalysis(ctx, buckets, horizon); err == nil {
		result["method"] = "model"
		result["analysis"] = analysis
		return result, nil
	} else if e.gen != nil {
		e.logger.Warn("forecast model analysis unavailable, using trend", "error", err)
	}

	result["method"] = "trend"
	result["analysis"] = trendAnalysis(buckets, horizon)
	return result, nil
}

func bucketsToRows(buckets []gateway.UsageBucket) []map[string]any {
	rows := make([]map[string]any, len(buckets))
	for i, b := range buckets {
		rows[i] = map[string]any{"month": b.Month, "quantity_used": b.Used}
	}
	return rows
}

// projectDemand extrapolates a least-squares line over the monthly
// totals and sums it across the horizon. Demand never projects below
// zero.
func projectDemand(buckets []gateway.UsageBucket, horizon int64) int64 {
	if len(buckets) == 0 {
		return 0
	}
	if len(buckets) == 1 {
		return buckets[0].Used * horizon
	}

	n := float64(len(buckets))
	var sumX, sumY, sumXY, sumXX float64
	for i, b := range buckets {
		x, y := float64(i), float64(b.Used)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	intercept := (sumY - slope*sumX) / n

	var projected float64
	for i := int64(0); i < horizon; i++ {
		month := slope*(n+float64(i)) + intercept
		if month < 0 {
			month = 0
		}
		projected += month
	}
	return int64(projected + 0.5)
}

func (e *Engine) modelAnalysis(ctx context.Context, buckets []gateway.UsageBucket, horizon int64) (string, error) {
	if e.gen == nil {
		return "", fmt.Errorf("forecast: no generator configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Monthly spare part usage totals:\n")
	for _, bucket := range buckets {
		fmt.Fprintf(&b, "- %s: %d units\n", bucket.Month, bucket.Used)
	}
	fmt.Fprintf(&b, "\nProject the demand for the next %d months. ", horizon)
	b.WriteString("Give expected monthly quantities, the overall trend, and one sentence of stocking advice. Be concise.")

	res, err := e.gen.Converse(ctx, []model.Message{{Role: model.RoleUser, Text: b.String()}}, nil)
	if err != nil {
		return "", err
	}
	if res.Kind != model.KindFinal || res.Text == "" {
		return "", fmt.Errorf("forecast: model returned no analysis")
	}
	return res.Text, nil
}

// trendAnalysis renders the deterministic fallback as prose so the
// payload shape matches the model path.
func trendAnalysis(buckets []gateway.UsageBucket, horizon int64) string {
	var total int64
	for _, b := range buckets {
		total += b.Used
	}
	avg := float64(total) / float64(len(buckets))
	projected := projectDemand(buckets, horizon)

	direction := "steady"
	if len(buckets) >= 2 {
		first, last := buckets[0].Used, buckets[len(buckets)-1].Used
		switch {
		case last > first:
			direction = "rising"
		case last < first:
			direction = "falling"
		}
	}
	return fmt.Sprintf(
		"Usage averaged %.1f units/month over the last %d months with a %s trend; projected demand for the next %d months is about %d units.",
		avg, len(buckets), direction, horizon, projected)
}
