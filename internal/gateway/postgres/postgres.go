// Package postgres implements the data-access gateway against the
// maintenance database. Each registered function maps to a read-only
// query over the spare-part, inventory, and usage-history tables.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evscmms/assistant/internal/gateway"
	"github.com/evscmms/assistant/internal/log"
)

// Result-set caps. The payloads feed straight back into the model
// context, so they stay small.
const (
	maxSpareParts   = 20
	maxInventory    = 10
	maxUsageHistory = 15
)

// similarityThreshold is the pg_trgm cutoff for fuzzy part-name search.
const similarityThreshold = 0.3

// Gateway executes registered functions against Postgres.
type Gateway struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New wraps a connection pool. The pool's lifecycle belongs to the
// caller.
func New(pool *pgxpool.Pool, logger log.Logger) *Gateway {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Gateway{pool: pool, logger: logger}
}

// Invoke dispatches a validated function call to its query. Unknown
// names are an error; the orchestrator surfaces them to the model as a
// failed result rather than aborting the turn.
func (g *Gateway) Invoke(ctx context.Context, function string, args map[string]any) (map[string]any, error) {
	switch function {
	case gateway.FuncGetSpareParts:
		return g.spareParts(ctx, args)
	case gateway.FuncGetInventory:
		return g.inventory(ctx, args)
	case gateway.FuncGetUsageHistory:
		return g.usageHistory(ctx, args)
	default:
		return nil, fmt.Errorf("gateway: no query for function %q", function)
	}
}

func (g *Gateway) spareParts(ctx context.Context, args map[string]any) (map[string]any, error) {
	sql := `SELECT s.id, s.name, s.unit_price, s.manufacturer, s.status,
	               t.name AS type_name, v.name AS vehicle_model
	        FROM spare_part s
	        LEFT JOIN spare_part_type t ON t.id = s.type_id
	        LEFT JOIN vehicle_model v ON v.id = s.vehicle_model_id
	        WHERE s.is_active`

	var queryArgs []any
	if name, ok := gateway.OptString(args, "part_name"); ok {
		// ILIKE catches substrings, similarity() catches typos.
		sql += fmt.Sprintf(` AND (s.name ILIKE $1 OR similarity(s.name, $2) > $3)
	        ORDER BY similarity(s.name, $2) DESC, s.name
	        LIMIT %d`, maxSpareParts)
		queryArgs = []any{"%" + name + "%", name, similarityThreshold}
	} else {
		sql += fmt.Sprintf(` ORDER BY s.name LIMIT %d`, maxSpareParts)
	}

	rows, err := g.pool.Query(ctx, sql, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying spare parts: %w", err)
	}
	defer rows.Close()

	data := make([]map[string]any, 0, maxSpareParts)
	for rows.Next() {
		var (
			id, name                       string
			unitPrice                      *float64
			manufacturer, status           *string
			typeName, vehicleModel         *string
		)
		if err := rows.Scan(&id, &name, &unitPrice, &manufacturer, &status, &typeName, &vehicleModel); err != nil {
			return nil, fmt.Errorf("scanning spare part: %w", err)
		}
		data = append(data, map[string]any{
			"id":            id,
			"name":          name,
			"unit_price":    deref(unitPrice),
			"manufacturer":  deref(manufacturer),
			"status":        deref(status),
			"type":          deref(typeName),
			"vehicle_model": deref(vehicleModel),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading spare parts: %w", err)
	}

	return map[string]any{"data": data, "count": len(data)}, nil
}

func (g *Gateway) inventory(ctx context.Context, args map[string]any) (map[string]any, error) {
	sql := `SELECT i.id, i.center_id, c.name AS center_name,
	               i.quantity, i.minimum_stock_level, i.status,
	               s.id AS spare_part_id, s.name AS part_name, s.unit_price
	        FROM inventory i
	        LEFT JOIN service_center c ON c.id = i.center_id
	        LEFT JOIN spare_part s ON s.id = i.spare_part_id
	        WHERE i.is_active`

	var queryArgs []any
	if centerID, ok := gateway.OptString(args, "center_id"); ok {
		sql += ` AND i.center_id = $1`
		queryArgs = []any{centerID}
	}
	sql += fmt.Sprintf(` ORDER BY i.quantity ASC LIMIT %d`, maxInventory)

	rows, err := g.pool.Query(ctx, sql, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	defer rows.Close()

	data := make([]map[string]any, 0, maxInventory)
	for rows.Next() {
		var (
			id, centerID              string
			centerName                *string
			quantity, minStock        int64
			status                    *string
			sparePartID, partName     *string
			unitPrice                 *float64
		)
		if err := rows.Scan(&id, &centerID, &centerName, &quantity, &minStock, &status, &sparePartID, &partName, &unitPrice); err != nil {
			return nil, fmt.Errorf("scanning inventory: %w", err)
		}
		row := map[string]any{
			"id":                  id,
			"center_id":           centerID,
			"center_name":         deref(centerName),
			"quantity":            quantity,
			"minimum_stock_level": minStock,
			"status":              deref(status),
			"spare_part_id":       deref(sparePartID),
			"part_name":           deref(partName),
			"unit_price":          deref(unitPrice),
			"below_minimum":       quantity < minStock,
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}

	return map[string]any{"data": data, "count": len(data)}, nil
}

func (g *Gateway) usageHistory(ctx context.Context, args map[string]any) (map[string]any, error) {
	months, ok := gateway.OptInt(args, "months")
	if !ok {
		return nil, fmt.Errorf("gateway: usage history requires months")
	}

	sql := `SELECT h.id, h.spare_part_id, s.name AS part_name,
	               h.center_id, c.name AS center_name,
	               h.quantity_used, h.used_at, h.status
	        FROM usage_history h
	        LEFT JOIN spare_part s ON s.id = h.spare_part_id
	        LEFT JOIN service_center c ON c.id = h.center_id
	        WHERE h.is_active
	          AND h.used_at >= now() - ($1::int * interval '1 month')`
	queryArgs := []any{months}

	if sparePartID, ok := gateway.OptString(args, "spare_part_id"); ok {
		queryArgs = append(queryArgs, sparePartID)
		sql += fmt.Sprintf(` AND h.spare_part_id = $%d`, len(queryArgs))
	}
	if centerID, ok := gateway.OptString(args, "center_id"); ok {
		queryArgs = append(queryArgs, centerID)
		sql += fmt.Sprintf(` AND h.center_id = $%d`, len(queryArgs))
	}
	sql += fmt.Sprintf(` ORDER BY h.used_at DESC LIMIT %d`, maxUsageHistory)

	rows, err := g.pool.Query(ctx, sql, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying usage history: %w", err)
	}
	defer rows.Close()

	data, err := scanUsageRows(rows)
	if err != nil {
		return nil, err
	}

	return map[string]any{"data": data, "count": len(data), "months": months}, nil
}

// MonthlyUsage implements gateway.UsageSource for the forecast engine.
// The window is aggregated in SQL, so the result covers every row in
// the lookback period regardless of the chat-facing row cap.
func (g *Gateway) MonthlyUsage(ctx context.Context, months int64, sparePartID, centerID string) ([]gateway.UsageBucket, error) {
	sql := `SELECT to_char(date_trunc('month', h.used_at), 'YYYY-MM') AS month,
	               COALESCE(SUM(h.quantity_used), 0) AS used
	        FROM usage_history h
	        WHERE h.is_active
	          AND h.used_at >= now() - ($1::int * interval '1 month')`
	queryArgs := []any{months}

	if sparePartID != "" {
		queryArgs = append(queryArgs, sparePartID)
		sql += fmt.Sprintf(` AND h.spare_part_id = $%d`, len(queryArgs))
	}
	if centerID != "" {
		queryArgs = append(queryArgs, centerID)
		sql += fmt.Sprintf(` AND h.center_id = $%d`, len(queryArgs))
	}
	sql += ` GROUP BY 1 ORDER BY 1`

	rows, err := g.pool.Query(ctx, sql, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("querying monthly usage: %w", err)
	}
	defer rows.Close()

	var buckets []gateway.UsageBucket
	for rows.Next() {
		var b gateway.UsageBucket
		if err := rows.Scan(&b.Month, &b.Used); err != nil {
			return nil, fmt.Errorf("scanning monthly usage: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading monthly usage: %w", err)
	}
	return buckets, nil
}

func scanUsageRows(rows pgx.Rows) ([]map[string]any, error) {
	data := make([]map[string]any, 0, maxUsageHistory)
	for rows.Next() {
		var (
			id, sparePartID      string
			partName             *string
			centerID             string
			centerName           *string
			quantityUsed         int64
			usedAt               time.Time
			status               *string
		)
		if err := rows.Scan(&id, &sparePartID, &partName, &centerID, &centerName, &quantityUsed, &usedAt, &status); err != nil {
			return nil, fmt.Errorf("scanning usage history: %w", err)
		}
		data = append(data, map[string]any{
			"id":            id,
			"spare_part_id": sparePartID,
			"part_name":     deref(partName),
			"center_id":     centerID,
			"center_name":   deref(centerName),
			"quantity_used": quantityUsed,
			"used_at":       usedAt.UTC().Format(time.RFC3339),
			"status":        deref(status),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading usage history: %w", err)
	}
	return data, nil
}

// deref flattens nullable columns to JSON-friendly values.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
