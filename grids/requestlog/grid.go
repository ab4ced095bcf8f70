// ABOUTME: Request log grid: the server's own request history for superusers.
// ABOUTME: Registers itself with the grid registry on import.

package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/2389/tabulator/internal/auth"
	"github.com/2389/tabulator/internal/grid"
	"github.com/2389/tabulator/internal/store"
)

func init() {
	grid.Register(&RequestLogGrid{})
}

// DefaultLimit is the number of rows returned without a "limit" parameter.
const DefaultLimit = 100

// MaxLimit caps the "limit" parameter.
const MaxLimit = 1000

type RequestLogGrid struct {
	store *store.Store
}

func (g *RequestLogGrid) Name() string {
	return "requestlog"
}

func (g *RequestLogGrid) Location() string {
	return "grids/requestlog"
}

func (g *RequestLogGrid) SetDB(db *sql.DB) error {
	g.store = store.Wrap(db)
	return nil
}

func (g *RequestLogGrid) Load(_ context.Context, _ *grid.Request) (*grid.Descriptor, error) {
	if g.store == nil {
		return nil, fmt.Errorf("database not configured")
	}

	d := &grid.Descriptor{
		Title: "Request log",
		Columns: []grid.Column{
			{Field: "id", Title: "ID", Sorter: "number"},
			{Field: "timestamp", Title: "Time", Sorter: "datetime"},
			{Field: "grid_name", Title: "Grid"},
			{Field: "action", Title: "Action"},
			{Field: "method", Title: "Method"},
			{Field: "path", Title: "Path"},
			{Field: "status_code", Title: "Status", Sorter: "number"},
			{Field: "duration_ms", Title: "ms", Sorter: "number"},
			{Field: "user_id", Title: "User"},
			{Field: "error", Title: "Error"},
		},
		Access: grid.RequireRole(auth.RoleSuperuser),
		Rows:   g.rows,
	}
	d.AddGridAction(&grid.Action{Name: "stats", Title: "Statistics", Access: grid.RequireRole(auth.RoleSuperuser), Execute: g.stats})
	d.AddGridAction(&grid.Action{Name: "health", Title: "Grid health", Access: grid.RequireRole(auth.RoleSuperuser), Execute: g.health})
	return d, nil
}

func (g *RequestLogGrid) rows(_ context.Context, req *grid.Request) ([]grid.Row, error) {
	logs, err := g.store.GetRequestLogs(logQuery(req))
	if err != nil {
		return nil, err
	}
	return toRows(logs), nil
}

// logQuery reads the optional filter parameters grid, action, method, path,
// status, user, failed, limit and offset.
func logQuery(req *grid.Request) *store.RequestLogQuery {
	return &store.RequestLogQuery{
		Limit:      min(atoi(req.Param("limit"), DefaultLimit), MaxLimit),
		Offset:     atoi(req.Param("offset"), 0),
		GridName:   req.Param("grid"),
		Action:     req.Param("action"),
		Method:     req.Param("method"),
		PathPrefix: req.Param("path"),
		StatusCode: atoi(req.Param("status"), 0),
		UserID:     req.Param("user"),
		FailedOnly: req.Param("failed") == "1" || req.Param("failed") == "true",
	}
}

func toRows(logs []*store.RequestLog) []grid.Row {
	rows := make([]grid.Row, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, grid.Row{
			"id":          l.ID,
			"timestamp":   l.Timestamp.Format(time.RFC3339),
			"grid_name":   l.GridName,
			"action":      l.Action,
			"method":      l.Method,
			"path":        l.Path,
			"status_code": l.StatusCode,
			"duration_ms": l.DurationMs,
			"user_id":     l.UserID,
			"error":       l.Error,
		})
	}
	return rows
}

func (g *RequestLogGrid) stats(_ context.Context, _ *grid.Request) (any, error) {
	stats, err := g.store.GetRequestLogStats()
	if err != nil {
		return nil, err
	}
	top, err := g.store.GetTopEndpoints(5)
	if err != nil {
		return nil, err
	}
	return map[string]any{"stats": stats, "top_endpoints": top}, nil
}

// health reports traffic and error rate of the grid named by the "grid"
// parameter over the last "hours" hours (default 24).
func (g *RequestLogGrid) health(_ context.Context, req *grid.Request) (any, error) {
	name := req.Param("grid")
	if name == "" {
		return nil, fmt.Errorf("grid parameter is required")
	}
	since := time.Now().Add(-time.Duration(atoi(req.Param("hours"), 24)) * time.Hour)

	count, err := g.store.GetGridRequestCount(name, since)
	if err != nil {
		return nil, err
	}
	rate, err := g.store.GetGridErrorRate(name, since)
	if err != nil {
		return nil, err
	}
	actions, err := g.store.GetGridActionCounts(name, since)
	if err != nil {
		return nil, err
	}
	recent, err := g.store.GetRecentRequests(name, 10)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"grid":       name,
		"requests":   count,
		"error_rate": rate,
		"actions":    actions,
		"recent":     toRows(recent),
	}, nil
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
