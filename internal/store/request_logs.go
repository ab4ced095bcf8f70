// ABOUTME: Request log storage operations.
// ABOUTME: Inserts and queries HTTP request logs, keyed by grid name and action.

package store

import (
	"strings"
	"time"
)

// RequestLog represents an HTTP request log entry. Error holds the grid
// envelope error, which is set even though the HTTP status is 200.
type RequestLog struct {
	ID           int64
	Timestamp    time.Time
	GridName     string
	Action       string
	Method       string
	Path         string
	StatusCode   int
	DurationMs   int
	UserID       string
	IPAddress    string
	UserAgent    string
	Error        string
	RequestBody  string
	ResponseBody string
}

// failedClause matches requests that failed either at the HTTP level or
// inside the grid envelope.
const failedClause = "(status_code >= 400 OR COALESCE(error, '') != '')"

// LogRequest inserts a request log entry
func (s *Store) LogRequest(log *RequestLog) error {
	_, err := s.db.Exec(`
		INSERT INTO request_logs (grid_name, action, method, path, status_code, duration_ms, user_id, ip_address, user_agent, error, request_body, response_body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.GridName, log.Action, log.Method, log.Path, log.StatusCode, log.DurationMs, log.UserID, log.IPAddress, log.UserAgent, log.Error, log.RequestBody, log.ResponseBody)
	return err
}

// RequestLogQuery represents filters for request logs. Zero values match
// everything.
type RequestLogQuery struct {
	Limit      int
	Offset     int
	GridName   string
	Action     string
	Method     string
	PathPrefix string
	StatusCode int
	UserID     string
	FailedOnly bool
}

// where renders the query's filters as a WHERE clause.
func (q *RequestLogQuery) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if q.GridName != "" {
		add("grid_name = ?", q.GridName)
	}
	if q.Action != "" {
		add("action = ?", q.Action)
	}
	if q.Method != "" {
		add("method = ?", q.Method)
	}
	if q.PathPrefix != "" {
		add(`path LIKE ? ESCAPE '\'`, escapeSQLLike(q.PathPrefix)+"%")
	}
	if q.StatusCode > 0 {
		add("status_code = ?", q.StatusCode)
	}
	if q.UserID != "" {
		add("user_id = ?", q.UserID)
	}
	if q.FailedOnly {
		conds = append(conds, failedClause)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// RequestLogStats represents aggregate statistics
type RequestLogStats struct {
	TotalRequests   int `json:"total_requests"`
	TodayRequests   int `json:"today_requests"`
	ErrorRequests   int `json:"error_requests"`
	AvgDurationMs   int `json:"avg_duration_ms"`
	UniqueEndpoints int `json:"unique_endpoints"`
	UniqueUsers     int `json:"unique_users"`
	UniqueGrids     int `json:"unique_grids"`
}

// GetRequestLogs retrieves request logs, newest first. The limit defaults
// to 100.
func (s *Store) GetRequestLogs(q *RequestLogQuery) ([]*RequestLog, error) {
	where, args := q.where()
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT id, timestamp, COALESCE(grid_name, ''), COALESCE(action, ''), method, path, status_code, duration_ms,
		       COALESCE(user_id, ''), COALESCE(ip_address, ''), COALESCE(user_agent, ''), COALESCE(error, ''),
		       COALESCE(request_body, ''), COALESCE(response_body, '')
		FROM request_logs`+where+`
		ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, q.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*RequestLog
	for rows.Next() {
		l := &RequestLog{}
		var timestamp string
		if err := rows.Scan(&l.ID, &timestamp, &l.GridName, &l.Action, &l.Method, &l.Path, &l.StatusCode,
			&l.DurationMs, &l.UserID, &l.IPAddress, &l.UserAgent, &l.Error,
			&l.RequestBody, &l.ResponseBody); err != nil {
			return nil, err
		}
		l.Timestamp = parseTimestamp(timestamp)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetRequestLogStats returns aggregate statistics over all logged requests.
func (s *Store) GetRequestLogStats() (*RequestLogStats, error) {
	stats := &RequestLogStats{}
	err := s.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN date(timestamp) = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN `+failedClause+` THEN 1 ELSE 0 END), 0),
		       CAST(COALESCE(AVG(duration_ms), 0) AS INTEGER),
		       COUNT(DISTINCT path),
		       COUNT(DISTINCT NULLIF(user_id, '')),
		       COUNT(DISTINCT NULLIF(grid_name, ''))
		FROM request_logs
	`, time.Now().UTC().Format("2006-01-02")).Scan(
		&stats.TotalRequests, &stats.TodayRequests, &stats.ErrorRequests, &stats.AvgDurationMs,
		&stats.UniqueEndpoints, &stats.UniqueUsers, &stats.UniqueGrids)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetTopEndpoints returns the most frequently requested endpoints
func (s *Store) GetTopEndpoints(limit int) ([]map[string]any, error) {
	rows, err := s.db.Query(`
		SELECT path, COUNT(*) as count, AVG(duration_ms) as avg_ms
		FROM request_logs
		GROUP BY path
		ORDER BY count DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var endpoints []map[string]any
	for rows.Next() {
		var path string
		var count int
		var avgMs float64
		if err := rows.Scan(&path, &count, &avgMs); err != nil {
			return nil, err
		}
		endpoints = append(endpoints, map[string]any{
			"path":   path,
			"count":  count,
			"avg_ms": int(avgMs),
		})
	}
	return endpoints, rows.Err()
}

// GetGridActionCounts returns how often each action of a grid ran since a
// given time. Plain data requests are counted under "".
func (s *Store) GetGridActionCounts(gridName string, since time.Time) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(action, ''), COUNT(*)
		FROM request_logs
		WHERE grid_name = ? AND timestamp >= ?
		GROUP BY COALESCE(action, '')
	`, gridName, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

// GetGridRequestCount returns the number of requests for a grid since a given time
func (s *Store) GetGridRequestCount(gridName string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM request_logs WHERE grid_name = ? AND timestamp >= ?
	`, gridName, since.UTC()).Scan(&count)
	return count, err
}

// GetGridErrorRate returns the percentage of a grid's requests since a given
// time that failed, counting envelope errors as failures.
func (s *Store) GetGridErrorRate(gridName string, since time.Time) (float64, error) {
	var total, failed int
	err := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN `+failedClause+` THEN 1 ELSE 0 END), 0)
		FROM request_logs
		WHERE grid_name = ? AND timestamp >= ?
	`, gridName, since.UTC()).Scan(&total, &failed)
	if err != nil || total == 0 {
		return 0, err
	}
	return float64(failed) / float64(total) * 100.0, nil
}

// GetRecentRequests returns the most recent requests for a grid
func (s *Store) GetRecentRequests(gridName string, limit int) ([]*RequestLog, error) {
	if gridName == "" {
		return nil, nil
	}
	return s.GetRequestLogs(&RequestLogQuery{GridName: gridName, Limit: limit})
}

// parseTimestamp accepts both CURRENT_TIMESTAMP text and the RFC 3339 form
// the driver produces for TIMESTAMP columns.
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
