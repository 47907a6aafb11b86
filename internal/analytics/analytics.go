// Package analytics computes operational metrics from the windscout
// database: stage timings, outcome rates, capability mix and ask
// throughput.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// StageDuration holds duration stats for a pipeline stage.
type StageDuration struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_seconds"`
	P50   float64 `json:"p50_seconds"`
	P95   float64 `json:"p95_seconds"`
}

// QueryStageDurations returns average and percentile run times per
// stage, from finished stage events that recorded a duration.
func QueryStageDurations(database DB, since string) ([]StageDuration, error) {
	query := `
		SELECT stage, duration_ms
		FROM stage_events
		WHERE event IN ('completed', 'failed')
		AND duration_ms > 0`

	args := []interface{}{}
	if since != "" {
		query += ` AND created_at >= $1::timestamptz`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	stageDurations := make(map[string][]float64)
	for rows.Next() {
		var stage string
		var durationMs int64
		if err := rows.Scan(&stage, &durationMs); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		stageDurations[stage] = append(stageDurations[stage], float64(durationMs)/1000)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, durations := range stageDurations {
		sort.Float64s(durations)
		results = append(results, StageDuration{
			Stage: stage,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// StageOutcome holds success/failure stats for a stage.
type StageOutcome struct {
	Stage      string  `json:"stage"`
	Started    int     `json:"started"`
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	SuccessPct float64 `json:"success_pct"`
	RetryPct   float64 `json:"retry_pct"`
}

// QueryStageOutcomes returns per-stage outcome counts. SuccessPct is
// completed over finished runs; RetryPct is the share of starts with
// attempt > 1.
func QueryStageOutcomes(database DB, since string) ([]StageOutcome, error) {
	query := `
		SELECT stage,
			SUM(CASE WHEN event = 'started' THEN 1 ELSE 0 END) AS started,
			SUM(CASE WHEN event = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN event = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(CASE WHEN event = 'skipped' THEN 1 ELSE 0 END) AS skipped,
			SUM(CASE WHEN event = 'started' AND attempt > 1 THEN 1 ELSE 0 END) AS retries
		FROM stage_events`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE created_at >= $1::timestamptz`
		args = append(args, since)
	}
	query += ` GROUP BY stage`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stage outcomes: %w", err)
	}
	defer rows.Close()

	var results []StageOutcome
	for rows.Next() {
		var so StageOutcome
		var retries int
		if err := rows.Scan(&so.Stage, &so.Started, &so.Completed, &so.Failed, &so.Skipped, &retries); err != nil {
			return nil, fmt.Errorf("scan stage outcome: %w", err)
		}
		so.SuccessPct = pct(so.Completed, so.Completed+so.Failed)
		so.RetryPct = pct(retries, so.Started)
		results = append(results, so)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

// CapabilityCount holds how often a capability handled asks and how
// often it failed.
type CapabilityCount struct {
	Capability string  `json:"capability"`
	Total      int     `json:"total"`
	Failed     int     `json:"failed"`
	FailurePct float64 `json:"failure_pct"`
}

// QueryCapabilityDistribution returns finished asks grouped by
// capability. Failure envelopes carry a "_error" suffix on the
// capability; those are folded into their base capability and counted
// as failures.
func QueryCapabilityDistribution(database DB, since string) ([]CapabilityCount, error) {
	query := `
		SELECT capability, COUNT(*)
		FROM ask_queue
		WHERE status IN ('completed', 'failed')
		AND capability <> ''`

	args := []interface{}{}
	if since != "" {
		query += ` AND added_at >= $1::timestamptz`
		args = append(args, since)
	}
	query += ` GROUP BY capability`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query capability distribution: %w", err)
	}
	defer rows.Close()

	type counts struct{ total, failed int }
	byCapability := make(map[string]*counts)
	for rows.Next() {
		var capability string
		var n int
		if err := rows.Scan(&capability, &n); err != nil {
			return nil, fmt.Errorf("scan capability count: %w", err)
		}
		base := strings.TrimSuffix(capability, "_error")
		c, ok := byCapability[base]
		if !ok {
			c = &counts{}
			byCapability[base] = c
		}
		c.total += n
		if base != capability {
			c.failed += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []CapabilityCount
	for capability, c := range byCapability {
		results = append(results, CapabilityCount{
			Capability: capability,
			Total:      c.total,
			Failed:     c.failed,
			FailurePct: pct(c.failed, c.total),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Total != results[j].Total {
			return results[i].Total > results[j].Total
		}
		return results[i].Capability < results[j].Capability
	})
	return results, nil
}

// AskThroughput holds queue volume for one day.
type AskThroughput struct {
	Period      string  `json:"period"`
	Added       int     `json:"added"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	AvgHandling float64 `json:"avg_handling_seconds"`
}

// QueryAskThroughput returns daily queue metrics, newest first.
func QueryAskThroughput(database DB, since string) ([]AskThroughput, error) {
	query := `
		SELECT to_char(date_trunc('day', added_at), 'YYYY-MM-DD') AS period,
			COUNT(*) AS added,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed,
			AVG(CASE WHEN started_at IS NOT NULL AND finished_at IS NOT NULL
				THEN EXTRACT(EPOCH FROM (finished_at - started_at)) END) AS avg_secs
		FROM ask_queue`

	args := []interface{}{}
	if since != "" {
		query += ` WHERE added_at >= $1::timestamptz`
		args = append(args, since)
	}
	query += ` GROUP BY period ORDER BY period DESC LIMIT 14`

	rows, err := database.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ask throughput: %w", err)
	}
	defer rows.Close()

	var results []AskThroughput
	for rows.Next() {
		var at AskThroughput
		var avgSecs sql.NullFloat64
		if err := rows.Scan(&at.Period, &at.Added, &at.Completed, &at.Failed, &avgSecs); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		if avgSecs.Valid {
			at.AvgHandling = math.Round(avgSecs.Float64*10) / 10
		}
		results = append(results, at)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// SessionEvent holds a single event for the session-detail view.
type SessionEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Event     string `json:"event"`
	Seq       int    `json:"seq,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// QuerySessionDetail returns the merged timeline for one session: its
// queued asks and its thought steps, in time order.
func QuerySessionDetail(database DB, sessionID string) ([]SessionEvent, error) {
	var results []SessionEvent

	tsRows, err := database.Conn().Query(
		`SELECT created_at, seq, step_type, title, summary, status
		 FROM thought_steps WHERE session_id = $1 ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query thought steps: %w", err)
	}
	defer tsRows.Close()

	for tsRows.Next() {
		var createdAt time.Time
		var seq int
		var stepType, title, status string
		var summary sql.NullString
		if err := tsRows.Scan(&createdAt, &seq, &stepType, &title, &summary, &status); err != nil {
			return nil, fmt.Errorf("scan thought step: %w", err)
		}
		detail := fmt.Sprintf("%s [%s]", title, status)
		if summary.Valid && summary.String != "" {
			detail += ": " + summary.String
		}
		results = append(results, SessionEvent{
			Timestamp: createdAt.UTC().Format(time.RFC3339),
			Type:      "thought",
			Event:     stepType,
			Seq:       seq,
			Detail:    detail,
		})
	}
	if err := tsRows.Err(); err != nil {
		return nil, err
	}

	aqRows, err := database.Conn().Query(
		`SELECT added_at, status, question, capability
		 FROM ask_queue WHERE session_id = $1 ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session asks: %w", err)
	}
	defer aqRows.Close()

	for aqRows.Next() {
		var addedAt time.Time
		var status, question string
		var capability sql.NullString
		if err := aqRows.Scan(&addedAt, &status, &question, &capability); err != nil {
			return nil, fmt.Errorf("scan session ask: %w", err)
		}
		detail := question
		if capability.Valid && capability.String != "" {
			detail += " (" + capability.String + ")"
		}
		results = append(results, SessionEvent{
			Timestamp: addedAt.UTC().Format(time.RFC3339),
			Type:      "ask",
			Event:     status,
			Detail:    detail,
		})
	}
	if err := aqRows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Timestamp != results[j].Timestamp {
			return results[i].Timestamp < results[j].Timestamp
		}
		return results[i].Seq < results[j].Seq
	})

	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
