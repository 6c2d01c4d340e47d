// Package monitoring provides best-effort observability for agent
// executions: structured execution logs and an in-memory rolling
// aggregate keyed by agent name. Nothing here is durable or
// authoritative.
package monitoring

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pixelcraft/studio-be/internal/agent"
)

// Metrics is a snapshot of one agent's rolling aggregate.
type Metrics struct {
	AgentName      string
	Executions     int64
	Successes      int64
	Failures       int64
	SuccessRate    float64
	AverageLatency time.Duration
	TotalCredits   int64
}

type agentStats struct {
	executions   int64
	successes    int64
	totalLatency time.Duration
	totalCredits int64
}

// PerformanceTracker aggregates execution outcomes per agent. It is
// constructor-injected wherever needed so tests get isolated instances;
// updates are plain counter increments under a mutex.
type PerformanceTracker struct {
	mu      sync.Mutex
	byAgent map[string]*agentStats
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{
		byAgent: make(map[string]*agentStats),
	}
}

// RecordExecution folds one result into the aggregate for agentName.
func (t *PerformanceTracker) RecordExecution(agentName string, result *agent.Result) {
	if result == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.byAgent[agentName]
	if !ok {
		stats = &agentStats{}
		t.byAgent[agentName] = stats
	}

	stats.executions++
	if result.Success {
		stats.successes++
	}
	stats.totalLatency += result.Metadata.ProcessingTime
	stats.totalCredits += int64(result.Metadata.CreditsUsed)
}

// GetMetrics returns the snapshot for agentName, or nil if the agent has
// never been recorded.
func (t *PerformanceTracker) GetMetrics(agentName string) *Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.byAgent[agentName]
	if !ok {
		return nil
	}

	return snapshot(agentName, stats)
}

// GetAllMetrics returns snapshots for every recorded agent, sorted by name.
func (t *PerformanceTracker) GetAllMetrics() []*Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	all := make([]*Metrics, 0, len(t.byAgent))
	for name, stats := range t.byAgent {
		all = append(all, snapshot(name, stats))
	}

	sort.Slice(all, func(i, j int) bool { return all[i].AgentName < all[j].AgentName })
	return all
}

// Reset discards all recorded aggregates.
func (t *PerformanceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byAgent = make(map[string]*agentStats)
}

func snapshot(name string, stats *agentStats) *Metrics {
	m := &Metrics{
		AgentName:    name,
		Executions:   stats.executions,
		Successes:    stats.successes,
		Failures:     stats.executions - stats.successes,
		TotalCredits: stats.totalCredits,
	}
	if stats.executions > 0 {
		m.SuccessRate = float64(stats.successes) / float64(stats.executions)
		m.AverageLatency = stats.totalLatency / time.Duration(stats.executions)
	}
	return m
}

// LogAgentExecution writes one structured log line for an execution.
// Best-effort: it never panics, even with a nil logger or a misbehaving
// handler.
func LogAgentExecution(logger *slog.Logger, result *agent.Result, ac agent.Context, extra map[string]any) {
	defer func() {
		_ = recover()
	}()

	if logger == nil || result == nil {
		return
	}

	attrs := []any{
		slog.String("agent_name", result.Metadata.AgentName),
		slog.String("agent_version", result.Metadata.AgentVersion),
		slog.Bool("success", result.Success),
		slog.Duration("processing_time", result.Metadata.ProcessingTime),
		slog.Int("credits_used", result.Metadata.CreditsUsed),
		slog.Int("retries", result.Metadata.Retries),
		slog.String("owner_id", ac.OwnerID),
	}
	if ac.JobID != "" {
		attrs = append(attrs, slog.String("job_id", ac.JobID))
	}
	if ac.ProjectID != "" {
		attrs = append(attrs, slog.String("project_id", ac.ProjectID))
	}
	for k, v := range extra {
		attrs = append(attrs, slog.Any(k, v))
	}

	if result.Success {
		logger.Info("Agent execution completed", attrs...)
	} else {
		attrs = append(attrs,
			slog.String("error_code", string(result.Err.Code)),
			slog.String("error", result.Err.Message),
		)
		logger.Warn("Agent execution failed", attrs...)
	}
}
