package monitoring

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelcraft/studio-be/internal/agent"
)

func successResult(name string, latency time.Duration, credits int) *agent.Result {
	r := agent.NewSuccess("data")
	r.Metadata.AgentName = name
	r.Metadata.ProcessingTime = latency
	r.Metadata.CreditsUsed = credits
	return r
}

func failureResult(name string) *agent.Result {
	r := agent.NewFailure(agent.NewError(agent.CodeProcessing, "boom"))
	r.Metadata.AgentName = name
	return r
}

func TestPerformanceTracker_RecordAndGet(t *testing.T) {
	tracker := NewPerformanceTracker()

	tracker.RecordExecution("remove-bg", successResult("remove-bg", 100*time.Millisecond, 2))
	tracker.RecordExecution("remove-bg", successResult("remove-bg", 300*time.Millisecond, 2))
	tracker.RecordExecution("remove-bg", failureResult("remove-bg"))

	m := tracker.GetMetrics("remove-bg")
	require.NotNil(t, m)

	assert.Equal(t, int64(3), m.Executions)
	assert.Equal(t, int64(2), m.Successes)
	assert.Equal(t, int64(1), m.Failures)
	assert.InDelta(t, 2.0/3.0, m.SuccessRate, 1e-9)
	assert.Equal(t, (400*time.Millisecond)/3, m.AverageLatency)
	assert.Equal(t, int64(4), m.TotalCredits)
}

func TestPerformanceTracker_UnknownAgent(t *testing.T) {
	tracker := NewPerformanceTracker()
	assert.Nil(t, tracker.GetMetrics("never-seen"))
}

func TestPerformanceTracker_NilResultIgnored(t *testing.T) {
	tracker := NewPerformanceTracker()
	tracker.RecordExecution("a", nil)
	assert.Nil(t, tracker.GetMetrics("a"))
}

func TestPerformanceTracker_GetAllMetricsSorted(t *testing.T) {
	tracker := NewPerformanceTracker()

	tracker.RecordExecution("zeta", successResult("zeta", time.Millisecond, 0))
	tracker.RecordExecution("alpha", successResult("alpha", time.Millisecond, 0))

	all := tracker.GetAllMetrics()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].AgentName)
	assert.Equal(t, "zeta", all[1].AgentName)
}

func TestPerformanceTracker_Reset(t *testing.T) {
	tracker := NewPerformanceTracker()

	tracker.RecordExecution("a", successResult("a", time.Millisecond, 1))
	require.NotNil(t, tracker.GetMetrics("a"))

	tracker.Reset()

	assert.Nil(t, tracker.GetMetrics("a"))
	assert.Empty(t, tracker.GetAllMetrics())
}

func TestPerformanceTracker_ConcurrentRecording(t *testing.T) {
	tracker := NewPerformanceTracker()

	const goroutines = 8
	const perGoroutine = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				tracker.RecordExecution("shared", successResult("shared", time.Millisecond, 1))
			}
		}()
	}
	wg.Wait()

	m := tracker.GetMetrics("shared")
	require.NotNil(t, m)
	assert.Equal(t, int64(goroutines*perGoroutine), m.Executions)
	assert.Equal(t, int64(goroutines*perGoroutine), m.TotalCredits)
}

func TestLogAgentExecution(t *testing.T) {
	t.Run("success is logged with metadata", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(buf, nil))

		ac := agent.NewContext("user-1").WithJob("job-7")
		LogAgentExecution(logger, successResult("remove-bg", 50*time.Millisecond, 2), ac, map[string]any{"source": "dispatcher"})

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

		assert.Equal(t, "remove-bg", entry["agent_name"])
		assert.Equal(t, true, entry["success"])
		assert.Equal(t, "job-7", entry["job_id"])
		assert.Equal(t, "user-1", entry["owner_id"])
		assert.Equal(t, "dispatcher", entry["source"])
	})

	t.Run("failure includes error code", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := slog.New(slog.NewJSONHandler(buf, nil))

		LogAgentExecution(logger, failureResult("remove-bg"), agent.NewContext("user-1"), nil)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

		assert.Equal(t, false, entry["success"])
		assert.Equal(t, string(agent.CodeProcessing), entry["error_code"])
	})

	t.Run("never panics on nil logger or nil result", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogAgentExecution(nil, successResult("a", 0, 0), agent.NewContext("u"), nil)
		})
		assert.NotPanics(t, func() {
			logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
			LogAgentExecution(logger, nil, agent.NewContext("u"), nil)
		})
	})
}
