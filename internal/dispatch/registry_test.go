package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelcraft/studio-be/internal/agent"
	"github.com/pixelcraft/studio-be/internal/workflow"
)

type noopAgent struct {
	agent.BaseAgent
}

func (a *noopAgent) Process(_ context.Context, input any, _ agent.Context) *agent.Result {
	return a.Succeed(input, time.Millisecond, 0)
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	a := &noopAgent{BaseAgent: agent.NewBaseAgent("remove-bg", "1.0.0")}

	require.NoError(t, r.RegisterAgent("background-removal", a))
	require.NoError(t, r.RegisterWorkflow("product-shot", workflow.Definition{
		ID:    "product-shot",
		Steps: []workflow.Step{{ID: "s1", Agent: a}},
	}))

	got, ok := r.Agent("background-removal")
	require.True(t, ok)
	assert.Equal(t, "remove-bg", got.Name())

	def, ok := r.Workflow("product-shot")
	require.True(t, ok)
	assert.Len(t, def.Steps, 1)

	_, ok = r.Agent("unknown")
	assert.False(t, ok)
	_, ok = r.Workflow("unknown")
	assert.False(t, ok)

	assert.Equal(t, []string{"background-removal", "product-shot"}, r.JobTypes())
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	r := NewRegistry()
	a := &noopAgent{BaseAgent: agent.NewBaseAgent("a", "1.0.0")}

	assert.Error(t, r.RegisterAgent("", a))
	assert.Error(t, r.RegisterAgent("t", nil))
	assert.Error(t, r.RegisterWorkflow("t", workflow.Definition{}))

	require.NoError(t, r.RegisterAgent("t", a))
	assert.Error(t, r.RegisterAgent("t", a), "duplicate job type")
	assert.Error(t, r.RegisterWorkflow("t", workflow.Definition{
		Steps: []workflow.Step{{ID: "s1", Agent: a}},
	}), "duplicate across agent and workflow")
}
