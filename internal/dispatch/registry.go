package dispatch

import (
	"fmt"
	"sort"

	"github.com/pixelcraft/studio-be/internal/agent"
	"github.com/pixelcraft/studio-be/internal/workflow"
)

// Registry maps job types to their handlers. It is built once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	agents    map[string]agent.Agent
	workflows map[string]workflow.Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents:    make(map[string]agent.Agent),
		workflows: make(map[string]workflow.Definition),
	}
}

// RegisterAgent binds a job type to an agent.
func (r *Registry) RegisterAgent(jobType string, a agent.Agent) error {
	if jobType == "" {
		return fmt.Errorf("job type must not be empty")
	}
	if a == nil {
		return fmt.Errorf("agent for job type %q must not be nil", jobType)
	}
	if r.registered(jobType) {
		return fmt.Errorf("job type %q already registered", jobType)
	}

	r.agents[jobType] = a
	return nil
}

// RegisterWorkflow binds a job type to a workflow definition.
func (r *Registry) RegisterWorkflow(jobType string, def workflow.Definition) error {
	if jobType == "" {
		return fmt.Errorf("job type must not be empty")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("workflow for job type %q has no steps", jobType)
	}
	if r.registered(jobType) {
		return fmt.Errorf("job type %q already registered", jobType)
	}

	r.workflows[jobType] = def
	return nil
}

// Agent returns the agent registered for jobType.
func (r *Registry) Agent(jobType string) (agent.Agent, bool) {
	a, ok := r.agents[jobType]
	return a, ok
}

// Workflow returns the workflow registered for jobType.
func (r *Registry) Workflow(jobType string) (workflow.Definition, bool) {
	def, ok := r.workflows[jobType]
	return def, ok
}

// JobTypes returns every registered job type, sorted.
func (r *Registry) JobTypes() []string {
	types := make([]string, 0, len(r.agents)+len(r.workflows))
	for t := range r.agents {
		types = append(types, t)
	}
	for t := range r.workflows {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) registered(jobType string) bool {
	if _, ok := r.agents[jobType]; ok {
		return true
	}
	_, ok := r.workflows[jobType]
	return ok
}
