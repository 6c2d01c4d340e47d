// Package workflow executes declarative multi-step pipelines. Consecutive
// steps marked parallel form one concurrently-executed group sharing the
// same upstream input; everything else runs sequentially, each step's
// output feeding the next.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pixelcraft/studio-be/internal/agent"
	"github.com/pixelcraft/studio-be/internal/orchestrator"
)

// Step wraps one agent inside a workflow.
type Step struct {
	ID    string
	Name  string
	Agent agent.Agent

	// Transform reshapes the current input before the agent runs.
	Transform orchestrator.Transform

	// Condition gates the step; when it returns false the step is
	// recorded as skipped and the current input passes through untouched.
	Condition func(prev any, ac agent.Context) bool

	// Parallel groups this step with adjacent parallel steps for
	// concurrent execution.
	Parallel bool
}

// Definition is a named, ordered list of steps.
type Definition struct {
	ID    string
	Name  string
	Steps []Step
}

// Result reports a workflow run: the per-step result map (partial on
// failure), the final output, and execution accounting.
type Result struct {
	Success       bool
	StepResults   map[string]*agent.Result
	Output        any
	Err           *agent.Error
	ExecutionTime time.Duration
	StepsExecuted int
}

// Engine executes workflow definitions.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// Execute runs the definition against the initial input. Execution stops
// at the first failing group; the partial step-result map, wall-clock
// execution time, and the count of non-skipped steps are always populated.
func (e *Engine) Execute(ctx context.Context, def Definition, input any, ac agent.Context) *Result {
	start := time.Now()
	res := &Result{StepResults: make(map[string]*agent.Result, len(def.Steps))}
	current := input

	e.logger.Debug("Workflow started",
		slog.String("workflow_id", def.ID),
		slog.Int("steps", len(def.Steps)),
	)

	for _, group := range partition(def.Steps) {
		var failed []string

		if len(group) == 1 && !group[0].Parallel {
			step := group[0]
			stepRes := e.runStep(ctx, def, step, current, ac)
			res.StepResults[step.ID] = stepRes

			if stepRes.Skipped() {
				continue
			}
			res.StepsExecuted++

			if !stepRes.Success {
				failed = []string{step.ID}
			} else {
				current = stepRes.Data
			}
		} else {
			groupResults := e.runParallelGroup(ctx, def, group, current, ac)

			var next any
			haveNext := false
			for i, step := range group {
				stepRes := groupResults[i]
				res.StepResults[step.ID] = stepRes

				if stepRes.Skipped() {
					continue
				}
				res.StepsExecuted++

				if !stepRes.Success {
					failed = append(failed, step.ID)
				} else if !haveNext {
					// The group's first completed step feeds the next
					// group; siblings needing reconciliation use a
					// downstream transform.
					next = stepRes.Data
					haveNext = true
				}
			}

			if len(failed) == 0 && haveNext {
				current = next
			}
		}

		if len(failed) > 0 {
			res.Err = groupFailure(res.StepResults, failed)
			res.ExecutionTime = time.Since(start)

			e.logger.Warn("Workflow failed",
				slog.String("workflow_id", def.ID),
				slog.String("failed_steps", strings.Join(failed, ",")),
				slog.Int("steps_executed", res.StepsExecuted),
			)
			return res
		}
	}

	res.Success = true
	res.Output = current
	res.ExecutionTime = time.Since(start)

	e.logger.Debug("Workflow completed",
		slog.String("workflow_id", def.ID),
		slog.Int("steps_executed", res.StepsExecuted),
		slog.Duration("execution_time", res.ExecutionTime),
	)
	return res
}

// runStep applies the step's condition and transform, then invokes its
// agent with a context stamped for this workflow step.
func (e *Engine) runStep(ctx context.Context, def Definition, step Step, current any, ac agent.Context) *agent.Result {
	if step.Condition != nil && !step.Condition(current, ac) {
		e.logger.Debug("Workflow step skipped",
			slog.String("workflow_id", def.ID),
			slog.String("step_id", step.ID),
		)
		return agent.NewSkipped()
	}

	input := current
	if step.Transform != nil {
		input = step.Transform(current, ac)
	}

	stepCtx := ac.WithMeta("workflow_id", def.ID).WithMeta("step_id", step.ID)
	return orchestrator.Invoke(ctx, step.Agent, input, stepCtx)
}

// runParallelGroup runs every step of the group concurrently against the
// same upstream input, returning results aligned to group order.
func (e *Engine) runParallelGroup(ctx context.Context, def Definition, group []Step, current any, ac agent.Context) []*agent.Result {
	results := make([]*agent.Result, len(group))

	var wg sync.WaitGroup
	for i, step := range group {
		wg.Add(1)
		go func(idx int, step Step) {
			defer wg.Done()
			results[idx] = e.runStep(ctx, def, step, current, ac)
		}(i, step)
	}
	wg.Wait()

	return results
}

// partition splits steps into maximal runs of consecutive parallel steps;
// non-parallel steps form singleton groups.
func partition(steps []Step) [][]Step {
	var groups [][]Step
	i := 0
	for i < len(steps) {
		if !steps[i].Parallel {
			groups = append(groups, steps[i:i+1])
			i++
			continue
		}

		j := i
		for j < len(steps) && steps[j].Parallel {
			j++
		}
		groups = append(groups, steps[i:j])
		i = j
	}
	return groups
}

// groupFailure builds the workflow error citing every failing step id,
// keeping the first failure's code.
func groupFailure(stepResults map[string]*agent.Result, failed []string) *agent.Error {
	first := stepResults[failed[0]].Err
	code := agent.CodeProcessing
	message := "step failed"
	if first != nil {
		code = first.Code
		message = first.Message
	}

	agentErr := agent.NewError(code, fmt.Sprintf("step %s failed: %s", strings.Join(failed, ", "), message))
	agentErr.Retryable = first != nil && first.Retryable
	return agentErr
}
