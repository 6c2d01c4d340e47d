// Package orchestrator provides stateless combinators over agents:
// sequential chaining, parallel fan-out, conditional skip, first-success
// fallback, and backoff retry. Combinators never swallow a failure; they
// decide whether to retry, skip, or short-circuit and otherwise pass the
// envelope through unchanged.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pixelcraft/studio-be/internal/agent"
)

// Transform reshapes the previous output into the next agent's input.
type Transform func(prev any, ac agent.Context) any

// Invoke validates the input and runs the agent, translating validation
// failures and panics into failed envelopes. All combinators route agent
// calls through here.
func Invoke(ctx context.Context, a agent.Agent, input any, ac agent.Context) (res *agent.Result) {
	if vr := a.Validate(input); !vr.Valid {
		agentErr := agent.NewError(agent.CodeValidation, strings.Join(vr.Errors, "; "))
		agentErr.AgentName = a.Name()
		return stampIdentity(agent.NewFailure(agentErr), a)
	}

	defer func() {
		if r := recover(); r != nil {
			agentErr := agent.NewError(agent.CodeProcessing, fmt.Sprintf("agent panicked: %v", r))
			agentErr.AgentName = a.Name()
			res = stampIdentity(agent.NewFailure(agentErr), a)
		}
	}()

	res = a.Process(ctx, input, ac)
	if res == nil {
		agentErr := agent.NewError(agent.CodeUnknown, "agent returned no result")
		agentErr.AgentName = a.Name()
		res = stampIdentity(agent.NewFailure(agentErr), a)
	}
	if !res.Success && res.Err == nil {
		agentErr := agent.NewError(agent.CodeUnknown, "agent returned a failure without an error")
		agentErr.AgentName = a.Name()
		res.Err = agentErr
	}
	return res
}

func stampIdentity(r *agent.Result, a agent.Agent) *agent.Result {
	r.Metadata.AgentName = a.Name()
	r.Metadata.AgentVersion = a.Version()
	return r
}

// Chain runs agents strictly in order, feeding each agent's output into the
// next. transforms[i], when present and non-nil, reshapes the input before
// agents[i] runs (transforms[0] applies to the initial input). The first
// failure short-circuits the chain and is annotated with the failing
// agent's name and index.
func Chain(ctx context.Context, agents []agent.Agent, input any, ac agent.Context, transforms ...Transform) *agent.Result {
	current := input
	result := agent.NewSuccess(input)

	for i, a := range agents {
		if i < len(transforms) && transforms[i] != nil {
			current = transforms[i](current, ac)
		}

		result = Invoke(ctx, a, current, ac)
		if !result.Success {
			result.SetExtra("failed_agent", a.Name())
			result.SetExtra("agent_index", i)
			return result
		}

		current = result.Data
	}

	return result
}

// RunParallel invokes all agents concurrently with the same input and
// context. Results come back aligned to input order regardless of
// completion order; mixed outcomes are the caller's to interpret.
func RunParallel(ctx context.Context, agents []agent.Agent, input any, ac agent.Context) []*agent.Result {
	results := make([]*agent.Result, len(agents))

	var wg sync.WaitGroup
	for i, a := range agents {
		wg.Add(1)
		go func(idx int, a agent.Agent) {
			defer wg.Done()
			results[idx] = Invoke(ctx, a, input, ac)
		}(i, a)
	}
	wg.Wait()

	return results
}

// RunConditional skips the agent when condition is false, returning a
// successful envelope with no data and the "skipped" flag set.
func RunConditional(ctx context.Context, condition bool, a agent.Agent, input any, ac agent.Context) *agent.Result {
	if !condition {
		return agent.NewSkipped()
	}
	return Invoke(ctx, a, input, ac)
}

// FirstSuccessful tries agents in order and returns the first success,
// stamped with whether a fallback (any agent past the first) produced it.
// If every agent fails, the last failure is returned.
func FirstSuccessful(ctx context.Context, agents []agent.Agent, input any, ac agent.Context) *agent.Result {
	var last *agent.Result

	for i, a := range agents {
		last = Invoke(ctx, a, input, ac)
		if last.Success {
			last.SetExtra("fallback_used", i > 0)
			return last
		}
	}

	if last == nil {
		last = agent.NewFailure(agent.NewError(agent.CodeValidation, "no agents provided"))
	}
	return last
}

// Retry invokes the agent, consulting its ShouldRetry policy after each
// failure. Delays grow as initialDelay * 2^n with no jitter. The returned
// result carries the number of retries actually consumed. Retrying stops
// early the moment ShouldRetry declines or the context is done.
func Retry(ctx context.Context, a agent.Agent, input any, ac agent.Context, maxRetries int, initialDelay time.Duration) *agent.Result {
	var result *agent.Result
	attempts := 0

	for {
		result = Invoke(ctx, a, input, ac)
		attempts++

		if result.Success || attempts > maxRetries {
			break
		}
		if !a.ShouldRetry(input, result.Err, attempts) {
			break
		}

		delay := initialDelay << uint(attempts-1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			result.Metadata.Retries = attempts - 1
			return result
		}
	}

	result.Metadata.Retries = attempts - 1
	return result
}
