// Package dispatch connects the job store to agents: a pool of pollers
// claims pending jobs, resolves each job type through the registry, and
// settles the job from the resulting envelope.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixelcraft/studio-be/internal/agent"
	"github.com/pixelcraft/studio-be/internal/monitoring"
	"github.com/pixelcraft/studio-be/internal/orchestrator"
	"github.com/pixelcraft/studio-be/internal/queue"
	"github.com/pixelcraft/studio-be/internal/workflow"
)

// CreditGate is the billing collaborator consulted before dispatch.
// Implementations deduct or reserve credits and return an error when the
// owner's balance cannot cover the cost.
type CreditGate interface {
	Reserve(ctx context.Context, ownerID string, credits int) error
}

type allowAllGate struct{}

func (allowAllGate) Reserve(context.Context, string, int) error { return nil }

// Config holds dispatcher configuration.
type Config struct {
	Logger       *slog.Logger
	Store        queue.Store
	Registry     *Registry
	Tracker      *monitoring.PerformanceTracker
	Gate         CreditGate
	Concurrency  int
	PollInterval time.Duration

	// Nudge wakes idle pollers early; the ticker remains the fallback.
	Nudge <-chan struct{}
}

// Dispatcher runs the poller pool.
type Dispatcher struct {
	logger       *slog.Logger
	store        queue.Store
	registry     *Registry
	tracker      *monitoring.PerformanceTracker
	gate         CreditGate
	engine       *workflow.Engine
	concurrency  int
	pollInterval time.Duration
	nudge        <-chan struct{}
}

// NewDispatcher creates a dispatcher from config, applying defaults for
// concurrency, poll interval, tracker, and gate.
func NewDispatcher(cfg *Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	tracker := cfg.Tracker
	if tracker == nil {
		tracker = monitoring.NewPerformanceTracker()
	}

	gate := cfg.Gate
	if gate == nil {
		gate = allowAllGate{}
	}

	return &Dispatcher{
		logger:       logger,
		store:        cfg.Store,
		registry:     cfg.Registry,
		tracker:      tracker,
		gate:         gate,
		engine:       workflow.NewEngine(logger),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		nudge:        cfg.Nudge,
	}
}

// Tracker exposes the injected performance aggregate.
func (d *Dispatcher) Tracker() *monitoring.PerformanceTracker {
	return d.tracker
}

// Start runs the poller pool until ctx is canceled. Pollers drain their
// in-flight job before returning.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting dispatcher",
		slog.Int("concurrency", d.concurrency),
		slog.Duration("poll_interval", d.pollInterval),
		slog.Any("job_types", d.registry.JobTypes()),
	)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		pollerNum := i
		g.Go(func() error {
			d.pollLoop(ctx, pollerNum)
			return nil
		})
	}

	return g.Wait()
}

// pollLoop claims and processes jobs until the context is done. An empty
// queue parks the poller on its ticker or a nudge.
func (d *Dispatcher) pollLoop(ctx context.Context, pollerNum int) {
	pollerName := fmt.Sprintf("poller-%d", pollerNum)
	d.logger.Debug("Poller started", slog.String("poller", pollerName))

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			d.logger.Debug("Poller stopped", slog.String("poller", pollerName))
			return
		}

		job, err := d.store.TryClaimOne(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrNoPendingJobs) {
				d.logger.Error("Failed to claim job",
					slog.String("poller", pollerName),
					slog.Any("error", err),
				)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-d.nudge:
			}
			continue
		}

		d.processJob(ctx, pollerName, job)
	}
}

// processJob executes one claimed job and settles it in the store.
func (d *Dispatcher) processJob(ctx context.Context, pollerName string, job *queue.Job) {
	d.logger.Info("Processing job",
		slog.String("poller", pollerName),
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("retry_count", job.RetryCount),
	)

	ac := agent.NewContext(job.OwnerID).WithJob(job.ID)
	result := d.execute(ctx, job, ac)

	monitoring.LogAgentExecution(d.logger, result, ac, map[string]any{"job_type": job.JobType})

	trackerKey := result.Metadata.AgentName
	if trackerKey == "" {
		trackerKey = job.JobType
	}
	d.tracker.RecordExecution(trackerKey, result)

	if result.Success {
		if err := d.store.MarkCompleted(ctx, job.ID); err != nil {
			d.logger.Error("Failed to mark job completed",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
		return
	}

	if err := d.store.MarkFailed(ctx, job.ID, result.Err.Error()); err != nil {
		d.logger.Error("Failed to mark job failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

// execute resolves the job type and runs the bound agent or workflow.
func (d *Dispatcher) execute(ctx context.Context, job *queue.Job, ac agent.Context) *agent.Result {
	input, err := decodePayload(job.Payload)
	if err != nil {
		agentErr := agent.NewError(agent.CodeValidation, fmt.Sprintf("invalid payload JSON: %v", err))
		return agent.NewFailure(agentErr)
	}

	if a, ok := d.registry.Agent(job.JobType); ok {
		if credits := a.CreditsRequired(input); credits > 0 {
			if err := d.gate.Reserve(ctx, job.OwnerID, credits); err != nil {
				agentErr := agent.NewError(agent.CodeInsufficientCredits, err.Error())
				agentErr.AgentName = a.Name()
				return agent.NewFailure(agentErr)
			}
		}
		return orchestrator.Invoke(ctx, a, input, ac)
	}

	if def, ok := d.registry.Workflow(job.JobType); ok {
		return workflowResult(job.JobType, d.engine.Execute(ctx, def, input, ac))
	}

	agentErr := agent.NewError(agent.CodeValidation, fmt.Sprintf("unknown job type %q", job.JobType))
	return agent.NewFailure(agentErr)
}

// decodePayload parses the opaque JSON payload. An empty payload is a nil
// input; agents decide whether that is acceptable via Validate.
func decodePayload(payload string) (any, error) {
	if payload == "" {
		return nil, nil
	}

	var input any
	if err := json.Unmarshal([]byte(payload), &input); err != nil {
		return nil, err
	}
	return input, nil
}

// workflowResult folds a workflow run into the standard envelope.
func workflowResult(jobType string, wf *workflow.Result) *agent.Result {
	var result *agent.Result
	if wf.Success {
		result = agent.NewSuccess(wf.Output)
	} else {
		result = agent.NewFailure(wf.Err)
	}

	result.Metadata.AgentName = jobType
	result.Metadata.ProcessingTime = wf.ExecutionTime
	result.SetExtra("steps_executed", wf.StepsExecuted)
	return result
}
