package handler

import (
	"context"
	"log/slog"

	"github.com/pixelcraft/studio-be/internal/queue"
)

// Notifier publishes job-available notifications. Satisfied by the
// rabbitmq client; notifications are best-effort and never block job
// creation.
type Notifier interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *slog.Logger
	Store    queue.Store
	Notifier Notifier
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	store    queue.Store
	notifier Notifier
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &JobHandler{
		logger:   logger,
		store:    deps.Store,
		notifier: deps.Notifier,
	}
}
