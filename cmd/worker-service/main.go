package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pixelcraft/studio-be/internal/agent"
	"github.com/pixelcraft/studio-be/internal/config"
	"github.com/pixelcraft/studio-be/internal/dispatch"
	"github.com/pixelcraft/studio-be/internal/queue"
	"github.com/pixelcraft/studio-be/shared/logger"
	"github.com/pixelcraft/studio-be/shared/postgresql"
	"github.com/pixelcraft/studio-be/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	appLogger.Info("Database connection established")

	rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}

	appLogger.Info("RabbitMQ connection established")

	registry, err := buildRegistry()
	if err != nil {
		return fmt.Errorf("failed to build job type registry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nudge := startNudgeConsumer(ctx, rabbitClient, appLogger.Logger)

	store := queue.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)
	dispatcher := dispatch.NewDispatcher(&dispatch.Config{
		Logger:       appLogger.Logger,
		Store:        store,
		Registry:     registry,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		Nudge:        nudge,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- dispatcher.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Dispatcher error",
				slog.Any("error", err),
			)
			return err
		}
		appLogger.Warn("Dispatcher stopped unexpectedly")
	}

	// Cancel context to stop pollers; give them time to drain
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-errChan:
		appLogger.Info("Dispatcher stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	cleanup := func() {
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	cleanup()

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// buildRegistry binds job types to their handlers. Concrete production
// agents live outside this module and are registered here at startup;
// the noop agent stays registered as a pipeline smoke test.
func buildRegistry() (*dispatch.Registry, error) {
	registry := dispatch.NewRegistry()

	if err := registry.RegisterAgent("noop", newNoopAgent()); err != nil {
		return nil, err
	}

	return registry, nil
}

// startNudgeConsumer translates broker deliveries into wake-up signals
// for idle pollers. Deliveries carry no authority: every message is
// acked immediately and the poller still claims through the store.
func startNudgeConsumer(ctx context.Context, client *rabbitmq.Client, logger *slog.Logger) <-chan struct{} {
	nudge := make(chan struct{}, 1)

	deliveries, err := client.Consume("worker-service")
	if err != nil {
		logger.Warn("Job notifications unavailable, relying on polling only",
			slog.Any("error", err),
		)
		return nudge
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					logger.Warn("Job notification channel closed, relying on polling only")
					return
				}

				if err := delivery.Ack(false); err != nil {
					logger.Warn("Failed to ack job notification",
						slog.Any("error", err),
					)
				}

				select {
				case nudge <- struct{}{}:
				default:
				}
			}
		}
	}()

	return nudge
}

// noopAgent succeeds immediately with its input. Enqueueing a "noop"
// job verifies the full claim/dispatch/settle path in a deployment.
type noopAgent struct {
	agent.BaseAgent
}

func newNoopAgent() *noopAgent {
	return &noopAgent{BaseAgent: agent.NewBaseAgent("noop", "1.0.0")}
}

func (a *noopAgent) Process(_ context.Context, input any, _ agent.Context) *agent.Result {
	return a.Succeed(input, 0, 0)
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:          cfg.Host,
		Port:          cfg.Port,
		User:          cfg.User,
		Password:      cfg.Password,
		VHost:         cfg.VHost,
		ExchangeName:  cfg.Exchange.Name,
		ExchangeType:  cfg.Exchange.Type,
		QueueName:     cfg.Queue.Name,
		RoutingKey:    cfg.RoutingKey,
		RetryAttempts: cfg.Connection.RetryAttempts,
		RetryInterval: cfg.Connection.RetryInterval,
		Heartbeat:     cfg.Connection.Heartbeat,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
