package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultConcurrency     = 2
	defaultShutdownTimeout = 30 * time.Second
	maxRetryDelay          = 10 * time.Minute
)

// Worker processes queued delivery and cleanup tasks.
type Worker interface {
	RegisterHandler(taskType string, handler asynq.Handler)
	Run() error
	Shutdown()
}

// WorkerConfig tunes the asynq server. Zero values use the defaults.
type WorkerConfig struct {
	Queues          map[string]int
	Concurrency     int
	ShutdownTimeout time.Duration
}

type worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

var _ Worker = (*worker)(nil)

// NewWorker constructs a Worker. The delivery loop has its own pool, so a
// small concurrency is enough.
func NewWorker(redisOpt asynq.RedisConnOpt, cfg WorkerConfig, log *slog.Logger) Worker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Queues == nil {
		cfg.Queues = Queues
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	w := &worker{mux: asynq.NewServeMux(), log: log}
	w.mux.Use(w.logTask)
	w.server = asynq.NewServer(redisOpt, asynq.Config{
		Queues:          cfg.Queues,
		Concurrency:     cfg.Concurrency,
		ShutdownTimeout: cfg.ShutdownTimeout,
		RetryDelayFunc:  retryDelay,
		ErrorHandler:    asynq.ErrorHandlerFunc(w.reportFailure),
		Logger:          newAsynqLogger(log),
	})
	return w
}

// RegisterHandler wires a task type to the provided handler.
func (w *worker) RegisterHandler(taskType string, handler asynq.Handler) {
	w.mux.Handle(taskType, handler)
}

// Run starts processing in the background. Signals are left to the caller,
// which stops the worker with Shutdown.
func (w *worker) Run() error {
	w.log.Info("jobs worker starting")
	return w.server.Start(w.mux)
}

// Shutdown waits for in-flight tasks up to the shutdown timeout.
func (w *worker) Shutdown() {
	w.log.Info("jobs worker shutting down")
	w.server.Shutdown()
}

func (w *worker) logTask(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		started := time.Now()
		err := next.ProcessTask(ctx, t)
		w.log.DebugContext(ctx, "jobs task finished",
			slog.String("task_type", t.Type()),
			slog.Duration("duration", time.Since(started)),
			slog.Bool("ok", err == nil),
		)
		return err
	})
}

func (w *worker) reportFailure(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	level := slog.LevelWarn
	if retried >= maxRetry {
		level = slog.LevelError
	}
	w.log.Log(ctx, level, "jobs task failed",
		slog.String("task_type", t.Type()),
		slog.Int("retried", retried),
		slog.Int("max_retry", maxRetry),
		slog.Any("error", err),
	)
}

// retryDelay backs off like asynq's default but never waits longer than a
// delivery window can tolerate.
func retryDelay(n int, err error, t *asynq.Task) time.Duration {
	return min(asynq.DefaultRetryDelayFunc(n, err, t), maxRetryDelay)
}
