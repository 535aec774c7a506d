package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager queues tasks. The admin API uses it for manual delivery runs.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}
	return &manager{client: asynq.NewClient(redisOpt), log: log}
}

// Enqueue submits task. A duplicate of a unique task is returned as
// asynq.ErrDuplicateTask and logged at info level.
func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := m.client.EnqueueContext(ctx, task, opts...)
	switch {
	case errors.Is(err, asynq.ErrDuplicateTask):
		m.log.InfoContext(ctx, "jobs task already queued", slog.String("task_type", task.Type()))
		return nil, err
	case err != nil:
		m.log.WarnContext(ctx, "jobs enqueue failed", slog.String("task_type", task.Type()), slog.Any("error", err))
		return nil, err
	}

	m.log.InfoContext(ctx, "jobs task enqueued",
		slog.String("task_type", task.Type()),
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
	)
	return info, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
