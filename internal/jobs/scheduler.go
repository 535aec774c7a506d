package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Scheduler enqueues the recurring tasks on a cron.
type Scheduler interface {
	RegisterTasks() error
	Run()
	Shutdown()
}

// ScheduleConfig describes the recurring tasks.
type ScheduleConfig struct {
	Location        *time.Location
	Hour            int
	Minute          int
	CleanupInterval time.Duration
}

type entry struct {
	spec string
	task *asynq.Task
}

type scheduler struct {
	cron *asynq.Scheduler
	cfg  ScheduleConfig
	log  *slog.Logger
}

// NewScheduler builds a cron scheduler evaluating specs in cfg.Location.
func NewScheduler(redisOpt asynq.RedisConnOpt, cfg ScheduleConfig, log *slog.Logger) Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}

	return &scheduler{
		cron: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
			Location: cfg.Location,
			Logger:   newAsynqLogger(log),
		}),
		cfg: cfg,
		log: log,
	}
}

// RegisterTasks registers the daily delivery and, when an interval is set,
// the session sweep.
func (s *scheduler) RegisterTasks() error {
	entries, err := s.entries()
	if err != nil {
		return err
	}

	for _, e := range entries {
		id, err := s.cron.Register(e.spec, e.task)
		if err != nil {
			return fmt.Errorf("register %s: %w", e.task.Type(), err)
		}
		s.log.Info("scheduler entry registered",
			slog.String("entry_id", id),
			slog.String("task_type", e.task.Type()),
			slog.String("spec", e.spec),
			slog.String("timezone", s.cfg.Location.String()),
		)
	}
	return nil
}

func (s *scheduler) entries() ([]entry, error) {
	spec, err := CronSpec(s.cfg.Hour, s.cfg.Minute)
	if err != nil {
		return nil, err
	}
	delivery, err := NewDailyDeliveryTask("")
	if err != nil {
		return nil, err
	}

	entries := []entry{{spec: spec, task: delivery}}
	if s.cfg.CleanupInterval > 0 {
		entries = append(entries, entry{
			spec: "@every " + s.cfg.CleanupInterval.String(),
			task: NewSessionCleanupTask(),
		})
	}
	return entries, nil
}

// Run starts the cron in the background.
func (s *scheduler) Run() {
	go func() {
		if err := s.cron.Run(); err != nil {
			s.log.Error("scheduler stopped", slog.Any("error", err))
		}
	}()
}

func (s *scheduler) Shutdown() {
	s.cron.Shutdown()
}
