package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeDailyDelivery   = "delivery:daily"
	TaskTypeSessionCleanup  = "registration:cleanup"
	deliveryUniqueTTL       = 23 * time.Hour
	sessionCleanupUniqueTTL = 5 * time.Minute
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the priority map handed to the worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// DeliveryPayload selects the window to deliver. Empty means the window
// current when the task is processed.
type DeliveryPayload struct {
	Window string `json:"window,omitempty"`
}

// NewDailyDeliveryTask builds a delivery task. Explicit windows are unique
// per window, so a double enqueue runs once.
func NewDailyDeliveryTask(window string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliveryPayload{Window: window})
	if err != nil {
		return nil, err
	}

	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(3)}
	if window != "" {
		opts = append(opts, asynq.Unique(deliveryUniqueTTL))
	}
	return asynq.NewTask(TaskTypeDailyDelivery, payload, opts...), nil
}

// NewSessionCleanupTask builds the periodic registration session sweep.
func NewSessionCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSessionCleanup, nil, asynq.Queue(QueueLow), asynq.Unique(sessionCleanupUniqueTTL))
}

// CronSpec renders a daily cron expression for hour:minute.
func CronSpec(hour, minute int) (string, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid delivery time %02d:%02d", hour, minute)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
