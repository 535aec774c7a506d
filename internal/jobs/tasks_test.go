package jobs

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSpec(t *testing.T) {
	spec, err := CronSpec(7, 30)
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * *", spec)

	_, err = CronSpec(24, 0)
	assert.Error(t, err)

	_, err = CronSpec(7, 60)
	assert.Error(t, err)
}

func TestNewDailyDeliveryTask(t *testing.T) {
	task, err := NewDailyDeliveryTask("2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeDailyDelivery, task.Type())

	var payload DeliveryPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "2025-06-02", payload.Window)

	current, err := NewDailyDeliveryTask("")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(current.Payload()))
}

func TestNewSessionCleanupTask(t *testing.T) {
	task := NewSessionCleanupTask()
	assert.Equal(t, TaskTypeSessionCleanup, task.Type())
	assert.Empty(t, task.Payload())
}

func TestSchedulerEntries(t *testing.T) {
	s := &scheduler{cfg: ScheduleConfig{Hour: 7, Minute: 30, CleanupInterval: 10 * time.Minute}}

	entries, err := s.entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "30 7 * * *", entries[0].spec)
	assert.Equal(t, TaskTypeDailyDelivery, entries[0].task.Type())
	assert.Equal(t, "@every 10m0s", entries[1].spec)
	assert.Equal(t, TaskTypeSessionCleanup, entries[1].task.Type())

	s.cfg.CleanupInterval = 0
	entries, err = s.entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	s.cfg.Hour = 25
	_, err = s.entries()
	assert.Error(t, err)
}

func TestRetryDelayIsCapped(t *testing.T) {
	task := NewSessionCleanupTask()
	assert.Equal(t, maxRetryDelay, retryDelay(20, errors.New("boom"), task))
	assert.LessOrEqual(t, retryDelay(0, errors.New("boom"), task), maxRetryDelay)
}
