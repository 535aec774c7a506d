package orchestrator

import (
	"time"

	"github.com/Proton-105/horoscope-bot/pkg/config"
)

func configFixture() config.GenerationConfig {
	return config.GenerationConfig{
		MinInterval: 2 * time.Second,
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Backoff:     "linear",
		Timeout:     10 * time.Second,
	}
}
