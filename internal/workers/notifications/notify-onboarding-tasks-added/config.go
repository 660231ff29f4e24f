// internal/workers/notifications/notify-onboarding-tasks-added/config.go
package notifyonboardingtasks

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
