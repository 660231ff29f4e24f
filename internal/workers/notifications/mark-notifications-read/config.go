// internal/workers/notifications/mark-notifications-read/config.go
package marknotificationsread

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
