// internal/workers/notifications/notify-applicant-status-changed/config.go
package notifystatuschanged

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
