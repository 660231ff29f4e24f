// internal/workers/notifications/notify-job-posted/config.go
package notifyjobposted

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
