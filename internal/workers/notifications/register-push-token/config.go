// internal/workers/notifications/register-push-token/config.go
package registerpushtoken

import "time"

type Config struct {
	Timeout time.Duration
	// DefaultRole applies when the job does not name a role.
	DefaultRole string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     30 * time.Second,
		DefaultRole: "applicant",
	}
}
