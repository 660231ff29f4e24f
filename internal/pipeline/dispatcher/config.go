package dispatcher

import (
	"time"

	"recruit-notifier/internal/common/config"
	"recruit-notifier/internal/pipeline/dispatchqueue"
)

type Config struct {
	Stream          string
	Group           string
	Consumer        string
	Concurrency     int
	ProviderTimeout time.Duration
	Block           time.Duration
	ClaimIdle       time.Duration
	SweepInterval   time.Duration
	SweepAge        time.Duration
	SweepLimit      int
	// LeaseTTL bounds how long one handler owns a request while sending it.
	LeaseTTL time.Duration
}

// ConfigFrom maps the millisecond-based file config onto durations.
func ConfigFrom(c config.DispatcherConfig) Config {
	return Config{
		Stream:          c.Stream,
		Group:           c.Group,
		Consumer:        c.Consumer,
		Concurrency:     c.Concurrency,
		ProviderTimeout: config.GetDuration(c.ProviderTimeout),
		Block:           config.GetDuration(c.Block),
		ClaimIdle:       config.GetDuration(c.ClaimIdle),
		SweepInterval:   config.GetDuration(c.SweepInterval),
		SweepAge:        config.GetDuration(c.SweepAge),
		SweepLimit:      c.SweepLimit,
		LeaseTTL:        config.GetDuration(c.LeaseTTL),
	}
}

func (c Config) withDefaults() Config {
	if c.Stream == "" {
		c.Stream = dispatchqueue.DefaultStream
	}
	if c.Group == "" {
		c.Group = "push-dispatcher"
	}
	if c.Consumer == "" {
		c.Consumer = "dispatcher"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 16
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SweepAge <= 0 {
		c.SweepAge = 2 * time.Minute
	}
	if c.SweepLimit <= 0 {
		c.SweepLimit = 500
	}
	if c.LeaseTTL <= c.ProviderTimeout {
		c.LeaseTTL = c.ProviderTimeout + 30*time.Second
	}
	return c
}
