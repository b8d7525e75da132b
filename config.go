package steward

import "time"

// Config holds configuration for the Controller and Scheduler.
type Config struct {
	// WarnThresholds are the "days remaining" values at which expiry
	// warnings fire. Order does not matter; the scheduler evaluates them
	// most-urgent first. Defaults to {30, 7, 1}.
	WarnThresholds []int `json:"warn_thresholds,omitempty"`

	// SweepInterval is how often the scheduler scans active grants.
	// Defaults to 24h.
	SweepInterval time.Duration `json:"sweep_interval,omitempty"`

	// SweepBatchSize bounds the number of grants examined per sweep.
	// Zero means no bound.
	SweepBatchSize int `json:"sweep_batch_size,omitempty"`

	// CallTimeout bounds each provisioner and notifier call. A timeout is
	// a failure, never an assumed success. Defaults to 10s.
	CallTimeout time.Duration `json:"call_timeout,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		WarnThresholds: []int{30, 7, 1},
		SweepInterval:  24 * time.Hour,
		CallTimeout:    10 * time.Second,
	}
}

// maxThreshold returns the least urgent configured threshold in days.
func (c Config) maxThreshold() int {
	max := 0
	for _, t := range c.WarnThresholds {
		if t > max {
			max = t
		}
	}
	return max
}
