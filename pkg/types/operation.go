package types

import (
	"fmt"
	"time"
)

// policy parameters for a throttled operation
// last registration wins, there is no versioning
type OperationConfig struct {
	MinInterval time.Duration
}

func (c OperationConfig) Validate() error {
	if c.MinInterval < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, c.MinInterval)
	}
	return nil
}

// coordinator-only bookkeeping for one key
// LastAdmittedAt is monotonic time since coordinator start
type AdmissionState struct {
	Admitted       bool
	LastAdmittedAt time.Duration
}

// checks whether an admission at now respects the interval
// a key that was never admitted is always ready
func (s *AdmissionState) Ready(now time.Duration, cfg OperationConfig) bool {
	if !s.Admitted {
		return true
	}
	return now-s.LastAdmittedAt >= cfg.MinInterval
}
