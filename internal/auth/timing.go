package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for login response time equalisation
type TimingConfig struct {
	BaseDelay      time.Duration // minimum time a failed login takes
	RandomDelay    time.Duration // upper bound of extra jitter
	DelayOnSuccess bool          // if true, successful logins are padded too
}

// TimingDelay pads authentication responses so that "unknown account",
// "wrong password" and "locked" take about the same time.
// A nil *TimingDelay never waits.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
		sleep:  time.Sleep,
	}
}

// cryptoJitter returns a uniformly random duration in [0, max).
// Uses crypto/rand so the jitter cannot be predicted from earlier responses.
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// Target returns the padded response time for one call, jitter included
func (td *TimingDelay) Target() time.Duration {
	if td == nil {
		return 0
	}
	return td.config.BaseDelay + cryptoJitter(td.config.RandomDelay)
}

// WaitFrom sleeps until at least Target has elapsed since startTime.
// Work already done (hashing, lookups) counts towards the target.
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return
	}

	if remaining := td.Target() - time.Since(startTime); remaining > 0 {
		td.sleep(remaining)
	}
}
