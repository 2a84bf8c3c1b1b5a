package models

import "time"

// AttemptRecord holds per-account failure state.
// LockedUntil set implies FailedCount reached the lockout threshold.
type AttemptRecord struct {
	FailedCount   int        `json:"failed_count"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
}

// LockedAt reports whether the record is locked at the given instant
func (r AttemptRecord) LockedAt(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// LockExpiredAt reports whether a lock was set and has since elapsed
func (r AttemptRecord) LockExpiredAt(now time.Time) bool {
	return r.LockedUntil != nil && !now.Before(*r.LockedUntil)
}

// RateWindow is a fixed request-counting window for one client and endpoint class
type RateWindow struct {
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}

// ExpiredAt reports whether the window has rolled over
func (w RateWindow) ExpiredAt(now time.Time, length time.Duration) bool {
	return !now.Before(w.WindowStart.Add(length))
}
