package models

import "time"

// LoginAttempt is an append-only record of one authentication attempt.
// Rows are only read in aggregate by the lockout tracker and pruned
// after they fall out of the lookback window.
type LoginAttempt struct {
	ID          string
	Email       string
	UserID      *string
	IPAddress   string
	Success     bool
	AttemptTime time.Time
	ExpiresAt   time.Time
}
