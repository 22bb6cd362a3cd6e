package queue

import "time"

// Job states. A job moves pending → active → (completed | retry-scheduled →
// pending | failed). Failed is terminal; there is no fourth attempt.
const (
	StatePending        = "pending"
	StateActive         = "active"
	StateCompleted      = "completed"
	StateRetryScheduled = "retry-scheduled"
	StateFailed         = "failed"
)

// Job is the unit of fan-out work owned by exactly one tenant queue.
type Job struct {
	ID             string    `json:"id"`
	NotificationID uint      `json:"notification_id"`
	HackathonID    string    `json:"hackathon_id"`
	Message        string    `json:"message"`
	Type           string    `json:"type"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// Policy is the retry policy attached to every job at creation.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy mirrors the queue options used at ingestion: three attempts
// with exponential backoff starting at one second.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the backoff before the next attempt, given the number of
// attempts already made. The base delay doubles per retry: 1s, 2s, 4s, ...
func (p Policy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return p.BaseDelay << (attempts - 1)
}
