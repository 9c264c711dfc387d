// Package queue is a durable delayed job queue with bounded retries.
package queue

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("queue closed")
	// ErrJobNotFound is returned when a job id is unknown to the backend.
	ErrJobNotFound = errors.New("job not found")
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Options controls how a job is scheduled and retried.
type Options struct {
	// Delay postpones the first attempt.
	Delay time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff is the wait before the first retry; it doubles on each later one.
	Backoff time.Duration
	// RemoveOnComplete deletes the job once a handler succeeds.
	RemoveOnComplete bool
	// RemoveOnFail deletes the job after its last failed attempt instead of
	// retaining it in the failed set.
	RemoveOnFail bool
}

// Job is a unit of work as stored by a backend.
type Job struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	State   State           `json:"state"`

	Attempts         int           `json:"attempts"`
	MaxAttempts      int           `json:"max_attempts"`
	Backoff          time.Duration `json:"backoff"`
	RemoveOnComplete bool          `json:"remove_on_complete"`
	RemoveOnFail     bool          `json:"remove_on_fail"`

	DueAt      time.Time  `json:"due_at"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// AttemptsLeft is how many more times the job may run.
func (j Job) AttemptsLeft() int {
	return max(j.MaxAttempts-j.Attempts, 0)
}

// retryDelay is Backoff doubled for every attempt after the first.
func (j Job) retryDelay() time.Duration {
	if j.Backoff <= 0 || j.Attempts < 1 {
		return 0
	}
	shift := min(j.Attempts-1, 16)
	return j.Backoff << shift
}
