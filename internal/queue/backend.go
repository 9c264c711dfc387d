package queue

import (
	"context"
	"time"
)

// Backend persists jobs and their due schedule.
type Backend interface {
	// Schedule stores job and makes it due at job.DueAt. Scheduling an
	// existing id replaces it.
	Schedule(ctx context.Context, job Job) error

	// Reserve atomically takes the earliest job named name that is due at
	// now, marks it active and removes it from the schedule. It returns nil
	// when nothing is due. A job is handed to at most one caller.
	Reserve(ctx context.Context, name string, now time.Time) (*Job, error)

	// Finish stores a job that reached a terminal state. Failed jobs are
	// indexed for Failed.
	Finish(ctx context.Context, job Job) error

	// Delete removes every trace of the job.
	Delete(ctx context.Context, id string) error

	// Cancel removes a job that is still waiting to run and reports whether
	// it did. Active or finished jobs are left alone.
	Cancel(ctx context.Context, id string) (bool, error)

	// Failed lists the retained failed jobs named name.
	Failed(ctx context.Context, name string) ([]Job, error)

	Close() error
}
