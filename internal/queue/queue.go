package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Queue is the producer side: it enqueues, cancels and inspects jobs.
type Queue struct {
	backend Backend
	now     func() time.Time
	log     logrus.FieldLogger
	closed  atomic.Bool
}

func New(backend Backend, logger logrus.FieldLogger) *Queue {
	return &Queue{
		backend: backend,
		now:     time.Now,
		log:     logger.WithField("component", "queue"),
	}
}

// Enqueue schedules payload to run opts.Delay from now and returns the job id.
// MaxAttempts below one is treated as one.
func (q *Queue) Enqueue(ctx context.Context, name string, payload any, opts Options) (string, error) {
	if q.closed.Load() {
		return "", ErrClosed
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	now := q.now().UTC()
	job := Job{
		ID:               uuid.NewString(),
		Name:             name,
		Payload:          data,
		State:            StatePending,
		MaxAttempts:      max(opts.MaxAttempts, 1),
		Backoff:          opts.Backoff,
		RemoveOnComplete: opts.RemoveOnComplete,
		RemoveOnFail:     opts.RemoveOnFail,
		DueAt:            now.Add(max(opts.Delay, 0)),
		CreatedAt:        now,
	}
	if err := q.backend.Schedule(ctx, job); err != nil {
		q.log.WithError(err).WithField("job", name).Error("Failed to enqueue job")
		return "", fmt.Errorf("failed to enqueue %s job: %w", name, err)
	}

	q.log.WithFields(logrus.Fields{
		"job":    name,
		"job_id": job.ID,
		"due_at": job.DueAt.Format(time.RFC3339),
	}).Info("Job enqueued")
	return job.ID, nil
}

// Cancel removes a job that has not started yet and reports whether it did.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	if q.closed.Load() {
		return false, ErrClosed
	}
	ok, err := q.backend.Cancel(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	if ok {
		q.log.WithField("job_id", id).Info("Job cancelled")
	}
	return ok, nil
}

// Failed lists retained jobs named name that exhausted their attempts.
func (q *Queue) Failed(ctx context.Context, name string) ([]Job, error) {
	if q.closed.Load() {
		return nil, ErrClosed
	}
	return q.backend.Failed(ctx, name)
}

// Close stops accepting work and releases the backend.
func (q *Queue) Close() error {
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	return q.backend.Close()
}
