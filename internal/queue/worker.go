package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler processes one job. A non-nil error counts as a failed attempt.
type Handler func(ctx context.Context, job Job) error

// WorkerOptions configures a Worker.
type WorkerOptions struct {
	Concurrency  int
	PollInterval time.Duration
}

// Worker is the consumer side. Each of its goroutines reserves due jobs and
// runs the handler registered for the job name.
type Worker struct {
	q    *Queue
	opts WorkerOptions
	log  logrus.FieldLogger

	mu          sync.RWMutex
	handlers    map[string]Handler
	onCompleted []func(Job)
	onFailed    []func(Job, error)
}

func NewWorker(q *Queue, opts WorkerOptions, logger logrus.FieldLogger) *Worker {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Worker{
		q:        q,
		opts:     opts,
		log:      logger.WithField("component", "worker"),
		handlers: make(map[string]Handler),
	}
}

// Consume registers h for jobs named name.
func (w *Worker) Consume(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

// OnCompleted registers fn to run after a job succeeds.
func (w *Worker) OnCompleted(fn func(Job)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onCompleted = append(w.onCompleted, fn)
}

// OnFailed registers fn to run after every failed attempt. job.State is
// StatePending when a retry is scheduled and StateFailed after the last one.
func (w *Worker) OnFailed(fn func(Job, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFailed = append(w.onFailed, fn)
}

// Run processes jobs until ctx is cancelled, then waits for in-flight
// handlers to return.
func (w *Worker) Run(ctx context.Context) {
	w.log.WithField("concurrency", w.opts.Concurrency).Info("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, w.log.WithField("slot", slot))
		}(i)
	}
	wg.Wait()
	w.log.Info("Worker stopped")
}

func (w *Worker) loop(ctx context.Context, log logrus.FieldLogger) {
	for ctx.Err() == nil {
		processed, err := w.ProcessNext(ctx)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Failed to process job")
		}
		if processed {
			continue
		}

		timer := time.NewTimer(w.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// ProcessNext handles at most one due job and reports whether it found one.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if w.q.closed.Load() {
		return false, ErrClosed
	}

	for _, name := range w.names() {
		job, err := w.q.backend.Reserve(ctx, name, w.q.now())
		if err != nil {
			return false, err
		}
		if job == nil {
			continue
		}
		return true, w.handle(ctx, *job)
	}
	return false, nil
}

func (w *Worker) names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.handlers))
	for n := range w.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (w *Worker) handle(ctx context.Context, job Job) error {
	w.mu.RLock()
	h := w.handlers[job.Name]
	w.mu.RUnlock()

	log := w.log.WithFields(logrus.Fields{
		"job":     job.Name,
		"job_id":  job.ID,
		"attempt": job.Attempts + 1,
	})
	log.Debug("Processing job")

	attempt := job
	attempt.Attempts++
	herr := runHandler(ctx, h, attempt)
	// A reserved job is always written back, even after ctx is cancelled.
	wctx := context.WithoutCancel(ctx)
	now := w.q.now().UTC()

	if herr != nil && ctx.Err() != nil {
		// Interrupted by shutdown: hand the job back without spending an attempt.
		job.State = StatePending
		log.WithError(herr).Info("Job interrupted, returned to the schedule")
		return w.q.backend.Schedule(wctx, job)
	}

	job.Attempts++
	if herr == nil {
		job.State = StateCompleted
		job.FinishedAt = &now
		job.LastError = ""
		var err error
		if job.RemoveOnComplete {
			err = w.q.backend.Delete(wctx, job.ID)
		} else {
			err = w.q.backend.Finish(wctx, job)
		}
		w.emitCompleted(job)
		return err
	}

	job.LastError = herr.Error()
	if job.Attempts < job.MaxAttempts {
		job.State = StatePending
		job.DueAt = now.Add(job.retryDelay())
		log.WithError(herr).WithField("retry_at", job.DueAt.Format(time.RFC3339)).Warn("Job attempt failed, retrying")
		err := w.q.backend.Schedule(wctx, job)
		w.emitFailed(job, herr)
		return err
	}

	job.State = StateFailed
	job.FinishedAt = &now
	log.WithError(herr).Error("Job failed permanently")
	var err error
	if job.RemoveOnFail {
		err = w.q.backend.Delete(wctx, job.ID)
	} else {
		err = w.q.backend.Finish(wctx, job)
	}
	w.emitFailed(job, herr)
	return err
}

func runHandler(ctx context.Context, h Handler, job Job) (err error) {
	if h == nil {
		return fmt.Errorf("no handler registered for %q", job.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (w *Worker) emitCompleted(job Job) {
	w.mu.RLock()
	fns := w.onCompleted
	w.mu.RUnlock()
	for _, fn := range fns {
		fn(job)
	}
}

func (w *Worker) emitFailed(job Job, err error) {
	w.mu.RLock()
	fns := w.onFailed
	w.mu.RUnlock()
	for _, fn := range fns {
		fn(job, err)
	}
}
