// Package orchestrator drives periodic ingestion cycles across every source
// followed by the discussion-link backfill.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"contesthub/internal/backfill"
	"contesthub/internal/ingest"
	"contesthub/internal/source"
)

// DefaultInterval is the time between two scrape cycles.
const DefaultInterval = 12 * time.Hour

// Ingester runs one adapter through normalization and into the store.
type Ingester interface {
	Ingest(ctx context.Context, adapter source.Adapter) ingest.SourceResult
}

// BackfillRunner runs one discussion-link backfill pass.
type BackfillRunner interface {
	Run(ctx context.Context) backfill.Report
}

// CycleReport aggregates the per-source results of one cycle.
type CycleReport struct {
	StartedAt time.Time             `json:"started_at"`
	Duration  time.Duration         `json:"duration"`
	Sources   []ingest.SourceResult `json:"sources"`
	Backfill  *backfill.Report      `json:"backfill,omitempty"`
}

// Failed lists the sources whose ingestion failed outright.
func (r CycleReport) Failed() []string {
	var out []string
	for _, s := range r.Sources {
		if s.Status == ingest.StatusFailure {
			out = append(out, s.Source)
		}
	}
	return out
}

// Orchestrator owns the scrape schedule.
type Orchestrator struct {
	sources  []source.Adapter
	ingester Ingester
	backfill BackfillRunner
	interval time.Duration
	log      logrus.FieldLogger

	running atomic.Bool
	mu      sync.RWMutex
	last    *CycleReport

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an orchestrator. bf may be nil to disable the backfill step.
func New(sources []source.Adapter, ingester Ingester, bf BackfillRunner, interval time.Duration, logger logrus.FieldLogger) *Orchestrator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Orchestrator{
		sources:  sources,
		ingester: ingester,
		backfill: bf,
		interval: interval,
		log:      logger.WithField("component", "orchestrator"),
		stopCh:   make(chan struct{}),
	}
}

// RunCycle ingests every source in order, then runs the backfill. A source
// that fails or panics is recorded and the cycle moves on.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{StartedAt: time.Now().UTC()}
	o.log.WithField("sources", len(o.sources)).Info("Scrape cycle started")

	for _, a := range o.sources {
		if ctx.Err() != nil {
			o.log.WithError(ctx.Err()).Warn("Scrape cycle interrupted")
			break
		}
		report.Sources = append(report.Sources, o.runSource(ctx, a))
	}

	if o.backfill != nil && ctx.Err() == nil {
		if bf, ok := o.runBackfill(ctx); ok {
			report.Backfill = &bf
		}
	}

	report.Duration = time.Since(report.StartedAt)
	o.mu.Lock()
	o.last = &report
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"duration": report.Duration.String(),
		"failed":   report.Failed(),
	}).Info("Scrape cycle finished")
	return report
}

func (o *Orchestrator) runSource(ctx context.Context, a source.Adapter) (res ingest.SourceResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("source %s panicked: %v", a.Name(), r)
			o.log.WithField("source", a.Name()).WithError(err).Error("Recovered from source panic")
			res = ingest.SourceResult{
				Source: a.Name(),
				Status: ingest.StatusFailure,
				Err:    err,
				Error:  err.Error(),
			}
		}
	}()
	return o.ingester.Ingest(ctx, a)
}

func (o *Orchestrator) runBackfill(ctx context.Context) (report backfill.Report, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.log.WithField("panic", r).Error("Recovered from backfill panic")
			ok = false
		}
	}()
	return o.backfill.Run(ctx), true
}

// TryRunCycle runs a cycle unless one is already in progress.
func (o *Orchestrator) TryRunCycle(ctx context.Context) (CycleReport, bool) {
	if !o.running.CompareAndSwap(false, true) {
		o.log.Warn("Previous scrape cycle still running, skipping trigger")
		return CycleReport{}, false
	}
	defer o.running.Store(false)
	return o.RunCycle(ctx), true
}

// Start runs a cycle right away and then one per interval until Stop is
// called or ctx is done. It does not block.
func (o *Orchestrator) Start(ctx context.Context) {
	o.log.WithField("interval", o.interval.String()).Info("Starting scrape schedule")

	ticker := time.NewTicker(o.interval)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer ticker.Stop()

		o.TryRunCycle(ctx)
		for {
			select {
			case <-ticker.C:
				o.wg.Add(1)
				go func() {
					defer o.wg.Done()
					o.TryRunCycle(ctx)
				}()
			case <-o.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the schedule and waits for a running cycle to return.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
	o.log.Info("Scrape schedule stopped")
}

// LastReport returns the most recent cycle report, if any.
func (o *Orchestrator) LastReport() (CycleReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return CycleReport{}, false
	}
	return *o.last, true
}
