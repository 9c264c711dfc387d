// Package ingest runs a source adapter's output through time normalization
// and into the canonical contest store.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/normalize"
	"contesthub/internal/source"
)

// Status summarizes how one source fared in a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// Upserter is the slice of the store the pipeline writes through.
type Upserter interface {
	UpsertContest(ctx context.Context, name string, f domain.ContestFields) (domain.Contest, error)
}

// SourceResult is the structured outcome of ingesting one source.
type SourceResult struct {
	Source    string        `json:"source"`
	Status    Status        `json:"status"`
	Fetched   int           `json:"fetched"`
	Upserted  int           `json:"upserted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Err error `json:"-"`
}

// Pipeline normalizes candidates and upserts the valid ones.
type Pipeline struct {
	store Upserter
	norm  *normalize.Normalizer
	log   logrus.FieldLogger
}

func NewPipeline(store Upserter, norm *normalize.Normalizer, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		store: store,
		norm:  norm,
		log:   logger.WithField("component", "ingest"),
	}
}

// Ingest fetches from adapter and stores every candidate with a name and a
// resolvable start time. Fetch errors end up in the result, not as a panic
// or a return value.
func (p *Pipeline) Ingest(ctx context.Context, adapter source.Adapter) SourceResult {
	res := SourceResult{Source: adapter.Name(), StartedAt: time.Now().UTC()}
	log := p.log.WithField("source", res.Source)

	candidates, err := adapter.Fetch(ctx)
	if err != nil {
		log.WithError(err).Error("Source fetch failed")
		res.Status = StatusFailure
		res.Err = err
		res.Error = err.Error()
		return finish(res)
	}
	res.Fetched = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			res.Error = ctx.Err().Error()
			break
		}
		p.ingestOne(ctx, log, c, &res)
	}

	res.Status = status(res)
	log.WithFields(logrus.Fields{
		"status":   res.Status,
		"fetched":  res.Fetched,
		"upserted": res.Upserted,
		"skipped":  res.Skipped,
		"failed":   res.Failed,
	}).Info("Source ingested")
	return finish(res)
}

func (p *Pipeline) ingestOne(ctx context.Context, log logrus.FieldLogger, c source.Candidate, res *SourceResult) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		log.WithField("url", c.URL).Debug("Skipping candidate without a name")
		res.Skipped++
		return
	}
	clog := log.WithField("contest", name)

	norm, err := p.norm.Normalize(c.Start, c.Duration)
	if err != nil {
		clog.WithError(err).Warn("Skipping candidate with unresolved start time")
		res.Skipped++
		return
	}

	fields := domain.ScrapedFields(c.Platform, c.URL, norm.Start, norm.Duration)
	if _, err := p.store.UpsertContest(ctx, name, fields); err != nil {
		clog.WithError(err).Error("Failed to store contest")
		res.Failed++
		return
	}
	res.Upserted++
}

func status(res SourceResult) Status {
	switch {
	case res.Err != nil && res.Upserted == 0:
		return StatusFailure
	case res.Fetched > 0 && res.Upserted == 0:
		return StatusFailure
	case res.Skipped > 0 || res.Failed > 0 || res.Err != nil:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

func finish(res SourceResult) SourceResult {
	res.Duration = time.Since(res.StartedAt)
	return res
}
