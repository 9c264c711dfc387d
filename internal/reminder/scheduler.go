// Package reminder schedules and delivers contest reminders for bookmarks.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/queue"
	"contesthub/internal/storage"
)

// JobName is the queue name reminder jobs are enqueued under.
const JobName = "contest-reminder"

const (
	DefaultLead        = 15 * time.Minute
	DefaultMaxAttempts = 3
)

// ErrAlreadyBookmarked is returned when the user already bookmarked the contest.
var ErrAlreadyBookmarked = errors.New("contest already bookmarked")

// Recipient identifies who gets the reminder and where it is sent.
type Recipient struct {
	UserID  int64
	Address string
}

// Store is the storage surface the scheduler needs.
type Store interface {
	FindContestByName(ctx context.Context, name string) (domain.Contest, error)
	CreateBookmark(ctx context.Context, b domain.Bookmark) error
	SaveBookmark(ctx context.Context, b domain.Bookmark) error
	DeleteBookmark(ctx context.Context, userID int64, contestName string) (domain.Bookmark, error)
	ListBookmarksByUser(ctx context.Context, userID int64) ([]domain.Bookmark, error)
}

// Enqueuer is the producer side of the delayed queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts queue.Options) (string, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// Options tunes reminder scheduling.
type Options struct {
	Lead        time.Duration
	MaxAttempts int
	Backoff     time.Duration
}

// Scheduler turns bookmarks into delayed reminder jobs.
type Scheduler struct {
	store Store
	queue Enqueuer
	opts  Options
	now   func() time.Time
	log   logrus.FieldLogger
}

func NewScheduler(store Store, q Enqueuer, opts Options, logger logrus.FieldLogger) *Scheduler {
	if opts.Lead <= 0 {
		opts.Lead = DefaultLead
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Scheduler{
		store: store,
		queue: q,
		opts:  opts,
		now:   time.Now,
		log:   logger.WithField("component", "reminder_scheduler"),
	}
}

// FireTime is custom when set, otherwise lead before start.
func FireTime(start time.Time, custom *time.Time, lead time.Duration) time.Time {
	if custom != nil && !custom.IsZero() {
		return custom.UTC()
	}
	return start.Add(-lead).UTC()
}

// Bookmark stores a bookmark for r on contestName and enqueues its reminder
// when the fire time is still ahead. A fire time already in the past is not
// an error: the bookmark is kept without a job.
func (s *Scheduler) Bookmark(ctx context.Context, r Recipient, contestName string, custom *time.Time) (domain.Bookmark, error) {
	log := s.log.WithFields(logrus.Fields{"user_id": r.UserID, "contest": contestName})

	contest, err := s.store.FindContestByName(ctx, contestName)
	if err != nil {
		return domain.Bookmark{}, fmt.Errorf("failed to find contest %q: %w", contestName, err)
	}

	now := s.now().UTC()
	b := domain.Bookmark{
		UserID:      r.UserID,
		Recipient:   r.Address,
		ContestName: contest.Name,
		ReminderAt:  FireTime(contest.StartTime, custom, s.opts.Lead),
		CreatedAt:   now,
	}
	if b.Recipient == "" {
		b.Recipient = strconv.FormatInt(r.UserID, 10)
	}

	if err := s.store.CreateBookmark(ctx, b); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return domain.Bookmark{}, ErrAlreadyBookmarked
		}
		return domain.Bookmark{}, err
	}

	delay := b.ReminderAt.Sub(now)
	if delay <= 0 {
		log.WithField("reminder_at", b.ReminderAt.Format(time.RFC3339)).Info("Reminder time already passed, no job enqueued")
		return b, nil
	}

	payload := domain.ReminderPayload{
		Recipient:    b.Recipient,
		ContestTitle: contest.Name,
		ContestURL:   contest.URL,
		StartTime:    contest.StartTime,
	}
	id, err := s.queue.Enqueue(ctx, JobName, payload, queue.Options{
		Delay:            delay,
		MaxAttempts:      s.opts.MaxAttempts,
		Backoff:          s.opts.Backoff,
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	})
	if err != nil {
		if _, derr := s.store.DeleteBookmark(ctx, b.UserID, b.ContestName); derr != nil {
			log.WithError(derr).Error("Failed to roll back bookmark")
		}
		return domain.Bookmark{}, fmt.Errorf("failed to schedule reminder: %w", err)
	}

	b.JobID = id
	if err := s.store.SaveBookmark(ctx, b); err != nil {
		if _, cerr := s.queue.Cancel(ctx, id); cerr != nil {
			log.WithError(cerr).WithField("job_id", id).Error("Failed to cancel orphaned reminder")
		}
		if _, derr := s.store.DeleteBookmark(ctx, b.UserID, b.ContestName); derr != nil {
			log.WithError(derr).Error("Failed to roll back bookmark")
		}
		return domain.Bookmark{}, fmt.Errorf("failed to save bookmark: %w", err)
	}
	log.WithFields(logrus.Fields{
		"job_id": id,
		"delay":  delay.String(),
	}).Info("Reminder scheduled")
	return b, nil
}

// Unbookmark deletes the bookmark and cancels its reminder if the job has
// not started yet. It reports whether a job was cancelled.
func (s *Scheduler) Unbookmark(ctx context.Context, userID int64, contestName string) (bool, error) {
	b, err := s.store.DeleteBookmark(ctx, userID, contestName)
	if err != nil {
		return false, err
	}
	if b.JobID == "" {
		return false, nil
	}

	cancelled, err := s.queue.Cancel(ctx, b.JobID)
	if err != nil {
		s.log.WithError(err).WithField("job_id", b.JobID).Warn("Failed to cancel reminder")
		return false, nil
	}
	return cancelled, nil
}

// Bookmarks lists a user's bookmarks, newest first.
func (s *Scheduler) Bookmarks(ctx context.Context, userID int64) ([]domain.Bookmark, error) {
	return s.store.ListBookmarksByUser(ctx, userID)
}
