package reminder

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/notify"
	"contesthub/internal/queue"
)

// StartTimeLayout is how contest start times appear in reminders.
const StartTimeLayout = "Mon, 02 Jan 2006 15:04 MST"

// Worker delivers due reminder jobs.
type Worker struct {
	dispatcher notify.Dispatcher
	loc        *time.Location
	log        logrus.FieldLogger
}

// NewWorker renders start times in loc, or UTC when loc is nil.
func NewWorker(d notify.Dispatcher, loc *time.Location, logger logrus.FieldLogger) *Worker {
	if loc == nil {
		loc = time.UTC
	}
	return &Worker{
		dispatcher: d,
		loc:        loc,
		log:        logger.WithField("component", "reminder_worker"),
	}
}

// Register attaches the handler and lifecycle logging to qw.
func (w *Worker) Register(qw *queue.Worker) {
	qw.Consume(JobName, w.Handle)
	qw.OnCompleted(func(job queue.Job) {
		if job.Name != JobName {
			return
		}
		w.log.WithField("job_id", job.ID).Info("Reminder sent")
	})
	qw.OnFailed(func(job queue.Job, err error) {
		if job.Name != JobName {
			return
		}
		w.log.WithError(err).WithFields(logrus.Fields{
			"job_id":        job.ID,
			"attempt":       job.Attempts,
			"attempts_left": job.AttemptsLeft(),
		}).Error("Reminder delivery failed")
	})
}

// Handle sends the reminder carried by job. Dispatch errors are returned so
// the queue's retry policy applies.
func (w *Worker) Handle(ctx context.Context, job queue.Job) error {
	var p domain.ReminderPayload
	if err := job.Decode(&p); err != nil {
		return fmt.Errorf("invalid reminder payload: %w", err)
	}
	w.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"recipient": p.Recipient,
		"contest":   p.ContestTitle,
	}).Info("Sending contest reminder")

	return w.dispatcher.Send(ctx, BuildMessage(p, w.loc))
}

// BuildMessage renders the reminder for p.
func BuildMessage(p domain.ReminderPayload, loc *time.Location) notify.Message {
	if loc == nil {
		loc = time.UTC
	}
	start := p.StartTime.In(loc).Format(StartTimeLayout)
	title := html.EscapeString(p.ContestTitle)

	return notify.Message{
		To:      p.Recipient,
		Subject: fmt.Sprintf("Reminder: %s starts soon!", p.ContestTitle),
		Text:    fmt.Sprintf("Reminder: %s is starting at %s. Join here: %s", p.ContestTitle, start, p.ContestURL),
		HTML: fmt.Sprintf("<b>Upcoming Contest Reminder</b>\n\n"+
			"The contest <b>%s</b> is starting at <b>%s</b>.\n"+
			"Click <a href=\"%s\">here</a> to join.\n\n"+
			"Best of luck!",
			title, html.EscapeString(start), html.EscapeString(p.ContestURL)),
	}
}
