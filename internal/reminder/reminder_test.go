package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contesthub/internal/domain"
	"contesthub/internal/notify"
	"contesthub/internal/queue"
	"contesthub/internal/storage"
)

var fixedNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type enqueued struct {
	name    string
	payload any
	opts    queue.Options
}

type fakeQueue struct {
	enqueued  []enqueued
	cancelled []string
	err       error
}

func (f *fakeQueue) Enqueue(ctx context.Context, name string, payload any, opts queue.Options) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, enqueued{name, payload, opts})
	return "job-1", nil
}

func (f *fakeQueue) Cancel(ctx context.Context, id string) (bool, error) {
	f.cancelled = append(f.cancelled, id)
	return true, nil
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func setupRepo(t *testing.T) *storage.BadgerRepository {
	t.Helper()
	repo, err := storage.NewBadgerRepository(t.TempDir(), quiet())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repo.Close()) })
	return repo
}

func seedContest(t *testing.T, repo *storage.BadgerRepository, name string, start time.Time) {
	t.Helper()
	_, err := repo.UpsertContest(context.Background(), name,
		domain.ScrapedFields(domain.PlatformCodeforces, "https://codeforces.com/contest/2040", start, "02:00"))
	require.NoError(t, err)
}

func newScheduler(repo *storage.BadgerRepository, q Enqueuer) *Scheduler {
	s := NewScheduler(repo, q, Options{Backoff: 30 * time.Second}, quiet())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestFireTime(t *testing.T) {
	start := time.Date(2026, 10, 25, 14, 35, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 25, 14, 20, 0, 0, time.UTC), FireTime(start, nil, DefaultLead))

	custom := time.Date(2026, 10, 25, 9, 0, 0, 0, time.FixedZone("IST", 19800))
	assert.Equal(t, time.Date(2026, 10, 25, 3, 30, 0, 0, time.UTC), FireTime(start, &custom, DefaultLead))

	var zero time.Time
	assert.Equal(t, start.Add(-DefaultLead), FireTime(start, &zero, DefaultLead))
}

func TestScheduler_BookmarkEnqueuesDefaultReminder(t *testing.T) {
	repo := setupRepo(t)
	start := fixedNow.Add(2 * time.Hour)
	seedContest(t, repo, "Codeforces Round 990", start)

	q := &fakeQueue{}
	s := newScheduler(repo, q)

	b, err := s.Bookmark(context.Background(), Recipient{UserID: 7, Address: "7"}, "Codeforces Round 990", nil)
	require.NoError(t, err)
	assert.Equal(t, start.Add(-15*time.Minute), b.ReminderAt)
	assert.Equal(t, "job-1", b.JobID)

	require.Len(t, q.enqueued, 1)
	e := q.enqueued[0]
	assert.Equal(t, JobName, e.name)
	assert.Equal(t, queue.Options{
		Delay:            105 * time.Minute,
		MaxAttempts:      3,
		Backoff:          30 * time.Second,
		RemoveOnComplete: true,
		RemoveOnFail:     false,
	}, e.opts)
	assert.Equal(t, domain.ReminderPayload{
		Recipient:    "7",
		ContestTitle: "Codeforces Round 990",
		ContestURL:   "https://codeforces.com/contest/2040",
		StartTime:    start,
	}, e.payload)

	stored, err := repo.GetBookmark(context.Background(), 7, "Codeforces Round 990")
	require.NoError(t, err)
	assert.Equal(t, "job-1", stored.JobID)
}

func TestScheduler_PastReminderEnqueuesNothing(t *testing.T) {
	repo := setupRepo(t)
	seedContest(t, repo, "Starters 160", fixedNow.Add(10*time.Minute))

	q := &fakeQueue{}
	s := newScheduler(repo, q)

	b, err := s.Bookmark(context.Background(), Recipient{UserID: 7}, "Starters 160", nil)
	require.NoError(t, err)
	assert.Empty(t, q.enqueued)
	assert.Empty(t, b.JobID)
	assert.Equal(t, "7", b.Recipient)

	bookmarks, err := s.Bookmarks(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, bookmarks, 1, "the bookmark is kept even without a job")
}

func TestScheduler_CustomReminder(t *testing.T) {
	repo := setupRepo(t)
	seedContest(t, repo, "Weekly 300", fixedNow.Add(48*time.Hour))

	q := &fakeQueue{}
	s := newScheduler(repo, q)

	custom := fixedNow.Add(24 * time.Hour)
	b, err := s.Bookmark(context.Background(), Recipient{UserID: 1, Address: "1"}, "Weekly 300", &custom)
	require.NoError(t, err)
	assert.Equal(t, custom, b.ReminderAt)
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, 24*time.Hour, q.enqueued[0].opts.Delay)
}

func TestScheduler_BookmarkErrors(t *testing.T) {
	repo := setupRepo(t)
	seedContest(t, repo, "Weekly 300", fixedNow.Add(48*time.Hour))
	ctx := context.Background()

	s := newScheduler(repo, &fakeQueue{})
	_, err := s.Bookmark(ctx, Recipient{UserID: 1}, "Weekly 300", nil)
	require.NoError(t, err)

	_, err = s.Bookmark(ctx, Recipient{UserID: 1}, "Weekly 300", nil)
	assert.ErrorIs(t, err, ErrAlreadyBookmarked)

	_, err = s.Bookmark(ctx, Recipient{UserID: 1}, "Weekly 999", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	failing := newScheduler(repo, &fakeQueue{err: errors.New("redis down")})
	_, err = failing.Bookmark(ctx, Recipient{UserID: 2}, "Weekly 300", nil)
	require.Error(t, err)
	_, err = repo.GetBookmark(ctx, 2, "Weekly 300")
	assert.ErrorIs(t, err, storage.ErrNotFound, "bookmark is rolled back when the reminder cannot be queued")
}

type saveFailingStore struct {
	*storage.BadgerRepository
}

func (s saveFailingStore) SaveBookmark(ctx context.Context, b domain.Bookmark) error {
	return errors.New("disk full")
}

func TestScheduler_SaveFailureCancelsJob(t *testing.T) {
	repo := setupRepo(t)
	seedContest(t, repo, "Weekly 300", fixedNow.Add(48*time.Hour))
	ctx := context.Background()

	q := &fakeQueue{}
	s := NewScheduler(saveFailingStore{repo}, q, Options{}, quiet())
	s.now = func() time.Time { return fixedNow }

	_, err := s.Bookmark(ctx, Recipient{UserID: 1}, "Weekly 300", nil)
	require.ErrorContains(t, err, "disk full")
	require.Len(t, q.enqueued, 1)
	assert.Equal(t, []string{"job-1"}, q.cancelled)

	_, err = repo.GetBookmark(ctx, 1, "Weekly 300")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScheduler_UnbookmarkCancelsJob(t *testing.T) {
	repo := setupRepo(t)
	seedContest(t, repo, "Weekly 300", fixedNow.Add(48*time.Hour))
	seedContest(t, repo, "Starters 160", fixedNow.Add(time.Minute))
	ctx := context.Background()

	q := &fakeQueue{}
	s := newScheduler(repo, q)
	_, err := s.Bookmark(ctx, Recipient{UserID: 1}, "Weekly 300", nil)
	require.NoError(t, err)
	_, err = s.Bookmark(ctx, Recipient{UserID: 1}, "Starters 160", nil)
	require.NoError(t, err)

	cancelled, err := s.Unbookmark(ctx, 1, "Weekly 300")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, []string{"job-1"}, q.cancelled)

	cancelled, err = s.Unbookmark(ctx, 1, "Starters 160")
	require.NoError(t, err)
	assert.False(t, cancelled, "no job was enqueued for a past reminder")

	_, err = s.Unbookmark(ctx, 1, "Weekly 300")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(domain.ReminderPayload{
		Recipient:    "42",
		ContestTitle: "Div. 2 <Round>",
		ContestURL:   "https://codeforces.com/contest/2040",
		StartTime:    time.Date(2026, 10, 25, 14, 35, 0, 0, time.UTC),
	}, nil)

	assert.Equal(t, "42", msg.To)
	assert.Equal(t, "Reminder: Div. 2 <Round> starts soon!", msg.Subject)
	assert.Equal(t, "Reminder: Div. 2 <Round> is starting at Sun, 25 Oct 2026 14:35 UTC. Join here: https://codeforces.com/contest/2040", msg.Text)
	assert.Contains(t, msg.HTML, "<b>Div. 2 &lt;Round&gt;</b>")
	assert.Contains(t, msg.HTML, `<a href="https://codeforces.com/contest/2040">here</a>`)
	assert.Contains(t, msg.HTML, "Best of luck!")
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Message
	fail int
}

func (d *recordingDispatcher) Send(ctx context.Context, msg notify.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return errors.New("delivery failed")
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *recordingDispatcher) Sent() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Message(nil), d.sent...)
}

func TestReminder_EndToEndThroughQueue(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedContest(t, repo, "Weekly 300", time.Now().Add(time.Hour))

	q := queue.New(queue.NewBadgerBackend(repo.DB()), quiet())
	s := NewScheduler(repo, q, Options{MaxAttempts: 3}, quiet())

	disp := &recordingDispatcher{fail: 1}
	qw := queue.NewWorker(q, queue.WorkerOptions{}, quiet())
	NewWorker(disp, nil, quiet()).Register(qw)

	custom := time.Now().Add(20 * time.Millisecond)
	b, err := s.Bookmark(ctx, Recipient{UserID: 42, Address: "42"}, "Weekly 300", &custom)
	require.NoError(t, err)
	require.NotEmpty(t, b.JobID)

	// First attempt fails, the zero backoff retry succeeds.
	require.Eventually(t, func() bool {
		_, _ = qw.ProcessNext(ctx)
		return len(disp.Sent()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sent := disp.Sent()[0]
	assert.Equal(t, "42", sent.To)
	assert.Equal(t, "Reminder: Weekly 300 starts soon!", sent.Subject)

	failed, err := q.Failed(ctx, JobName)
	require.NoError(t, err)
	assert.Empty(t, failed)
}
