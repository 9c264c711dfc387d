package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contesthub/internal/domain"
	"contesthub/internal/normalize"
	"contesthub/internal/source"
	"contesthub/internal/storage"
)

type stubAdapter struct {
	name  string
	batch []source.Candidate
	err   error
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Fetch(ctx context.Context) ([]source.Candidate, error) {
	return s.batch, s.err
}

var fixedNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Pipeline, *storage.BadgerRepository) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	repo, err := storage.NewBadgerRepository(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, repo.Close()) })

	norm := normalize.New(
		normalize.WithClock(func() time.Time { return fixedNow }),
		normalize.WithLocation(time.UTC),
	)
	return NewPipeline(repo, norm, logger), repo
}

func weeklyX(url string) source.Candidate {
	return source.Candidate{
		Name:     "Weekly X",
		URL:      url,
		Platform: domain.PlatformLeetcode,
		Start:    normalize.WeekdayClock("Sunday 8:00 AM GMT+5:30"),
		Duration: normalize.FixedDuration("01:30"),
	}
}

func TestIngest_SequentialScrapesConverge(t *testing.T) {
	p, repo := setup(t)
	ctx := context.Background()

	first := p.Ingest(ctx, &stubAdapter{name: "leetcode", batch: []source.Candidate{weeklyX("https://leetcode.com/contest/x-1")}})
	require.Equal(t, StatusSuccess, first.Status)

	second := p.Ingest(ctx, &stubAdapter{name: "leetcode", batch: []source.Candidate{weeklyX("https://leetcode.com/contest/x-2")}})
	require.Equal(t, StatusSuccess, second.Status)

	page, err := repo.ListContests(ctx, storage.ContestFilter{})
	require.NoError(t, err)
	require.Len(t, page.Contests, 1)
	assert.Equal(t, "Weekly X", page.Contests[0].Name)
	assert.Equal(t, "https://leetcode.com/contest/x-2", page.Contests[0].URL)
	assert.Equal(t, time.Date(2026, 10, 25, 2, 30, 0, 0, time.UTC), page.Contests[0].StartTime)
}

func TestIngest_EpochCandidate(t *testing.T) {
	p, repo := setup(t)
	ctx := context.Background()

	res := p.Ingest(ctx, &stubAdapter{name: "codeforces", batch: []source.Candidate{{
		Name:     "Codeforces Round 990",
		URL:      "https://codeforces.com/contest/2040",
		Platform: domain.PlatformCodeforces,
		Start:    normalize.Epoch(1700000000),
		Duration: normalize.SecondsDuration(7200),
	}}})
	require.Equal(t, StatusSuccess, res.Status)

	c, err := repo.FindContestByName(ctx, "Codeforces Round 990")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), c.StartTime)
	assert.Equal(t, "02:00", c.Duration)
}

func TestIngest_SkipsUnresolvedCandidates(t *testing.T) {
	p, repo := setup(t)
	ctx := context.Background()

	res := p.Ingest(ctx, &stubAdapter{name: "codechef", batch: []source.Candidate{
		{Name: "Starters 160", URL: "https://www.codechef.com/START160", Platform: domain.PlatformCodechef,
			Start: normalize.Relative("2 Days 5 Hrs"), Duration: normalize.FixedDuration("02:00")},
		{Name: "Garbage", Platform: domain.PlatformCodechef, Start: normalize.Relative("soon")},
		{Name: "  ", Platform: domain.PlatformCodechef, Start: normalize.Relative("1 Days 1 Hrs")},
	}})

	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 2, res.Skipped)

	_, err := repo.FindContestByName(ctx, "Garbage")
	assert.ErrorIs(t, err, storage.ErrNotFound, "unresolved times must never be written")

	c, err := repo.FindContestByName(ctx, "Starters 160")
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(53*time.Hour), c.StartTime)
}

func TestIngest_FetchFailure(t *testing.T) {
	p, _ := setup(t)

	boom := errors.New("navigation failed")
	res := p.Ingest(context.Background(), &stubAdapter{name: "leetcode", err: boom})

	assert.Equal(t, StatusFailure, res.Status)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, "navigation failed", res.Error)
	assert.Zero(t, res.Upserted)
}

func TestIngest_AllSkippedIsFailure(t *testing.T) {
	p, _ := setup(t)

	res := p.Ingest(context.Background(), &stubAdapter{name: "leetcode", batch: []source.Candidate{
		{Name: "A", Start: normalize.WeekdayClock("someday")},
	}})
	assert.Equal(t, StatusFailure, res.Status)
}

func TestIngest_EmptyListIsSuccess(t *testing.T) {
	p, _ := setup(t)

	res := p.Ingest(context.Background(), &stubAdapter{name: "codeforces"})
	assert.Equal(t, StatusSuccess, res.Status)
}
