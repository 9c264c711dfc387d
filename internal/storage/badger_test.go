package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contesthub/internal/domain"
)

// setupTestDB creates a temporary BadgerDB instance for testing.
// It returns the repository instance and a cleanup function.
func setupTestDB(t *testing.T) (*BadgerRepository, func()) {
	t.Helper()

	testLogger := logrus.New()
	testLogger.SetOutput(os.Stderr)
	testLogger.SetLevel(logrus.ErrorLevel)

	repo, err := NewBadgerRepository(t.TempDir(), testLogger)
	require.NoError(t, err, "Failed to create test BadgerDB repository")

	cleanup := func() {
		assert.NoError(t, repo.Close(), "Failed to close test BadgerDB repository")
	}
	return repo, cleanup
}

func scraped(url string, start time.Time) domain.ContestFields {
	return domain.ScrapedFields(domain.PlatformLeetcode, url, start, "01:30")
}

func TestBadgerRepository_UpsertCreatesThenOverwrites(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 10, 25, 2, 30, 0, 0, time.UTC)

	created, err := repo.UpsertContest(ctx, "Weekly X", scraped("https://leetcode.com/contest/a", start))
	require.NoError(t, err)
	assert.Equal(t, "Weekly X", created.Name)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = repo.UpsertContest(ctx, "Weekly X", scraped("https://leetcode.com/contest/b", start))
	require.NoError(t, err)

	page, err := repo.ListContests(ctx, ContestFilter{})
	require.NoError(t, err)
	require.Len(t, page.Contests, 1, "two scrapes of one name must converge on one record")
	assert.Equal(t, "https://leetcode.com/contest/b", page.Contests[0].URL)
	assert.Equal(t, created.CreatedAt, page.Contests[0].CreatedAt)
}

func TestBadgerRepository_UpsertIsIdempotent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	fields := scraped("https://leetcode.com/contest/weekly-300", time.Date(2026, 10, 25, 2, 30, 0, 0, time.UTC))

	first, err := repo.UpsertContest(ctx, "Weekly 300", fields)
	require.NoError(t, err)

	repo.now = func() time.Time { return time.Now().Add(time.Hour) }
	second, err := repo.UpsertContest(ctx, "Weekly 300", fields)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	stored, err := repo.FindContestByName(ctx, "Weekly 300")
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestBadgerRepository_UpsertPreservesDiscussionLink(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 10, 25, 2, 30, 0, 0, time.UTC)
	link := "https://www.youtube.com/watch?v=xyz"

	_, err := repo.UpsertContest(ctx, "Weekly 300", scraped("https://leetcode.com/contest/weekly-300", start))
	require.NoError(t, err)
	_, err = repo.UpsertContest(ctx, "Weekly 300", domain.DiscussionLinkFields(link))
	require.NoError(t, err)

	// A scrape re-run carries no discussion link and must not erase it.
	_, err = repo.UpsertContest(ctx, "Weekly 300", scraped("https://leetcode.com/contest/weekly-300/", start.Add(time.Hour)))
	require.NoError(t, err)

	stored, err := repo.FindContestByName(ctx, "Weekly 300")
	require.NoError(t, err)
	assert.Equal(t, link, stored.DiscussionLink)
	assert.Equal(t, "https://leetcode.com/contest/weekly-300/", stored.URL)
	assert.Equal(t, start.Add(time.Hour), stored.StartTime)
	assert.Equal(t, domain.PlatformLeetcode, stored.Platform)
}

func TestBadgerRepository_UpsertRejectsEmptyName(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.UpsertContest(context.Background(), "  ", domain.DiscussionLinkFields("x"))
	assert.Error(t, err)
}

func TestBadgerRepository_ConcurrentUpsertsConverge(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	start := time.Date(2026, 10, 25, 2, 30, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpsertContest(ctx, "Round 1", scraped("https://codeforces.com/contest/1", start))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	page, err := repo.ListContests(ctx, ContestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestBadgerRepository_FindContestByNameNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.FindContestByName(context.Background(), "Missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerRepository_ListContestsFiltersSortsAndPages(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		platform := domain.PlatformCodeforces
		if i%2 == 1 {
			platform = domain.PlatformCodechef
		}
		// Inserted in reverse start order to exercise sorting.
		_, err := repo.UpsertContest(ctx, fmt.Sprintf("Contest %d", i),
			domain.ScrapedFields(platform, "https://example.com", base.Add(time.Duration(5-i)*24*time.Hour), "02:00"))
		require.NoError(t, err)
	}

	all, err := repo.ListContests(ctx, ContestFilter{})
	require.NoError(t, err)
	require.Len(t, all.Contests, 5)
	for i := 1; i < len(all.Contests); i++ {
		assert.True(t, all.Contests[i-1].StartTime.Before(all.Contests[i].StartTime))
	}
	assert.Equal(t, "Contest 4", all.Contests[0].Name)

	cf, err := repo.ListContests(ctx, ContestFilter{Platform: domain.PlatformCodeforces})
	require.NoError(t, err)
	assert.Equal(t, 3, cf.Total)

	window, err := repo.ListContests(ctx, ContestFilter{
		StartAfter:  base.Add(2 * 24 * time.Hour),
		StartBefore: base.Add(4 * 24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, window.Total)

	paged, err := repo.ListContests(ctx, ContestFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, paged.Total)
	assert.Equal(t, 3, paged.TotalPages)
	require.Len(t, paged.Contests, 2)
	assert.Equal(t, "Contest 2", paged.Contests[0].Name)

	beyond, err := repo.ListContests(ctx, ContestFilter{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond.Contests)
}

func TestBadgerRepository_Bookmarks(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	older := domain.Bookmark{UserID: 1, Recipient: "1", ContestName: "Weekly 300", ReminderAt: now, CreatedAt: now.Add(-time.Hour)}
	newer := domain.Bookmark{UserID: 1, Recipient: "1", ContestName: "Round 1", ReminderAt: now, CreatedAt: now}
	other := domain.Bookmark{UserID: 12, Recipient: "12", ContestName: "Weekly 300", ReminderAt: now}

	require.NoError(t, repo.CreateBookmark(ctx, older))
	require.NoError(t, repo.CreateBookmark(ctx, newer))
	require.NoError(t, repo.CreateBookmark(ctx, other))

	err := repo.CreateBookmark(ctx, older)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	list, err := repo.ListBookmarksByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2, "user 12 must not leak into user 1's listing")
	assert.Equal(t, "Round 1", list[0].ContestName)
	assert.Equal(t, "Weekly 300", list[1].ContestName)

	older.JobID = "job-1"
	require.NoError(t, repo.SaveBookmark(ctx, older))
	got, err := repo.GetBookmark(ctx, 1, "Weekly 300")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)

	deleted, err := repo.DeleteBookmark(ctx, 1, "Weekly 300")
	require.NoError(t, err)
	assert.Equal(t, "job-1", deleted.JobID)

	_, err = repo.DeleteBookmark(ctx, 1, "Weekly 300")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetBookmark(ctx, 1, "Weekly 300")
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := repo.ListBookmarksByUser(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
