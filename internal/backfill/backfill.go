// Package backfill attaches post-contest discussion videos to contests that
// are already in the store.
package backfill

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
	"contesthub/internal/storage"
)

// DefaultWindow is how many recent videos are inspected per playlist.
const DefaultWindow = 5

var titleRe = regexp.MustCompile(`(?i)^(Leetcode|CodeChef|Codeforces)\s+(.+?)\s*\|`)

// ExtractContestName returns the contest name embedded in a
// "<Platform> <Contest Name> | ..." video title.
func ExtractContestName(title string) (string, bool) {
	m := titleRe.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[2])
	return name, name != ""
}

// Store is the slice of the contest store the backfill needs. UpsertContest
// is only called for names FindContestByName has resolved.
type Store interface {
	FindContestByName(ctx context.Context, name string) (domain.Contest, error)
	UpsertContest(ctx context.Context, name string, f domain.ContestFields) (domain.Contest, error)
}

// PlatformReport counts what happened to one playlist.
type PlatformReport struct {
	Platform domain.Platform `json:"platform"`
	Videos   int             `json:"videos"`
	Linked   int             `json:"linked"`
	Skipped  int             `json:"skipped"`
	Error    string          `json:"error,omitempty"`
}

// Report is the outcome of one backfill pass.
type Report struct {
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	Platforms []PlatformReport `json:"platforms"`
}

// Linked sums linked videos across platforms.
func (r Report) Linked() int {
	n := 0
	for _, p := range r.Platforms {
		n += p.Linked
	}
	return n
}

// Backfiller matches playlist videos to stored contests.
type Backfiller struct {
	videos    VideoLister
	store     Store
	playlists map[domain.Platform]string
	window    int
	log       logrus.FieldLogger
}

// New creates a Backfiller over playlists keyed by platform. Platforms with an
// empty playlist id are ignored.
func New(videos VideoLister, store Store, playlists map[domain.Platform]string, window int, logger logrus.FieldLogger) *Backfiller {
	if window <= 0 {
		window = DefaultWindow
	}
	pl := make(map[domain.Platform]string, len(playlists))
	for p, id := range playlists {
		if id != "" {
			pl[p] = id
		}
	}
	return &Backfiller{
		videos:    videos,
		store:     store,
		playlists: pl,
		window:    window,
		log:       logger.WithField("component", "backfill"),
	}
}

// Run inspects the most recent window of videos of every playlist. A failing
// playlist is recorded in its platform report and the others still run.
func (b *Backfiller) Run(ctx context.Context) Report {
	report := Report{StartedAt: time.Now().UTC()}

	platforms := make([]domain.Platform, 0, len(b.playlists))
	for p := range b.playlists {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	for _, p := range platforms {
		if ctx.Err() != nil {
			break
		}
		report.Platforms = append(report.Platforms, b.runPlatform(ctx, p, b.playlists[p]))
	}

	report.Duration = time.Since(report.StartedAt)
	b.log.WithFields(logrus.Fields{
		"platforms": len(report.Platforms),
		"linked":    report.Linked(),
	}).Info("Backfill pass finished")
	return report
}

func (b *Backfiller) runPlatform(ctx context.Context, platform domain.Platform, playlistID string) PlatformReport {
	pr := PlatformReport{Platform: platform}
	log := b.log.WithFields(logrus.Fields{"platform": platform, "playlist": playlistID})

	videos, err := b.videos.RecentVideos(ctx, playlistID, b.window)
	if err != nil {
		log.WithError(err).Error("Failed to list playlist videos")
		pr.Error = err.Error()
		return pr
	}
	if len(videos) > b.window {
		videos = videos[:b.window]
	}
	pr.Videos = len(videos)

	for _, v := range videos {
		name, ok := ExtractContestName(v.Title)
		if !ok {
			pr.Skipped++
			continue
		}
		vlog := log.WithFields(logrus.Fields{"contest": name, "video": v.ID})

		if _, err := b.store.FindContestByName(ctx, name); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				vlog.Info("No stored contest for video, skipping")
			} else {
				vlog.WithError(err).Error("Failed to look up contest")
			}
			pr.Skipped++
			continue
		}

		if _, err := b.store.UpsertContest(ctx, name, domain.DiscussionLinkFields(v.URL())); err != nil {
			vlog.WithError(err).Error("Failed to set discussion link")
			pr.Skipped++
			continue
		}
		vlog.Debug("Discussion link set")
		pr.Linked++
	}
	return pr
}
