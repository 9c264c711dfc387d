package domain

import (
	"strings"
	"time"
)

// Platform identifies the contest platform a record was scraped from.
type Platform string

const (
	PlatformCodeforces  Platform = "Codeforces"
	PlatformCodechef    Platform = "Codechef"
	PlatformLeetcode    Platform = "Leetcode"
	PlatformAtcoder     Platform = "Atcoder"
	PlatformHackerRank  Platform = "HackerRank"
	PlatformHackerEarth Platform = "HackerEarth"
)

// Platforms lists every platform a Contest may carry.
var Platforms = []Platform{
	PlatformCodeforces,
	PlatformCodechef,
	PlatformLeetcode,
	PlatformAtcoder,
	PlatformHackerRank,
	PlatformHackerEarth,
}

// ParsePlatform matches s against the known platforms, ignoring case.
func ParsePlatform(s string) (Platform, bool) {
	s = strings.TrimSpace(s)
	for _, p := range Platforms {
		if strings.EqualFold(string(p), s) {
			return p, true
		}
	}
	return "", false
}

// Contest is the canonical record for one contest. Name is the dedup key.
type Contest struct {
	// Name uniquely identifies the contest across every source.
	Name string `json:"name"`

	Platform Platform `json:"platform"`

	// URL points at the contest page on its platform.
	URL string `json:"url"`

	// StartTime is always stored in UTC.
	StartTime time.Time `json:"start_time"`

	// Duration is formatted as HH:MM.
	Duration string `json:"duration"`

	// DiscussionLink is a post-contest discussion video, set by the backfill pass.
	DiscussionLink string `json:"discussion_link,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContestFields is a partial update. Nil fields are left untouched by Apply.
type ContestFields struct {
	Platform       *Platform
	URL            *string
	StartTime      *time.Time
	Duration       *string
	DiscussionLink *string
}

// ScrapedFields builds the update a source adapter writes on every scrape.
// It deliberately leaves DiscussionLink unset.
func ScrapedFields(platform Platform, url string, start time.Time, duration string) ContestFields {
	start = start.UTC()
	return ContestFields{
		Platform:  &platform,
		URL:       &url,
		StartTime: &start,
		Duration:  &duration,
	}
}

// DiscussionLinkFields builds the update written by the backfill pass.
func DiscussionLinkFields(link string) ContestFields {
	return ContestFields{DiscussionLink: &link}
}

// Empty reports whether the update carries no field at all.
func (f ContestFields) Empty() bool {
	return f.Platform == nil && f.URL == nil && f.StartTime == nil && f.Duration == nil && f.DiscussionLink == nil
}

// Apply overwrites every field present in f onto c and reports whether
// anything changed.
func (c *Contest) Apply(f ContestFields) bool {
	changed := false
	if f.Platform != nil && *f.Platform != c.Platform {
		c.Platform = *f.Platform
		changed = true
	}
	if f.URL != nil && *f.URL != c.URL {
		c.URL = *f.URL
		changed = true
	}
	if f.StartTime != nil && !f.StartTime.Equal(c.StartTime) {
		c.StartTime = f.StartTime.UTC()
		changed = true
	}
	if f.Duration != nil && *f.Duration != c.Duration {
		c.Duration = *f.Duration
		changed = true
	}
	if f.DiscussionLink != nil && *f.DiscussionLink != c.DiscussionLink {
		c.DiscussionLink = *f.DiscussionLink
		changed = true
	}
	return changed
}
