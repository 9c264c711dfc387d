package storage

import (
	"context"
	"errors"
	"time"

	"contesthub/internal/domain"
)

var (
	// ErrNotFound is returned when a contest or bookmark does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a bookmark that is already stored.
	ErrAlreadyExists = errors.New("already exists")
)

// ContestFilter selects and pages contests for ListContests.
// Zero values mean "no constraint"; Page and Limit default to 1 and 100.
type ContestFilter struct {
	Platform    domain.Platform
	StartAfter  time.Time
	StartBefore time.Time
	Page        int
	Limit       int
}

// ContestPage is one page of contests sorted by start time.
type ContestPage struct {
	Contests   []domain.Contest `json:"contests"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

// ContestRepository is the canonical contest store.
type ContestRepository interface {
	// UpsertContest creates the contest if name is unknown, otherwise it
	// overwrites the fields present in f and leaves the others untouched.
	UpsertContest(ctx context.Context, name string, f domain.ContestFields) (domain.Contest, error)

	// FindContestByName returns ErrNotFound when no contest has that exact name.
	FindContestByName(ctx context.Context, name string) (domain.Contest, error)

	// ListContests returns contests matching filter, ordered by start time.
	ListContests(ctx context.Context, filter ContestFilter) (ContestPage, error)
}

// BookmarkRepository stores user bookmarks.
type BookmarkRepository interface {
	// CreateBookmark fails with ErrAlreadyExists if the (user, contest) pair is taken.
	CreateBookmark(ctx context.Context, b domain.Bookmark) error

	// SaveBookmark stores b, overwriting any existing bookmark for the pair.
	SaveBookmark(ctx context.Context, b domain.Bookmark) error

	GetBookmark(ctx context.Context, userID int64, contestName string) (domain.Bookmark, error)

	// DeleteBookmark removes the bookmark and returns it, or ErrNotFound.
	DeleteBookmark(ctx context.Context, userID int64, contestName string) (domain.Bookmark, error)

	// ListBookmarksByUser returns the user's bookmarks, newest first.
	ListBookmarksByUser(ctx context.Context, userID int64) ([]domain.Bookmark, error)
}

// Repository is the full storage surface.
type Repository interface {
	ContestRepository
	BookmarkRepository

	// Close gracefully shuts down the repository connection.
	Close() error
}
