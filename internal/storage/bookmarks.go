package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
)

// CreateBookmark stores b unless the (user, contest) pair already exists.
func (r *BadgerRepository) CreateBookmark(ctx context.Context, b domain.Bookmark) error {
	log := r.bookmarkLog(b.UserID, b.ContestName)
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now().UTC()
	}

	key := bookmarkKey(b.UserID, b.ContestName)
	err := r.update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putJSON(txn, key, b)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return fmt.Errorf("bookmark %d/%q: %w", b.UserID, b.ContestName, ErrAlreadyExists)
		}
		log.WithError(err).Error("Failed to create bookmark")
		return fmt.Errorf("failed to create bookmark: %w", err)
	}

	log.Info("Bookmark created")
	return nil
}

// SaveBookmark stores or replaces b.
func (r *BadgerRepository) SaveBookmark(ctx context.Context, b domain.Bookmark) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now().UTC()
	}
	err := r.update(func(txn *badger.Txn) error {
		return putJSON(txn, bookmarkKey(b.UserID, b.ContestName), b)
	})
	if err != nil {
		r.bookmarkLog(b.UserID, b.ContestName).WithError(err).Error("Failed to save bookmark")
		return fmt.Errorf("failed to save bookmark: %w", err)
	}
	return nil
}

// GetBookmark returns ErrNotFound when the pair is not bookmarked.
func (r *BadgerRepository) GetBookmark(ctx context.Context, userID int64, contestName string) (domain.Bookmark, error) {
	var b domain.Bookmark
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		b, err = getBookmark(txn, bookmarkKey(userID, contestName))
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return b, fmt.Errorf("bookmark %d/%q: %w", userID, contestName, ErrNotFound)
		}
		return b, fmt.Errorf("failed to get bookmark: %w", err)
	}
	return b, nil
}

// DeleteBookmark removes a bookmark and returns what was stored.
func (r *BadgerRepository) DeleteBookmark(ctx context.Context, userID int64, contestName string) (domain.Bookmark, error) {
	log := r.bookmarkLog(userID, contestName)
	key := bookmarkKey(userID, contestName)

	var b domain.Bookmark
	err := r.update(func(txn *badger.Txn) error {
		var err error
		b, err = getBookmark(txn, key)
		if err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return b, fmt.Errorf("bookmark %d/%q: %w", userID, contestName, ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete bookmark")
		return b, fmt.Errorf("failed to delete bookmark: %w", err)
	}

	log.Info("Bookmark deleted")
	return b, nil
}

// ListBookmarksByUser retrieves all bookmarks of a user, newest first.
func (r *BadgerRepository) ListBookmarksByUser(ctx context.Context, userID int64) ([]domain.Bookmark, error) {
	var bookmarks []domain.Bookmark
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := bookmarkUserPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var b domain.Bookmark
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal bookmark for key %s: %w", it.Item().Key(), err)
			}
			bookmarks = append(bookmarks, b)
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("Failed to list bookmarks")
		return nil, fmt.Errorf("failed to get bookmarks for user %d: %w", userID, err)
	}

	sort.Slice(bookmarks, func(i, j int) bool {
		return bookmarks[i].CreatedAt.After(bookmarks[j].CreatedAt)
	})
	return bookmarks, nil
}

func (r *BadgerRepository) bookmarkLog(userID int64, contestName string) logrus.FieldLogger {
	return r.log.WithFields(logrus.Fields{
		"user_id": userID,
		"contest": contestName,
	})
}

func getBookmark(txn *badger.Txn, key []byte) (domain.Bookmark, error) {
	var b domain.Bookmark
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &b)
	})
	return b, err
}
