package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"contesthub/internal/domain"
)

const (
	defaultPage  = 1
	defaultLimit = 100
)

// UpsertContest is the reconciliation point for every writer: multiple
// scrapes of the same contest converge on one record keyed by name, last
// write wins, and fields absent from f are never cleared.
func (r *BadgerRepository) UpsertContest(ctx context.Context, name string, f domain.ContestFields) (domain.Contest, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Contest{}, errors.New("contest name is required")
	}
	log := r.log.WithField("contest", name)

	var (
		contest domain.Contest
		created bool
		changed bool
	)
	err := r.update(func(txn *badger.Txn) error {
		contest, created, changed = domain.Contest{}, false, false

		existing, err := getContest(txn, name)
		switch {
		case errors.Is(err, ErrNotFound):
			now := r.now().UTC()
			contest = domain.Contest{Name: name, CreatedAt: now, UpdatedAt: now}
			created = true
		case err != nil:
			return err
		default:
			contest = existing
		}

		changed = contest.Apply(f)
		if !created && !changed {
			return nil
		}
		if !created {
			contest.UpdatedAt = r.now().UTC()
		}
		return putJSON(txn, contestKey(name), contest)
	})
	if err != nil {
		log.WithError(err).Error("Failed to upsert contest")
		return domain.Contest{}, fmt.Errorf("failed to upsert contest %q: %w", name, err)
	}

	log.WithFields(logrus.Fields{
		"created": created,
		"changed": changed,
	}).Debug("Contest upserted")
	return contest, nil
}

// FindContestByName looks a contest up by exact name.
func (r *BadgerRepository) FindContestByName(ctx context.Context, name string) (domain.Contest, error) {
	var contest domain.Contest
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		contest, err = getContest(txn, name)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Contest{}, fmt.Errorf("contest %q: %w", name, ErrNotFound)
		}
		return domain.Contest{}, fmt.Errorf("failed to get contest %q: %w", name, err)
	}
	return contest, nil
}

// ListContests scans every contest, filters, sorts by start time and pages.
func (r *BadgerRepository) ListContests(ctx context.Context, filter ContestFilter) (ContestPage, error) {
	if filter.Page < 1 {
		filter.Page = defaultPage
	}
	if filter.Limit < 1 {
		filter.Limit = defaultLimit
	}

	var matched []domain.Contest
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(contestPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var c domain.Contest
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return fmt.Errorf("failed to unmarshal contest for key %s: %w", it.Item().Key(), err)
			}
			if filter.matches(c) {
				matched = append(matched, c)
			}
		}
		return nil
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to list contests")
		return ContestPage{}, fmt.Errorf("failed to list contests: %w", err)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].StartTime.Before(matched[j].StartTime)
	})

	page := ContestPage{
		Contests:   []domain.Contest{},
		Total:      len(matched),
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (len(matched) + filter.Limit - 1) / filter.Limit,
	}
	from := (filter.Page - 1) * filter.Limit
	if from < len(matched) {
		to := min(from+filter.Limit, len(matched))
		page.Contests = matched[from:to]
	}
	return page, nil
}

func (f ContestFilter) matches(c domain.Contest) bool {
	if f.Platform != "" && c.Platform != f.Platform {
		return false
	}
	if !f.StartAfter.IsZero() && c.StartTime.Before(f.StartAfter) {
		return false
	}
	if !f.StartBefore.IsZero() && c.StartTime.After(f.StartBefore) {
		return false
	}
	return true
}

func getContest(txn *badger.Txn, name string) (domain.Contest, error) {
	var c domain.Contest
	item, err := txn.Get(contestKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &c)
	})
	return c, err
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return txn.SetEntry(badger.NewEntry(key, data))
}
