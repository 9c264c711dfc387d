package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	// Format: queue:job:{id}
	jobPrefix = "queue:job:"
	// Format: queue:due:{name}:{dueUnixNano, zero padded}:{id}
	duePrefix = "queue:due:"
	// Format: queue:failed:{name}:{id}
	failedPrefix = "queue:failed:"
)

func jobKey(id string) []byte {
	return []byte(jobPrefix + id)
}

func dueNamePrefix(name string) []byte {
	return []byte(duePrefix + name + ":")
}

func dueKey(name string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", duePrefix, name, max(at.UnixNano(), 0), id))
}

func failedNamePrefix(name string) []byte {
	return []byte(failedPrefix + name + ":")
}

func failedKey(name, id string) []byte {
	return []byte(failedPrefix + name + ":" + id)
}

// BadgerBackend keeps jobs in a Badger database, usually the one shared with
// the contest store. Due keys sort by time so Reserve only reads the head.
type BadgerBackend struct {
	db *badger.DB
	// mu serializes reservations so concurrent workers never pick the same
	// head key and burn transactions on conflicts.
	mu sync.Mutex
}

// NewBadgerBackend does not take ownership of db; Close leaves it open.
func NewBadgerBackend(db *badger.DB) *BadgerBackend {
	return &BadgerBackend{db: db}
}

func (b *BadgerBackend) Schedule(ctx context.Context, job Job) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if prev, err := getJob(txn, job.ID); err == nil && prev.State == StatePending {
			if err := txn.Delete(dueKey(prev.Name, prev.DueAt, prev.ID)); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, ErrJobNotFound) {
			return err
		}
		if err := putJob(txn, job); err != nil {
			return err
		}
		return txn.Set(dueKey(job.Name, job.DueAt, job.ID), []byte(job.ID))
	})
}

func (b *BadgerBackend) Reserve(ctx context.Context, name string, now time.Time) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var reserved *Job
	err := b.db.Update(func(txn *badger.Txn) error {
		reserved = nil
		prefix := dueNamePrefix(name)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		key := it.Item().KeyCopy(nil)
		due, id, err := parseDueKey(key, prefix)
		if err != nil {
			return err
		}
		if due > now.UnixNano() {
			return nil
		}

		if err := txn.Delete(key); err != nil {
			return err
		}
		job, err := getJob(txn, id)
		if errors.Is(err, ErrJobNotFound) {
			// Orphaned schedule entry; dropping the key is enough.
			return nil
		}
		if err != nil {
			return err
		}
		job.State = StateActive
		if err := putJob(txn, job); err != nil {
			return err
		}
		reserved = &job
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve %s job: %w", name, err)
	}
	return reserved, nil
}

func (b *BadgerBackend) Finish(ctx context.Context, job Job) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := putJob(txn, job); err != nil {
			return err
		}
		if job.State == StateFailed {
			return txn.Set(failedKey(job.Name, job.ID), []byte(job.ID))
		}
		return nil
	})
}

func (b *BadgerBackend) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		job, err := getJob(txn, id)
		if errors.Is(err, ErrJobNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, k := range [][]byte{dueKey(job.Name, job.DueAt, id), failedKey(job.Name, id), jobKey(id)} {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) Cancel(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cancelled := false
	err := b.db.Update(func(txn *badger.Txn) error {
		cancelled = false
		job, err := getJob(txn, id)
		if errors.Is(err, ErrJobNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if job.State != StatePending {
			return nil
		}
		if err := txn.Delete(dueKey(job.Name, job.DueAt, id)); err != nil {
			return err
		}
		if err := txn.Delete(jobKey(id)); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	return cancelled, err
}

func (b *BadgerBackend) Failed(ctx context.Context, name string) ([]Job, error) {
	var jobs []Job
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := failedNamePrefix(name)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			job, err := getJob(txn, id)
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	return jobs, err
}

// Close is a no-op; the database belongs to the caller.
func (b *BadgerBackend) Close() error {
	return nil
}

func getJob(txn *badger.Txn, id string) (Job, error) {
	item, err := txn.Get(jobKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, err
	}
	var job Job
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	})
	if err != nil {
		return Job{}, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return job, nil
}

func putJob(txn *badger.Txn, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	return txn.Set(jobKey(job.ID), data)
}

func parseDueKey(key, prefix []byte) (int64, string, error) {
	rest := string(bytes.TrimPrefix(key, prefix))
	// {20 digit nanos}:{id}
	if len(rest) < 22 || rest[20] != ':' {
		return 0, "", fmt.Errorf("malformed due key %q", key)
	}
	due, err := strconv.ParseInt(rest[:20], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed due key %q: %w", key, err)
	}
	return due, rest[21:], nil
}
