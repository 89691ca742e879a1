package history

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jamesainslie/mus/pkg/mus/logging"
)

var (
	// ErrNotFound is returned when no entry matches an ID.
	ErrNotFound = errors.New("history entry not found")

	// ErrAmbiguousID is returned when an ID prefix matches several entries.
	ErrAmbiguousID = errors.New("history entry ID is ambiguous")
)

// Key layout:
//
//	run\x00<20-digit unix nanos>\x00<id>  entry
//	id\x00<id>                            run key of the entry
var (
	runPrefix = []byte("run\x00")
	idPrefix  = []byte("id\x00")
)

// minPrefixLen is the shortest ID prefix Get accepts.
const minPrefixLen = 4

func runKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d\x00%s", runPrefix, ts.UnixNano(), id))
}

func idKey(id string) []byte {
	return append(bytes.Clone(idPrefix), id...)
}

// Store is the run history database.
type Store struct {
	db     *badger.DB
	now    func() time.Time
	logger *logging.Logger
}

// Open opens or creates the history store in dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	return &Store{db: db, now: time.Now, logger: logging.Get("history")}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores e, assigning an ID and timestamp when they are unset.
func (s *Store) Record(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	e.Version = EntryVersion

	value, err := e.Encode()
	if err != nil {
		return err
	}

	key := runKey(e.Timestamp, e.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(idKey(e.ID), key)
	})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug("run recorded", "id", e.ID, "operation", e.Operation)
	return nil
}

// List returns entries newest first. If limit is 0 or negative, all entries
// are returned.
func (s *Store) List(limit int) ([]Entry, error) {
	entries := []Entry{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the last key not greater than the seek key.
		seek := append(bytes.Clone(runPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix(runPrefix); it.Next() {
			var e Entry
			if err := it.Item().Value(e.Decode); err != nil {
				s.logger.Warn("skipping unreadable history entry", "key", string(it.Item().Key()), "error", err)
				continue
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}

// Get returns the entry with the given ID. A unique prefix of at least four
// characters also matches.
func (s *Store) Get(id string) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("entry ID cannot be empty")
	}

	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		key, err := s.resolve(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(entry.Decode)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// resolve maps an ID or ID prefix to its run key.
func (s *Store) resolve(txn *badger.Txn, id string) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if err == nil {
		return item.ValueCopy(nil)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, err
	}
	if len(id) < minPrefixLen {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	prefix := idKey(id)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var found []byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if found != nil {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
		}
		if found, err = it.Item().ValueCopy(nil); err != nil {
			return nil, err
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Clean removes entries recorded before cutoff and returns how many were
// removed.
func (s *Store) Clean(cutoff time.Time) (int, error) {
	limit := runKey(cutoff, "")

	var removed int
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(runPrefix); it.ValidForPrefix(runPrefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, limit) >= 0 {
				break
			}
			id := key[bytes.LastIndexByte(key, 0)+1:]
			if err := txn.Delete(key); err != nil {
				return err
			}
			if err := txn.Delete(idKey(string(id))); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean history: %w", err)
	}

	s.logger.Info("history cleaned", "removed", removed, "cutoff", cutoff.Format(time.RFC3339))
	return removed, nil
}

// CleanRetention removes entries older than retentionDays. Zero or negative
// keeps everything.
func (s *Store) CleanRetention(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	return s.Clean(s.now().AddDate(0, 0, -retentionDays))
}

// Purge removes every entry.
func (s *Store) Purge() error {
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("failed to purge history: %w", err)
	}
	s.logger.Info("history purged")
	return nil
}
