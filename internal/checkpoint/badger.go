// SPDX-License-Identifier: Apache-2.0

package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudtrim/cloudtrim/internal/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	badgerRecordPrefix  = "cp/"
	badgerVersionPrefix = "cpv/"
)

// BadgerStore persists checkpoints in an embedded BadgerDB, for
// single-binary deployments without Postgres.
type BadgerStore struct {
	db *badger.DB
}

type badgerSlogAdapter struct {
	logger *slog.Logger
}

func (l *badgerSlogAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerSlogAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerSlogAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerSlogAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerStore opens (or creates) a checkpoint database at path. An
// empty path opens an in-memory database, which is handy in tests.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts = opts.WithSyncWrites(true)
	}
	if logger != nil {
		opts = opts.WithLogger(&badgerSlogAdapter{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger checkpoint db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

func badgerVersionKey(workflowID uuid.UUID) []byte {
	return []byte(badgerVersionPrefix + workflowID.String())
}

func badgerRecordKey(workflowID uuid.UUID, version int64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", badgerRecordPrefix, workflowID, version))
}

func (b *BadgerStore) Put(ctx context.Context, state *domain.WorkflowState) (int64, error) {
	blob, err := encodeState(state)
	if err != nil {
		return 0, err
	}

	var version int64
	err = b.db.Update(func(txn *badger.Txn) error {
		version = 1
		item, err := txn.Get(badgerVersionKey(state.WorkflowID))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt version counter for %s", state.WorkflowID)
				}
				version = int64(binary.BigEndian.Uint64(val)) + 1
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
		default:
			return err
		}

		rec := Record{
			WorkflowID:   state.WorkflowID,
			Version:      version,
			State:        blob,
			WorkflowType: state.WorkflowType,
			UpdatedAt:    time.Now().UTC(),
		}
		encoded, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		if err := txn.Set(badgerRecordKey(state.WorkflowID, version), encoded); err != nil {
			return err
		}

		counter := make([]byte, 8)
		binary.BigEndian.PutUint64(counter, uint64(version))
		return txn.Set(badgerVersionKey(state.WorkflowID), counter)
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (b *BadgerStore) Latest(ctx context.Context, workflowID uuid.UUID) (*domain.WorkflowState, int64, error) {
	var (
		state   *domain.WorkflowState
		version int64
	)

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerVersionKey(workflowID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			version = int64(binary.BigEndian.Uint64(val))
			return nil
		}); err != nil {
			return err
		}

		state, err = b.readRecord(txn, workflowID, version)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return state, version, nil
}

func (b *BadgerStore) At(ctx context.Context, workflowID uuid.UUID, version int64) (*domain.WorkflowState, error) {
	var state *domain.WorkflowState
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		state, err = b.readRecord(txn, workflowID, version)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (b *BadgerStore) readRecord(txn *badger.Txn, workflowID uuid.UUID, version int64) (*domain.WorkflowState, error) {
	item, err := txn.Get(badgerRecordKey(workflowID, version))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var state *domain.WorkflowState
	err = item.Value(func(val []byte) error {
		var rec Record
		if err := json.Unmarshal(val, &rec); err != nil {
			return err
		}
		state, err = decodeState(rec.State)
		return err
	})
	return state, err
}

func (b *BadgerStore) Versions(ctx context.Context, workflowID uuid.UUID) ([]int64, error) {
	var versions []int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(badgerRecordPrefix + workflowID.String() + "/")
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			var v int64
			if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &v); err != nil {
				return fmt.Errorf("malformed checkpoint key %q: %w", key, err)
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (b *BadgerStore) Delete(ctx context.Context, workflowID uuid.UUID) error {
	versions, err := b.Versions(ctx, workflowID)
	if err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		for _, v := range versions {
			if err := txn.Delete(badgerRecordKey(workflowID, v)); err != nil {
				return err
			}
		}
		return txn.Delete(badgerVersionKey(workflowID))
	})
}
