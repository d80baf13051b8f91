// Package keyindex is an optional, advisory Badger-backed cache of software
// HSM key metadata, so ListKeys on a large key store directory doesn't have
// to open and parse every {key_id}.meta.json file. It is grounded on the
// teacher's pkg/persistence/badger (schema-versioned, zap logger adapter,
// background GC goroutine) but scoped to a single small value type instead
// of a full persistence interface, since it exists purely to accelerate a
// read path the filesystem already answers authoritatively.
package keyindex

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const (
	keyPrefix            = "keyindex:"
	schemaVersionKey     = "keyindex:schema_version"
	currentSchemaVersion = "v1"
)

// Entry is the cached projection of a key's metadata.
type Entry struct {
	Algorithm  string    `json:"algorithm"`
	CreatedAt  time.Time `json:"created_at"`
	PublicKey  []byte    `json:"public_key"`
	UsageCount uint64    `json:"usage_count"`
}

// loggerAdapter adapts zap.Logger to badger.Logger, identical in shape to
// the teacher's pkg/persistence/badger/logger.go.
type loggerAdapter struct{ logger *zap.Logger }

var _ badgerdb.Logger = (*loggerAdapter)(nil)

func (l *loggerAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
func (l *loggerAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *loggerAdapter) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}
func (l *loggerAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Index is an advisory key-id -> Entry cache.
type Index struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open opens (creating if necessary) a Badger database at dir for caching
// software HSM key metadata.
func Open(dir string, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key index cache path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absDir)
	opts.Logger = &loggerAdapter{logger: logger}
	opts.SyncWrites = false // advisory cache, durability is not required

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open key index cache at %s: %w", absDir, err)
	}

	idx := &Index{db: db, logger: logger}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	idx.gcCancel = cancel
	idx.gcWg.Add(1)
	go idx.runGC(ctx)

	return idx, nil
}

func (idx *Index) initSchema() error {
	return idx.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(schemaVersionKey))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(schemaVersionKey), []byte(currentSchemaVersion))
		}
		return err
	})
}

func (idx *Index) runGC(ctx context.Context) {
	defer idx.gcWg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		again:
			if err := idx.db.RunValueLogGC(0.5); err == nil {
				goto again
			}
		}
	}
}

// Put caches the entry for keyID, overwriting any existing value.
func (idx *Index) Put(keyID string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return idx.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(keyPrefix+keyID), raw)
	})
}

// Get returns the cached entry for keyID, or ok=false if absent.
func (idx *Index) Get(keyID string) (entry Entry, ok bool, err error) {
	err = idx.db.View(func(txn *badgerdb.Txn) error {
		item, getErr := txn.Get([]byte(keyPrefix + keyID))
		if getErr == badgerdb.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		ok = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	return entry, ok, err
}

// Delete removes keyID from the cache. Idempotent.
func (idx *Index) Delete(keyID string) error {
	return idx.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(keyPrefix + keyID))
	})
}

// Close shuts down the cache. Idempotent-safe to call once; a second call
// returns Badger's own closed-database error, same as the teacher's
// BadgerPersistence.
func (idx *Index) Close() error {
	if idx.gcCancel != nil {
		idx.gcCancel()
	}
	idx.gcWg.Wait()
	return idx.db.Close()
}
