// Package pebble stores engine snapshots in a local pebble database.
//
// Key layout:
//
//	snapshot/<name>          full snapshot record (JSON)
//	pool/<name>/<blake3 id>  one pool record per pool in that snapshot
package pebble

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"clamm/internal/model"
)

var ErrDBClosed = errors.New("database is closed")

// DefaultName is the slot the CLI reads and writes.
const DefaultName = "latest"

// Store persists snapshot records.
type Store struct {
	db     *pebble.DB
	logger *zap.Logger
}

// Open opens (or creates) the database under dir.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("state dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func snapshotKey(name string) []byte {
	return []byte("snapshot/" + name)
}

func poolPrefix(name string) []byte {
	return []byte("pool/" + name + "/")
}

// PoolKey derives the pool record key from the pool address.
func PoolKey(name string, address common.Address) []byte {
	sum := blake3.Sum256(address.Bytes())
	return append(poolPrefix(name), hex.EncodeToString(sum[:])...)
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Save replaces the named snapshot and its pool records in one batch.
func (s *Store) Save(name string, snap model.Snapshot) error {
	if s.db == nil {
		return ErrDBClosed
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	prefix := poolPrefix(name)
	if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return fmt.Errorf("clear pool records: %w", err)
	}
	if err := batch.Set(snapshotKey(name), data, nil); err != nil {
		return err
	}
	for _, p := range snap.Pools {
		poolData, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal pool %s: %w", p.Address, err)
		}
		if err := batch.Set(PoolKey(name, common.HexToAddress(p.Address)), poolData, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", zap.String("name", name), zap.Int("pools", len(snap.Pools)), zap.Int("bytes", len(data)))
	return nil
}

func (s *Store) get(key []byte, out interface{}) (bool, error) {
	if s.db == nil {
		return false, ErrDBClosed
	}
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(val, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Load returns the named snapshot; ok is false when nothing was saved under name.
func (s *Store) Load(name string) (model.Snapshot, bool, error) {
	var snap model.Snapshot
	ok, err := s.get(snapshotKey(name), &snap)
	return snap, ok, err
}

// LoadPool reads a single pool record without decoding the whole snapshot.
func (s *Store) LoadPool(name string, address common.Address) (model.Pool, bool, error) {
	var p model.Pool
	ok, err := s.get(PoolKey(name, address), &p)
	return p, ok, err
}

// Pools lists every pool record saved under name, in key order.
func (s *Store) Pools(name string) ([]model.Pool, error) {
	if s.db == nil {
		return nil, ErrDBClosed
	}
	prefix := poolPrefix(name)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var pools []model.Pool
	for iter.First(); iter.Valid(); iter.Next() {
		var p model.Pool
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("decode pool record: %w", err)
		}
		pools = append(pools, p)
	}
	return pools, iter.Error()
}
