package kv

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/pkg/logger"
)

// PebbleStore is the on-device durable backend. Writes are synced so a value
// survives an app restart once Set returns.
type PebbleStore struct {
	db     *pebble.DB
	path   string
	closed atomic.Bool
}

// OpenPebble opens (or creates) a pebble database at path.
func OpenPebble(path string) (*PebbleStore, error) {
	logger.Info("opening pebble store", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble open failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return &PebbleStore{db: db, path: path}, nil
}

func (s *PebbleStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.closed.Load() {
		return "", false, ErrClosed
	}
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// val 只在 closer.Close 之前有效
	out := string(val)
	if err := closer.Close(); err != nil {
		return "", false, err
	}
	return out, true, nil
}

func (s *PebbleStore) Set(_ context.Context, key, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Set([]byte(key), []byte(value), pebble.Sync)
}

func (s *PebbleStore) Remove(_ context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.Delete([]byte(key), pebble.Sync)
}

func (s *PebbleStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	logger.Info("pebble store closed", zap.String("path", s.path))
	return s.db.Close()
}
