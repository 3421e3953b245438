// Package kv is the device key-value capability: durable string keys holding
// string values (in practice JSON documents).
package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/pkg/database"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is durable string-keyed storage. Get reports ok=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg.Store.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "pebble":
		return OpenPebble(cfg.Store.Path)
	case "redis":
		return OpenRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisDB, cfg.Store.Namespace)
	case "sqlite", "postgres":
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLStore(db)
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", cfg.Store.Driver)
	}
}
