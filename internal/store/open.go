package store

import (
	"context"
	"fmt"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string // memory, postgres, sqlite or redis
	DatabaseURL string
	SQLitePath  string
	Redis       *Redis
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		db, err := NewPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite":
		db, err := NewSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "redis":
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis backend needs a redis client")
		}
		return NewRedisStore(opts.Redis, "tapntrack"), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
