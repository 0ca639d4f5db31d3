package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"iaeco.app/internal/config"
	"iaeco.app/internal/tokenstore"
)

// OpenTokenKV opens the configured token backend. The returned close func
// releases connections and is never nil.
func OpenTokenKV(ctx context.Context, cfg config.TokenStore) (tokenstore.KV, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case config.StoreMemory:
		return tokenstore.NewMemory(), noop, nil
	case config.StoreFile:
		return tokenstore.NewFile(cfg.Path), noop, nil
	case config.StoreSQL:
		db, err := tokenstore.OpenSQL(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, noop, fmt.Errorf("app: open sql token store: %w", err)
		}
		return db, db.Close, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("app: redis token store %s: %w", cfg.Redis.Addr, err)
		}
		return tokenstore.NewRedis(client, cfg.Redis.Prefix), client.Close, nil
	}
	return nil, noop, fmt.Errorf("app: unknown token store %q", cfg.Kind)
}
