// Package backend opens the storage, queue and lock backends selected by
// configuration.
package backend

import (
	"context"
	"fmt"

	"invigilation/internal/allocation"
	"invigilation/internal/attendance"
	"invigilation/internal/config"
	"invigilation/internal/logger"
	"invigilation/internal/queue"
	"invigilation/internal/registry"
	"invigilation/internal/store"
	"invigilation/internal/store/memstore"
)

// Backends bundles the repositories and infrastructure clients of a process.
type Backends struct {
	DB    *store.DB
	Redis *store.Redis

	Registry    registry.Repository
	Allocations allocation.Repository
	Attendance  attendance.Repository

	Queue  queue.Queue
	Locker allocation.Locker
}

// Open connects to the configured backends.
func Open(ctx context.Context, cfg config.App) (*Backends, error) {
	b := &Backends{}

	switch cfg.StoreBackend {
	case "memory":
		st := memstore.New()
		b.Registry, b.Allocations, b.Attendance = st, st, st
		logger.Warn().Msg("using in-memory store; data is lost on restart")
	case "postgres":
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect failed: %w", err)
		}
		b.DB = db
		b.Registry = registry.NewRepository(db.Client)
		b.Allocations = allocation.NewRepository(db.Client)
		b.Attendance = attendance.NewRepository(db.Client)
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.QueueBackend {
	case "memory":
		b.Queue = queue.NewInMemory(64)
		b.Locker = allocation.NewMemoryLocker()
	case "redis":
		b.Redis = store.NewRedis(cfg.RedisAddr)
		if !b.Redis.Healthy(ctx) {
			logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet")
		}
		b.Queue = queue.NewRedisQueue(b.Redis.Client, queue.DefaultKey)
		b.Locker = allocation.NewRedisLocker(b.Redis.Client)
	default:
		b.Close()
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}
	return b, nil
}

// InProcessQueue reports whether queue consumers must live in this process.
func (b *Backends) InProcessQueue() bool {
	_, ok := b.Queue.(*queue.InMemory)
	return ok
}

// Health reports per-dependency reachability. Backends that are not in use
// count as healthy.
func (b *Backends) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{"db": true, "redis": true}
	if b.DB != nil {
		out["db"] = b.DB.Healthy(ctx)
	}
	if b.Redis != nil {
		out["redis"] = b.Redis.Healthy(ctx)
	}
	return out
}

func (b *Backends) Close() {
	if err := b.DB.Close(); err != nil {
		logger.Warn().Err(err).Msg("close db")
	}
	if err := b.Redis.Close(); err != nil {
		logger.Warn().Err(err).Msg("close redis")
	}
}
