// Package rate implementa rate limiting de ventana fija, en Redis (compartido
// entre réplicas) o en memoria del proceso.
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

// Result resultado de Allow.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter interfaz común.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func result(hits, max int64, left time.Duration) Result {
	res := Result{Allowed: hits <= max, Remaining: max - hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = left
	}
	return res
}

// ─── Redis ───

// RedisLimiter ventana fija con INCR + EXPIRE.
type RedisLimiter struct {
	client *rdb.Client
	prefix string
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{client: client, prefix: prefix, max: int64(max), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	left := time.Until(winStart.Add(l.window))
	return result(incr.Val(), l.max, left), nil
}

// Close cierra el cliente Redis.
func (l *RedisLimiter) Close() error { return l.client.Close() }

// ─── Memoria ───

// MemoryLimiter ventana fija en memoria (una réplica). Las ventanas expiran solas.
type MemoryLimiter struct {
	c      *cache.Cache
	max    int64
	window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      cache.New(window, 2*window),
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	winStart := l.now().UTC().Truncate(l.window)
	k := fmt.Sprintf("%s:%d", key, winStart.Unix())

	// Add falla si ya existe; en ese caso incrementamos.
	var hits int64 = 1
	if err := l.c.Add(k, int64(1), l.window); err != nil {
		n, err := l.c.IncrementInt64(k, 1)
		if err != nil {
			return Result{}, err
		}
		hits = n
	}
	return result(hits, l.max, winStart.Add(l.window).Sub(l.now())), nil
}
