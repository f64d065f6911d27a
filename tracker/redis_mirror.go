package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisMirror adapts a *redis.Client to the RedisMirror interface tracker
// needs, grounded on hdn/file_storage.go's FileStorage (key-prefix +
// TTL + index-set pattern, generalized from files to execution entries).
type GoRedisMirror struct {
	Client *redis.Client
}

// NewGoRedisMirror connects to addr without blocking (go-redis is lazy).
func NewGoRedisMirror(addr string) *GoRedisMirror {
	return &GoRedisMirror{Client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (m *GoRedisMirror) SetEx(key string, value []byte, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (m *GoRedisMirror) SAdd(set, member string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Client.SAdd(ctx, set, member).Err(); err != nil {
		return fmt.Errorf("redis sadd %s: %w", set, err)
	}
	return nil
}

// PruneExpiredRedisMirror removes session index sets whose members have all
// expired (Redis TTLs reap the execution keys, but the set still names
// them), called from wservice's scheduled cleanup job.
func PruneExpiredRedisMirror(m *GoRedisMirror, sessionIDs []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, sid := range sessionIDs {
		key := "weave:sessions:" + sid
		members, err := m.Client.SMembers(ctx, key).Result()
		if err != nil {
			continue
		}
		live := 0
		for _, member := range members {
			if n, err := m.Client.Exists(ctx, member).Result(); err != nil || n > 0 {
				live++
			}
		}
		if live == 0 {
			m.Client.Del(ctx, key)
		}
	}
	return nil
}
