// Package cache stores resolved role permission sets in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"hrmaccess/internal/domain/auth"
)

const (
	keyPrefix        = "perm:"
	generationPrefix = "permgen:"
)

func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// PermissionCache keeps one entry per role next to a generation counter.
// InvalidateRole bumps the counter, and SetIfCurrent only writes when the
// counter still holds the value read before the role was loaded, so a reader
// that raced a role write cannot put the old set back.
type PermissionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewPermissionCache(rdb *redis.Client, ttl time.Duration) *PermissionCache {
	return &PermissionCache{rdb: rdb, ttl: ttl}
}

func key(tenantID, roleID string) string {
	return keyPrefix + tenantID + ":" + roleID
}

func generationKey(tenantID, roleID string) string {
	return generationPrefix + tenantID + ":" + roleID
}

// KEYS[1] generation, KEYS[2] entry; ARGV[1] expected generation,
// ARGV[2] payload, ARGV[3] ttl in milliseconds (0 keeps no expiry).
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if ARGV[3] == '0' then
	redis.call('SET', KEYS[2], ARGV[2])
else
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
end
return 1
`)

func (c *PermissionCache) Get(ctx context.Context, tenantID, roleID string) ([]auth.Permission, bool, error) {
	raw, err := c.rdb.Get(ctx, key(tenantID, roleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, false, err
	}
	perms := make([]auth.Permission, 0, len(values))
	for _, v := range values {
		if p, ok := auth.ParsePermission(v); ok {
			perms = append(perms, p)
		}
	}
	return perms, true, nil
}

// Generation returns the role's invalidation counter, zero when never bumped.
func (c *PermissionCache) Generation(ctx context.Context, tenantID, roleID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(tenantID, roleID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfCurrent stores perms when the role's generation still equals
// generation. It reports whether the entry was written.
func (c *PermissionCache) SetIfCurrent(ctx context.Context, tenantID, roleID string, generation int64, perms []auth.Permission) (bool, error) {
	values := make([]string, len(perms))
	for i, p := range perms {
		values[i] = string(p)
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return false, err
	}
	ttl := max(c.ttl.Milliseconds(), 0)
	written, err := setIfCurrent.Run(ctx, c.rdb,
		[]string{generationKey(tenantID, roleID), key(tenantID, roleID)},
		strconv.FormatInt(generation, 10), string(raw), strconv.FormatInt(ttl, 10),
	).Int()
	if err != nil {
		return false, err
	}
	return written == 1, nil
}

// InvalidateRole bumps the generation and drops the entry in one transaction.
func (c *PermissionCache) InvalidateRole(ctx context.Context, tenantID, roleID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(tenantID, roleID))
		pipe.Del(ctx, key(tenantID, roleID))
		return nil
	})
	return err
}

// Nop is used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(context.Context, string, string) ([]auth.Permission, bool, error) {
	return nil, false, nil
}

func (Nop) Generation(context.Context, string, string) (int64, error) { return 0, nil }

func (Nop) SetIfCurrent(context.Context, string, string, int64, []auth.Permission) (bool, error) {
	return false, nil
}

func (Nop) InvalidateRole(context.Context, string, string) error { return nil }
