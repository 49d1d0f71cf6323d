package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hrmaccess/internal/domain/auth"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

func TestPermissionCacheRoundTrip(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	c := NewPermissionCache(rdb, time.Minute)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "t1", "r1"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	perms := []auth.Permission{auth.PermDashboardView, auth.PermLeavesApprove}
	if ok, err := c.SetIfCurrent(ctx, "t1", "r1", 0, perms); err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	if !mr.Exists("perm:t1:r1") {
		t.Fatalf("expected key perm:t1:r1")
	}
	got, ok, err := c.Get(ctx, "t1", "r1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1] != auth.PermLeavesApprove {
		t.Fatalf("unexpected permissions %v", got)
	}
}

func TestPermissionCacheEmptySetIsAHit(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	c := NewPermissionCache(rdb, time.Minute)
	ctx := context.Background()
	if ok, err := c.SetIfCurrent(ctx, "t1", "r1", 0, nil); err != nil || !ok {
		t.Fatalf("set: ok=%v err=%v", ok, err)
	}
	got, ok, err := c.Get(ctx, "t1", "r1")
	if err != nil || !ok || len(got) != 0 {
		t.Fatalf("expected empty hit, got %v ok=%v err=%v", got, ok, err)
	}
}

func TestPermissionCacheInvalidateAndExpire(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	c := NewPermissionCache(rdb, time.Minute)
	ctx := context.Background()
	_, _ = c.SetIfCurrent(ctx, "t1", "r1", 0, []auth.Permission{auth.PermDashboardView})
	_, _ = c.SetIfCurrent(ctx, "t1", "r2", 0, []auth.Permission{auth.PermDashboardView})

	if err := c.InvalidateRole(ctx, "t1", "r1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "t1", "r1"); ok {
		t.Fatalf("expected r1 invalidated")
	}
	if _, ok, _ := c.Get(ctx, "t1", "r2"); !ok {
		t.Fatalf("expected r2 untouched")
	}

	mr.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "t1", "r2"); ok {
		t.Fatalf("expected r2 expired")
	}
}

func TestPermissionCacheRejectsWriteAfterInvalidation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	c := NewPermissionCache(rdb, time.Minute)
	ctx := context.Background()

	// A reader takes the generation, then a role write invalidates before
	// the reader stores what it loaded.
	gen, err := c.Generation(ctx, "t1", "r1")
	if err != nil || gen != 0 {
		t.Fatalf("expected generation 0, got %d err=%v", gen, err)
	}
	if err := c.InvalidateRole(ctx, "t1", "r1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	ok, err := c.SetIfCurrent(ctx, "t1", "r1", gen, []auth.Permission{auth.PermDashboardView})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok || mr.Exists("perm:t1:r1") {
		t.Fatalf("expected the outdated write to be refused")
	}

	gen, err = c.Generation(ctx, "t1", "r1")
	if err != nil || gen != 1 {
		t.Fatalf("expected generation 1, got %d err=%v", gen, err)
	}
	if ok, err := c.SetIfCurrent(ctx, "t1", "r1", gen, nil); err != nil || !ok {
		t.Fatalf("expected write at current generation, ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("perm:t1:r1"); ttl != time.Minute {
		t.Fatalf("expected entry ttl of a minute, got %s", ttl)
	}
}

func TestPermissionCacheDropsUnknownKeys(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()
	defer rdb.Close()

	if err := mr.Set("perm:t1:r1", `["dashboard.view","legacy.key"]`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, ok, err := NewPermissionCache(rdb, time.Minute).Get(context.Background(), "t1", "r1")
	if err != nil || !ok || len(got) != 1 {
		t.Fatalf("expected one known permission, got %v ok=%v err=%v", got, ok, err)
	}
}

func TestNewClientPings(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	addr := mr.Addr()
	client, err := NewClient(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_ = client.Close()

	mr.Close()
	if _, err := NewClient(context.Background(), addr, "", 0); err == nil {
		t.Fatalf("expected ping failure after shutdown")
	}
}
