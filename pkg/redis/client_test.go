package redis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/redis/go-redis/v9"
)

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, "admin_login:ip:10.0.0.1", 2, 30*time.Second)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if allowed != want || count != int64(i+1) {
			t.Fatalf("call %d: allowed=%v count=%d", i, allowed, count)
		}
	}
	key := client.RateLimitKey("admin_login:ip:10.0.0.1")
	if mock.ttl[key] != 30*time.Second {
		t.Fatalf("expected window ttl on %s, got %v", key, mock.ttl[key])
	}
	if mock.expireCalls != 1 {
		t.Fatalf("expiry should be armed once, got %d", mock.expireCalls)
	}

	if _, _, err := client.FixedWindowAllow(ctx, "x", 0, time.Second); err == nil {
		t.Fatal("expected error for non-positive limit")
	}
}

func TestDelIfValueChecksOwner(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("cron-worker:test")

	if ok, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil || !ok {
		t.Fatalf("setnx failed ok=%v err=%v", ok, err)
	}
	removed, err := client.DelIfValue(ctx, key, "owner-b")
	if err != nil || removed {
		t.Fatalf("foreign owner must not delete, removed=%v err=%v", removed, err)
	}
	removed, err = client.DelIfValue(ctx, key, "owner-a")
	if err != nil || !removed {
		t.Fatalf("owner delete failed, removed=%v err=%v", removed, err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestSetNXOnlyOnce(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMockCmdable()}
	key := client.LockKey("stale-reservations")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first setnx to win, ok=%v err=%v", ok, err)
	}
	ok, err = client.SetNX(ctx, key, "owner-b", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected second setnx to lose, ok=%v err=%v", ok, err)
	}
	owner, err := client.Get(ctx, key)
	if err != nil || owner != "owner-a" {
		t.Fatalf("unexpected owner %q err=%v", owner, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestExpireIfValueOnlyForOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}
	key := client.LockKey("cron-worker:test")

	if ok, err := client.SetNX(ctx, key, "owner-a", time.Minute); err != nil || !ok {
		t.Fatalf("setnx failed ok=%v err=%v", ok, err)
	}
	if ok, err := client.ExpireIfValue(ctx, key, "owner-b", time.Hour); err != nil || ok {
		t.Fatalf("foreign owner must not extend, ok=%v err=%v", ok, err)
	}
	if ok, err := client.ExpireIfValue(ctx, key, "owner-a", time.Hour); err != nil || !ok {
		t.Fatalf("owner extend failed, ok=%v err=%v", ok, err)
	}
	if mock.ttl[key] != time.Hour {
		t.Fatalf("expected ttl reset to 1h, got %v", mock.ttl[key])
	}
	if mock.evals != 2 {
		t.Fatalf("expected EVAL fallback per call, got %d", mock.evals)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on empty client")
	}
	if _, err := client.DelIfValue(context.Background(), "k", "v"); err == nil {
		t.Fatal("expected del error on empty client")
	}
	if _, _, err := client.FixedWindowAllow(context.Background(), "x", 1, time.Second); err == nil {
		t.Fatal("expected rate limit error on empty client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op, got %v", err)
	}
	var nilClient *Client
	if err := nilClient.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error on nil client")
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "df:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("admin_login:10.0.0.1"); got != "df:rate_limit:admin_login:10.0.0.1" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.LockKey("outbox-retention"); got != "df:lock:outbox-retention" {
		t.Fatalf("unexpected lock key %s", got)
	}
	if got := client.IdempotencyKey("scope", ""); got != "df:idempotency:scope" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error without url or address")
	}
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 2, PoolSize: 7, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 || opts.PoolSize != 7 || opts.DialTimeout != time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

type mockCmdable struct {
	redis.Scripter
	data        map[string]string
	ttl         map[string]time.Duration
	expireCalls int
	evals       int
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttl:  make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttl[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			n++
		}
		delete(m.data, key)
		delete(m.ttl, key)
	}
	return redis.NewIntResult(n, nil)
}

type noScriptError struct{}

func (noScriptError) Error() string { return "NOSCRIPT No matching script. Please use EVAL." }
func (noScriptError) RedisError() {}

// EvalSha always misses so Script.Run falls through to Eval.
func (m *mockCmdable) EvalSha(context.Context, string, []string, ...any) *redis.Cmd {
	return redis.NewCmdResult(nil, noScriptError{})
}

// Eval emulates the scripts the client ships.
func (m *mockCmdable) Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	m.evals++
	key := keys[0]
	owned := func() bool {
		v, ok := m.data[key]
		return ok && v == args[0]
	}
	switch redis.NewScript(script).Hash() {
	case incrWindow.Hash():
		n, _ := strconv.ParseInt(m.data[key], 10, 64)
		n++
		m.data[key] = strconv.FormatInt(n, 10)
		if ms := args[0].(int64); n == 1 && ms > 0 {
			m.ttl[key] = time.Duration(ms) * time.Millisecond
			m.expireCalls++
		}
		return redis.NewCmdResult(n, nil)
	case delIfValue.Hash():
		if owned() {
			return redis.NewCmdResult(m.Del(ctx, key).Val(), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	case expireIfValue.Hash():
		if owned() {
			m.ttl[key] = time.Duration(args[1].(int64)) * time.Millisecond
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
