package jwtauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/zeroing/jwtauth/identity"
	redisstore "github.com/zeroing/jwtauth/store/redis"
)

const testSecret = "engine-test-secret-0123456789abcdef"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.JWT.TTL = time.Hour
	cfg.JWT.RefreshTTL = 2 * time.Hour
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	cfg.Audit.Enabled = true
	return cfg
}

func newTestStore(t testing.TB) *redisstore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return redisstore.NewStore(rdb, "test")
}

type engineFixture struct {
	engine *Engine
	store  *redisstore.Store
	clock  *testClock
	sink   *captureSink
}

func newEngineFixture(t testing.TB, mutate func(*Config)) *engineFixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	store := newTestStore(t)
	clock := newTestClock()
	sink := newCaptureSink(256)

	engine, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithAuditSink(sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &engineFixture{engine: engine, store: store, clock: clock, sink: sink}
}

func (f *engineFixture) addUser(t testing.TB, username, pass string) *identity.UserInfo {
	t.Helper()
	u, err := f.engine.CreateIdentity(context.Background(), username, pass, []string{"ROLE_USER"})
	if err != nil {
		t.Fatalf("create identity %q: %v", username, err)
	}
	return u
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	return &captureSink{events: make(chan AuditEvent, buffer)}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// waitFor returns the first event of the given type, skipping others.
func (s *captureSink) waitFor(t testing.TB, eventType string) AuditEvent {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-s.events:
			if e.EventType == eventType {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s audit event", eventType)
			return AuditEvent{}
		}
	}
}
