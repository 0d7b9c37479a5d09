package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zeroing/jwtauth/identity"
	"github.com/zeroing/jwtauth/jwt"
	redisstore "github.com/zeroing/jwtauth/store/redis"
)

func TestBuildRequiresSecretAndStore(t *testing.T) {
	if _, err := New().WithStore(newTestStore(t)).Build(); err == nil {
		t.Fatal("expected build without secret to fail")
	}
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected build without store to fail")
	}

	b := New().WithConfig(testConfig()).WithStore(newTestStore(t))
	e, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestIssueAndAuthenticate(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addUser(t, "alice", "correct-password")
	ctx := context.Background()

	token, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.sink.waitFor(t, AuditTokenIssued)

	u, err := f.engine.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u.Username() != "alice" {
		t.Fatalf("expected alice, got %q", u.Username())
	}
	if !u.HasAuthority("ROLE_USER") {
		t.Fatal("expected stored role to load")
	}

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricTokenIssued] != 1 || snap.Counters[MetricValidateSuccess] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
	var observed uint64
	for _, n := range snap.Histograms[MetricValidateLatency] {
		observed += n
	}
	if observed != 1 {
		t.Fatalf("expected one latency observation, got %d", observed)
	}
}

func TestIssueTokenUnknownUser(t *testing.T) {
	f := newEngineFixture(t, nil)
	if _, err := f.engine.IssueToken(context.Background(), "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricTokenIssueFailure]; got != 1 {
		t.Fatalf("expected issue failure counter 1, got %d", got)
	}
}

func TestAuthenticateRejections(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addUser(t, "alice", "correct-password")
	ctx := context.Background()

	token, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = f.engine.Authenticate(ctx, "not-a-token")
	if !errors.Is(err, ErrUnauthorized) || jwt.KindOf(err) != jwt.KindMalformed {
		t.Fatalf("expected malformed rejection, got %v", err)
	}

	orphan, err := f.engine.Codec().GenerateTokenFor("ghost")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err = f.engine.Authenticate(ctx, orphan)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected unknown-user rejection, got %v", err)
	}

	f.clock.Advance(time.Hour)
	_, err = f.engine.Authenticate(ctx, token)
	if !errors.Is(err, ErrUnauthorized) || jwt.KindOf(err) != jwt.KindExpired {
		t.Fatalf("expected expiry rejection at exp, got %v", err)
	}
	rejected := f.sink.waitFor(t, AuditTokenRejected)
	if rejected.Success {
		t.Fatal("expected rejection event to be unsuccessful")
	}

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricValidateMalformed] != 1 ||
		snap.Counters[MetricValidateUserNotFound] != 1 ||
		snap.Counters[MetricValidateExpired] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestPasswordResetRevokesEarlierTokens(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addUser(t, "alice", "correct-password")
	ctx := context.Background()

	before, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.clock.Advance(time.Second)
	at, err := f.engine.RecordPasswordReset(ctx, "alice")
	if err != nil {
		t.Fatalf("record reset: %v", err)
	}
	if !at.Equal(f.clock.Now()) {
		t.Fatalf("expected reset at clock time, got %s", at)
	}

	_, err = f.engine.Authenticate(ctx, before)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, jwt.ErrIssuedBeforeReset) {
		t.Fatalf("expected reset rejection, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, before, 0); !errors.Is(err, ErrRefreshNotAllowed) || !errors.Is(err, jwt.ErrIssuedBeforeReset) {
		t.Fatalf("expected refresh refusal after reset, got %v", err)
	}
	denied := f.sink.waitFor(t, AuditRefreshDenied)
	if denied.Reason != jwt.KindRevokedByReset.String() {
		t.Fatalf("unexpected denial reason %q", denied.Reason)
	}

	after, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue after reset: %v", err)
	}
	if _, err := f.engine.Authenticate(ctx, after); err != nil {
		t.Fatalf("expected token issued at the reset instant to validate: %v", err)
	}

	if _, err := f.engine.RecordPasswordReset(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRefresh(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addUser(t, "alice", "correct-password")
	ctx := context.Background()

	token, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	f.clock.Advance(10 * time.Minute)
	next, err := f.engine.Refresh(ctx, token, 0)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next == token {
		t.Fatal("expected a new token")
	}
	f.sink.waitFor(t, AuditTokenRefreshed)

	exp, err := f.engine.Codec().ExpirationFromToken(next)
	if err != nil {
		t.Fatalf("expiration: %v", err)
	}
	if want := f.clock.Now().Add(2 * time.Hour); !exp.Equal(want) {
		t.Fatalf("expected refresh TTL from config, got exp %s want %s", exp, want)
	}
	created, err := f.engine.Codec().CreatedFromToken(next)
	if err != nil {
		t.Fatalf("created: %v", err)
	}
	if !created.Equal(f.clock.Now()) {
		t.Fatalf("expected created to move to now, got %s", created)
	}

	f.clock.Advance(3 * time.Hour)
	if _, err := f.engine.Refresh(ctx, next, time.Hour); !errors.Is(err, ErrRefreshNotAllowed) || jwt.KindOf(err) != jwt.KindExpired {
		t.Fatalf("expected expired token to be refused, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, "a.b", time.Hour); !errors.Is(err, ErrRefreshNotAllowed) {
		t.Fatalf("expected malformed token to be refused, got %v", err)
	}

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshSuccess] != 1 || snap.Counters[MetricRefreshFailure] != 2 {
		t.Fatalf("unexpected refresh counters %v", snap.Counters)
	}
}

func TestLogin(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addUser(t, "alice", "correct-password")
	ctx := context.Background()

	token, err := f.engine.Login(ctx, "alice", "correct-password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.engine.Authenticate(ctx, token); err != nil {
		t.Fatalf("authenticate login token: %v", err)
	}

	if _, err := f.engine.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	failed := f.sink.waitFor(t, AuditLoginFailed)
	if failed.Username != "alice" || failed.Reason != "password_mismatch" {
		t.Fatalf("unexpected login_failed event %+v", failed)
	}

	if _, err := f.engine.Login(ctx, "ghost", "whatever-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("unexpected login counters %v", snap.Counters)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	f := newEngineFixture(t, func(c *Config) { c.Password.Time = 2 })
	ctx := context.Background()

	weak, err := New().WithConfig(testConfig()).WithStore(f.store).Build()
	if err != nil {
		t.Fatalf("build weak engine: %v", err)
	}
	defer weak.Close()
	old, err := weak.CreateIdentity(ctx, "alice", "correct-password", nil)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}

	if _, err := f.engine.Login(ctx, "alice", "correct-password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	stored, err := f.store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.CredentialHash() == old.CredentialHash() {
		t.Fatal("expected credential hash to be upgraded")
	}
	if got := f.engine.MetricsSnapshot().Counters[MetricPasswordUpgraded]; got != 1 {
		t.Fatalf("expected one upgrade, got %d", got)
	}
	if _, err := f.engine.Login(ctx, "alice", "correct-password"); err != nil {
		t.Fatalf("login with upgraded hash: %v", err)
	}
}

type failingStore struct{}

func (failingStore) FindByUsername(context.Context, string) (*identity.UserInfo, error) {
	return nil, errors.New("connection refused")
}

func TestStoreFailureIsNotUnauthorized(t *testing.T) {
	e, err := New().WithConfig(testConfig()).WithStore(failingStore{}).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	token, err := e.Codec().GenerateTokenFor("alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err = e.Authenticate(context.Background(), token)
	if !errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := e.RecordPasswordReset(context.Background(), "alice"); !errors.Is(err, ErrPasswordResetUnsupported) {
		t.Fatalf("expected ErrPasswordResetUnsupported, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricStoreError]; got != 1 {
		t.Fatalf("expected store error counter 1, got %d", got)
	}
}

func TestClosedEngine(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.engine.Close()
	f.engine.Close()

	if _, err := f.engine.IssueToken(context.Background(), "alice"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	var nilEngine *Engine
	if _, err := nilEngine.Authenticate(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady from nil engine, got %v", err)
	}
	if nilEngine.AuditDropped() != 0 || len(nilEngine.MetricsSnapshot().Counters) != 0 {
		t.Fatal("expected zero values from nil engine")
	}
}

// resetDuringLookupStore records a password reset right after handing out the record, so the
// caller works from a snapshot that predates the reset.
type resetDuringLookupStore struct {
	*redisstore.Store
	resetAt time.Time
	armed   bool
}

func (s *resetDuringLookupStore) FindByUsername(ctx context.Context, username string) (*identity.UserInfo, error) {
	u, err := s.Store.FindByUsername(ctx, username)
	if err != nil || !s.armed {
		return u, err
	}
	s.armed = false
	if err := s.Store.MarkPasswordReset(ctx, username, s.resetAt); err != nil {
		return nil, err
	}
	return u, nil
}

func TestHashUpgradeKeepsConcurrentReset(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	base := newTestStore(t)

	weak, err := New().WithConfig(testConfig()).WithStore(base).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("build weak engine: %v", err)
	}
	defer weak.Close()
	old, err := weak.CreateIdentity(ctx, "alice", "correct-password", nil)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	before, err := weak.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clock.Advance(time.Second)
	racing := &resetDuringLookupStore{Store: base, resetAt: clock.Now(), armed: true}
	strongCfg := testConfig()
	strongCfg.Password.Time = 2
	strong, err := New().WithConfig(strongCfg).WithStore(racing).WithClock(clock.Now).Build()
	if err != nil {
		t.Fatalf("build strong engine: %v", err)
	}
	defer strong.Close()

	if _, err := strong.Login(ctx, "alice", "correct-password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if racing.armed {
		t.Fatal("expected the reset to be recorded during login")
	}

	stored, err := base.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.CredentialHash() == old.CredentialHash() {
		t.Fatal("expected credential hash to be upgraded")
	}
	if !stored.LastPasswordReset().Equal(racing.resetAt) {
		t.Fatalf("expected reset %s to survive the upgrade, got %s", racing.resetAt, stored.LastPasswordReset())
	}
	_, err = weak.Authenticate(ctx, before)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, jwt.ErrIssuedBeforeReset) {
		t.Fatalf("expected pre-reset token to stay revoked, got %v", err)
	}
}

func TestCreateIdentityReplaceRevokesEarlierTokens(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.addUser(t, "alice", "correct-password")
	ctx := context.Background()

	before, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	f.clock.Advance(time.Second)
	resetAt, err := f.engine.RecordPasswordReset(ctx, "alice")
	if err != nil {
		t.Fatalf("record reset: %v", err)
	}

	f.clock.Advance(time.Second)
	replaced := f.addUser(t, "alice", "another-password")
	if !replaced.LastPasswordReset().Equal(f.clock.Now()) {
		t.Fatalf("expected replace to stamp %s, got %s", f.clock.Now(), replaced.LastPasswordReset())
	}
	stored, err := f.store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.LastPasswordReset().Before(resetAt) {
		t.Fatalf("reset moved backwards: %s before %s", stored.LastPasswordReset(), resetAt)
	}

	_, err = f.engine.Authenticate(ctx, before)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, jwt.ErrIssuedBeforeReset) {
		t.Fatalf("expected earlier token to stay revoked, got %v", err)
	}
	if _, err := f.engine.Login(ctx, "alice", "correct-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to fail, got %v", err)
	}
	after, err := f.engine.IssueToken(ctx, "alice")
	if err != nil {
		t.Fatalf("issue after replace: %v", err)
	}
	if _, err := f.engine.Authenticate(ctx, after); err != nil {
		t.Fatalf("expected fresh token to validate: %v", err)
	}
}

func TestCreateIdentityNewUserHasNoReset(t *testing.T) {
	f := newEngineFixture(t, nil)
	u := f.addUser(t, "bob", "correct-password")
	if !u.LastPasswordReset().IsZero() {
		t.Fatalf("expected no reset for a new identity, got %s", u.LastPasswordReset())
	}
}
