package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zeroing/jwtauth/identity"
	internalaudit "github.com/zeroing/jwtauth/internal/audit"
	"github.com/zeroing/jwtauth/jwt"
	"github.com/zeroing/jwtauth/password"
)

// IdentityStore resolves usernames to identity records. Unknown usernames must be reported
// as identity.ErrNotFound.
type IdentityStore interface {
	FindByUsername(ctx context.Context, username string) (*identity.UserInfo, error)
}

// IdentityWriter is implemented by stores that can persist records. The engine uses it for
// CreateIdentity.
type IdentityWriter interface {
	Save(ctx context.Context, u *identity.UserInfo) error
}

// CredentialUpdater is implemented by stores that can replace a password hash without touching
// the rest of the record. Login uses it to re-hash credentials stored under weaker parameters.
type CredentialUpdater interface {
	UpdateCredentialHash(ctx context.Context, username, hash string) error
}

// PasswordResetRecorder is implemented by stores that can record a password reset instant.
type PasswordResetRecorder interface {
	MarkPasswordReset(ctx context.Context, username string, at time.Time) error
}

// Engine ties the token codec to an identity store. It is safe for concurrent use.
type Engine struct {
	config  Config
	codec   *jwt.Codec
	store   IdentityStore
	hasher  *password.Argon2
	logger  *zap.Logger
	now     func() time.Time
	metrics *Metrics
	audit   *internalaudit.Dispatcher
	closed  atomic.Bool

	dummyOnce sync.Once
	dummyHash string
}

// Close stops the audit dispatcher after it drains. Later calls fail with ErrEngineNotReady.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if err := e.audit.Close(context.Background()); err != nil {
		e.logger.Warn("audit dispatcher close", zap.Error(err))
	}
	_ = e.logger.Sync()
}

// AuditDropped reports how many audit events were discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters and histograms. It is
// empty when metrics are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Codec exposes the underlying codec for stateless checks.
func (e *Engine) Codec() *jwt.Codec {
	if e == nil {
		return nil
	}
	return e.codec
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

// IssueToken loads username and signs a token for it with the configured TTL.
func (e *Engine) IssueToken(ctx context.Context, username string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	u, err := e.lookup(ctx, username)
	if err != nil {
		e.metrics.Inc(MetricTokenIssueFailure)
		return "", err
	}
	return e.issue(ctx, u)
}

func (e *Engine) issue(ctx context.Context, u *identity.UserInfo) (string, error) {
	token, err := e.codec.GenerateToken(u)
	if err != nil {
		e.metrics.Inc(MetricTokenIssueFailure)
		e.logger.Error("token issue failed", zap.String("username", u.Username()), zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrTokenIssue, err)
	}
	e.metrics.Inc(MetricTokenIssued)
	e.emitAudit(ctx, AuditTokenIssued, u.Username(), true, "", nil)
	return token, nil
}

// Login verifies password against the stored Argon2id hash and issues a token. Unknown
// users and wrong passwords both yield ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, username, pass string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	u, err := e.lookup(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		// Spend the same hashing time as a real verification.
		_, _ = e.hasher.Verify(pass, e.dummy())
		return "", e.loginFailed(ctx, username, "user_not_found")
	case err != nil:
		e.metrics.Inc(MetricLoginFailure)
		return "", err
	}

	ok, err := e.hasher.Verify(pass, u.CredentialHash())
	if err != nil {
		e.logger.Warn("stored credential unusable", zap.String("username", username), zap.Error(err))
		return "", e.loginFailed(ctx, username, "credential_invalid")
	}
	if !ok {
		return "", e.loginFailed(ctx, username, "password_mismatch")
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgrade(ctx, u, pass)
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSucceeded, username, true, "", nil)
	return e.issue(ctx, u)
}

func (e *Engine) loginFailed(ctx context.Context, username, reason string) error {
	e.metrics.Inc(MetricLoginFailure)
	e.emitAudit(ctx, AuditLoginFailed, username, false, reason, nil)
	return ErrInvalidCredentials
}

func (e *Engine) maybeUpgrade(ctx context.Context, u *identity.UserInfo, pass string) {
	w, ok := e.store.(CredentialUpdater)
	if !ok {
		return
	}
	stale, err := e.hasher.NeedsUpgrade(u.CredentialHash())
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		e.logger.Warn("credential rehash failed", zap.String("username", u.Username()), zap.Error(err))
		return
	}
	if err := w.UpdateCredentialHash(ctx, u.Username(), hash); err != nil {
		e.logger.Warn("credential upgrade not saved", zap.String("username", u.Username()), zap.Error(err))
		return
	}
	e.metrics.Inc(MetricPasswordUpgraded)
}

func (e *Engine) dummy() string {
	e.dummyOnce.Do(func() {
		h, err := e.hasher.Hash("jwtauth-timing-equalizer")
		if err == nil {
			e.dummyHash = h
		}
	})
	return e.dummyHash
}

// Authenticate checks token against the identity named by its subject. Rejections are
// ErrUnauthorized wrapping the jwt error, so jwt.KindOf reports the reason. Store failures
// are returned as ErrStoreUnavailable and are not rejections.
func (e *Engine) Authenticate(ctx context.Context, token string) (*identity.UserInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	// Signature and expiry are checked before the store is touched.
	claims, err := e.codec.Verify(token)
	if err != nil {
		return nil, e.reject(ctx, "", err)
	}
	if !claims.HasSubject() {
		return nil, e.reject(ctx, "", fmt.Errorf("%w: sub", jwt.ErrClaimMissing))
	}

	u, err := e.lookup(ctx, claims.Subject)
	if errors.Is(err, ErrUserNotFound) {
		e.metrics.Inc(MetricValidateUserNotFound)
		e.emitAudit(ctx, AuditTokenRejected, claims.Subject, false, "user_not_found", nil)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if err != nil {
		return nil, err
	}

	if err := e.codec.CheckToken(token, u); err != nil {
		return nil, e.reject(ctx, u.Username(), err)
	}

	e.metrics.Inc(MetricValidateSuccess)
	return u, nil
}

func (e *Engine) reject(ctx context.Context, username string, cause error) error {
	kind := jwt.KindOf(cause)
	e.metrics.Inc(validateFailureMetric(kind))
	e.emitAudit(ctx, AuditTokenRejected, username, false, kind.String(), nil)
	e.logger.Debug("token rejected", zap.String("username", username), zap.Stringer("kind", kind))
	return fmt.Errorf("%w: %w", ErrUnauthorized, cause)
}

// Refresh re-issues token when it is refreshable against its owner's last password reset.
// A non-positive ttl uses JWT.RefreshTTL.
func (e *Engine) Refresh(ctx context.Context, token string, ttl time.Duration) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	username, err := e.codec.UsernameFromToken(token)
	if err != nil {
		return "", e.refreshDenied(ctx, "", err)
	}
	u, err := e.lookup(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return "", e.refreshDenied(ctx, username, err)
	}
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		return "", err
	}

	if err := e.codec.CheckRefreshable(token, u.LastPasswordReset()); err != nil {
		return "", e.refreshDenied(ctx, username, err)
	}

	if ttl <= 0 {
		ttl = e.config.JWT.RefreshTTL
	}
	next, err := e.codec.RefreshToken(token, ttl)
	if err != nil {
		return "", e.refreshDenied(ctx, username, err)
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditTokenRefreshed, username, true, "", nil)
	return next, nil
}

func (e *Engine) refreshDenied(ctx context.Context, username string, cause error) error {
	reason := jwt.KindOf(cause).String()
	if errors.Is(cause, ErrUserNotFound) {
		reason = "user_not_found"
	}
	e.metrics.Inc(MetricRefreshFailure)
	e.emitAudit(ctx, AuditRefreshDenied, username, false, reason, nil)
	return fmt.Errorf("%w: %w", ErrRefreshNotAllowed, cause)
}

// RecordPasswordReset stamps now as username's last password reset. Tokens created before
// that instant stop validating and can no longer be refreshed.
func (e *Engine) RecordPasswordReset(ctx context.Context, username string) (time.Time, error) {
	if err := e.ready(); err != nil {
		return time.Time{}, err
	}
	r, ok := e.store.(PasswordResetRecorder)
	if !ok {
		return time.Time{}, ErrPasswordResetUnsupported
	}
	at := e.now()
	if err := r.MarkPasswordReset(ctx, username, at); err != nil {
		return time.Time{}, e.storeError(username, err)
	}
	e.metrics.Inc(MetricPasswordReset)
	e.emitAudit(ctx, AuditPasswordReset, username, true, "", nil)
	return at, nil
}

// CreateIdentity hashes pass and saves a record through the store. Replacing an existing
// record counts as a password reset, so tokens created for the old record stop validating.
func (e *Engine) CreateIdentity(ctx context.Context, username, pass string, roles []string) (*identity.UserInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	w, ok := e.store.(IdentityWriter)
	if !ok {
		return nil, errors.New("identity store is read-only")
	}
	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}
	params := identity.Params{Username: username, CredentialHash: hash, Roles: roles}
	prev, err := e.store.FindByUsername(ctx, username)
	switch {
	case err == nil && prev != nil:
		params.ID = prev.ID()
		params.LastPasswordReset = e.now()
	case err != nil && !errors.Is(err, identity.ErrNotFound):
		return nil, e.storeError(username, err)
	}
	u, err := identity.New(params)
	if err != nil {
		return nil, err
	}
	if err := w.Save(ctx, u); err != nil {
		return nil, e.storeError(username, err)
	}
	return u, nil
}

func (e *Engine) lookup(ctx context.Context, username string) (*identity.UserInfo, error) {
	if username == "" {
		return nil, ErrUserNotFound
	}
	u, err := e.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, e.storeError(username, err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (e *Engine) storeError(username string, err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return ErrUserNotFound
	}
	e.metrics.Inc(MetricStoreError)
	e.logger.Warn("identity store failure", zap.String("username", username), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
