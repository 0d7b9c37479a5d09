package jwtauth

import (
	"errors"
	"time"

	internalaudit "github.com/zeroing/jwtauth/internal/audit"
	"github.com/zeroing/jwtauth/jwt"
	"github.com/zeroing/jwtauth/password"
	"go.uber.org/zap"
)

// Builder assembles an Engine. A Builder can be used for a single Build.
type Builder struct {
	config    Config
	store     IdentityStore
	logger    *zap.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. Later With* calls override its fields.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the identity lookup used by every engine operation. Required.
func (b *Builder) WithStore(store IdentityStore) *Builder {
	b.store = store
	return b
}

// WithLogger sets the zap logger. A nil logger keeps the no-op default.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms. Enabling them without metrics fails Build.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces time.Now for the codec and audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and starts the engine. Callers must Close the engine
// to stop the audit dispatcher.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	codec, err := jwt.NewCodec(jwt.Config{
		Secret:     []byte(cfg.JWT.Secret),
		DefaultTTL: cfg.JWT.TTL,
		Now:        now,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:  cfg,
		codec:   codec,
		store:   b.store,
		hasher:  hasher,
		logger:  logger.Named("engine"),
		now:     now,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	b.built = true
	return engine, nil
}
