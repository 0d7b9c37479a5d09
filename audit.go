package jwtauth

import (
	"context"
	"io"

	internalaudit "github.com/zeroing/jwtauth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one record of a token lifecycle decision. Token strings are never included.
type AuditEvent = internalaudit.Event

// AuditSink receives events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// Audit event types.
const (
	AuditTokenIssued    = internalaudit.EventTokenIssued
	AuditTokenRejected  = internalaudit.EventTokenRejected
	AuditTokenRefreshed = internalaudit.EventTokenRefreshed
	AuditRefreshDenied  = internalaudit.EventRefreshDenied
	AuditLoginSucceeded = internalaudit.EventLoginSucceeded
	AuditLoginFailed    = internalaudit.EventLoginFailed
	AuditPasswordReset  = internalaudit.EventPasswordReset
)

type NoOpSink = internalaudit.NoOpSink

// FailuresOnly forwards unsuccessful events to Next.
type FailuresOnly = internalaudit.FailuresOnly

// Fanout delivers each event to every sink in order.
type Fanout = internalaudit.Fanout

// NewChannelSink buffers events in a channel read through Events.
func NewChannelSink(buffer int) *internalaudit.ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *internalaudit.JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// ZapSink logs every event at info level.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, e AuditEvent) {
	s.logger.Info(e.EventType,
		zap.String("id", e.ID),
		zap.Time("timestamp", e.Timestamp),
		zap.String("username", e.Username),
		zap.Bool("success", e.Success),
		zap.String("reason", e.Reason),
		zap.String("error", e.Error),
		zap.Any("metadata", e.Metadata),
	)
}

func (e *Engine) emitAudit(ctx context.Context, eventType, username string, success bool, reason string, err error) {
	if e.audit == nil {
		return
	}
	event := internalaudit.NewEvent(eventType, e.now())
	event.Username = username
	event.Success = success
	event.Reason = reason
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}
