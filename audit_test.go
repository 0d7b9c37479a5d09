package jwtauth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditDisabledByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false
	sink := newCaptureSink(4)

	e, err := New().WithConfig(cfg).WithStore(newTestStore(t)).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	if _, err := e.Authenticate(context.Background(), "garbage"); err == nil {
		t.Fatal("expected rejection")
	}
	select {
	case ev := <-sink.events:
		t.Fatalf("expected no audit events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAuditDropIfFull(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true
	sink := &gateSink{gate: make(chan struct{})}

	e, err := New().WithConfig(cfg).WithStore(newTestStore(t)).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for i := 0; i < 20; i++ {
		_, _ = e.Authenticate(context.Background(), "garbage")
	}
	if e.AuditDropped() == 0 {
		t.Fatal("expected dropped audit events under backpressure")
	}

	close(sink.gate)
	e.Close()
}

func TestJSONWriterSinkThroughEngine(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig()

	e, err := New().WithConfig(cfg).WithStore(newTestStore(t)).WithAuditSink(NewJSONWriterSink(&buf)).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := e.Authenticate(context.Background(), "a.b"); err == nil {
		t.Fatal("expected rejection")
	}
	e.Close()

	line := strings.TrimSpace(buf.String())
	var ev AuditEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	if ev.EventType != AuditTokenRejected || ev.Reason != "malformed" || ev.ID == "" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if strings.Contains(line, "a.b") {
		t.Fatal("audit line must not contain the token")
	}
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{ID: "id-1", EventType: AuditLoginFailed, Username: "alice", Reason: "password_mismatch"})

	entries := logs.FilterMessage(AuditLoginFailed).All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["username"] != "alice" || fields["reason"] != "password_mismatch" || fields["id"] != "id-1" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
