package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the engine.
const (
	EventTokenIssued    = "token_issued"
	EventTokenRejected  = "token_rejected"
	EventTokenRefreshed = "token_refreshed"
	EventRefreshDenied  = "refresh_denied"
	EventLoginSucceeded = "login_succeeded"
	EventLoginFailed    = "login_failed"
	EventPasswordReset  = "password_reset"
)

// Event is one audit record. Tokens themselves are never recorded.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	Username  string            `json:"username,omitempty"`
	Success   bool              `json:"success"`
	Reason    string            `json:"reason,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps a fresh random ID and the given time.
func NewEvent(eventType string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: at.UTC(),
		EventType: eventType,
	}
}

// Sink receives events from the dispatcher goroutine. Implementations must not retain ctx.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader through Events. Emit blocks while the channel is
// full unless ctx ends first.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink encodes one event per line. Write failures are counted, not returned.
type JSONWriterSink struct {
	mu       sync.Mutex
	enc      *json.Encoder
	failures atomic.Uint64
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		w = io.Discard
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	err := s.enc.Encode(event)
	s.mu.Unlock()
	if err != nil {
		s.failures.Add(1)
	}
}

// Failures returns how many events could not be written.
func (s *JSONWriterSink) Failures() uint64 { return s.failures.Load() }

// FailuresOnly forwards events whose Success is false and drops the rest.
type FailuresOnly struct {
	Next Sink
}

func (f FailuresOnly) Emit(ctx context.Context, event Event) {
	if event.Success || f.Next == nil {
		return
	}
	f.Next.Emit(ctx, event)
}

// Fanout delivers every event to each sink in order.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, event Event) {
	for _, s := range f {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
