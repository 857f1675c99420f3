package reqgate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event kinds emitted by the gate on rejections.
const (
	EventCSRFRejected = "csrf_rejected"
	EventRateLimited  = "rate_limited"
	EventThrottled    = "throttled"
)

// Event describes one rejected request. Events carry no request body and
// no header values beyond the derived client key.
type Event struct {
	Timestamp    time.Time   `json:"timestamp"`
	Kind         string      `json:"kind"`
	Policy       PolicyClass `json:"policy,omitempty"`
	ClientKey    string      `json:"client_key,omitempty"`
	Method       string      `json:"method"`
	Path         string      `json:"path"`
	RetryAfterMs int64       `json:"retry_after_ms,omitempty"`
}

// EventSink receives emitted rejection events. Emit must honor ctx
// cancellation: the gate cancels in-flight deliveries during Close, and
// a sink that ignores ctx while blocked can stall shutdown.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes events into a buffered channel. Consumers must
// keep draining [ChannelSink.Events]; once the channel fills, further
// deliveries block until ctx cancellation drops them.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
