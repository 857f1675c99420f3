package reqgate

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan Event
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{
		events: make(chan Event, buffer),
	}
}

func (s *captureSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

type blockingSink struct {
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Emit(context.Context, Event) {
	<-s.release
}

func TestEventsDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	gate, err := New().WithEventSink(sink).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer gate.Close()

	// Forged request rejected; events are off by default.
	gate.Check(testRequest(http.MethodPost, "/api/items"))
	time.Sleep(30 * time.Millisecond)

	if sink.Count() != 0 {
		t.Fatalf("expected no sink calls when disabled, got %d", sink.Count())
	}
}

func TestEventsSinkReceivesRejectionFields(t *testing.T) {
	clock, _ := newFakeClock(time.Unix(1700000000, 0))
	cfg := DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Limits.Write = PolicyConfig{MaxRequests: 1, Window: time.Minute}

	sink := newCaptureSink(8)
	gate, err := New().WithConfig(cfg).WithClock(clock).WithEventSink(sink).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer gate.Close()

	gate.Check(withCSRF(testRequest(http.MethodPost, "/api/items"), "tok", "tok"))
	gate.Check(withCSRF(testRequest(http.MethodPost, "/api/items"), "tok", "tok"))

	select {
	case ev := <-sink.events:
		if ev.Kind != EventRateLimited {
			t.Fatalf("kind = %q, want rate_limited", ev.Kind)
		}
		if ev.Policy != ClassWrite {
			t.Fatalf("policy = %q, want write", ev.Policy)
		}
		if ev.ClientKey != "1.2.3.4:ua-x" {
			t.Fatalf("client key = %q", ev.ClientKey)
		}
		if ev.Method != http.MethodPost || ev.Path != "/api/items" {
			t.Fatalf("request identity = %s %s", ev.Method, ev.Path)
		}
		if ev.RetryAfterMs != time.Minute.Milliseconds() {
			t.Fatalf("retry after ms = %d", ev.RetryAfterMs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a rejection event")
	}
}

func TestEventsCSRFRejectionEmitted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Events.Enabled = true

	sink := newCaptureSink(8)
	gate, err := New().WithConfig(cfg).WithEventSink(sink).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer gate.Close()

	gate.Check(testRequest(http.MethodPost, "/api/items"))

	select {
	case ev := <-sink.events:
		if ev.Kind != EventCSRFRejected {
			t.Fatalf("kind = %q, want csrf_rejected", ev.Kind)
		}
		if ev.Policy != ClassNone {
			t.Fatalf("csrf rejections carry no policy, got %q", ev.Policy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a csrf event")
	}
}

func TestEventsBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newBlockingSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)
	defer func() {
		close(sink.release)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), Event{Kind: "e1"})
	dispatcher.Emit(context.Background(), Event{Kind: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), Event{Kind: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestEventsBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newBlockingSink()
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink)
	defer func() {
		close(sink.release)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), Event{Kind: "e1"})
	dispatcher.Emit(context.Background(), Event{Kind: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), Event{Kind: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.release <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestEventsJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		Kind:      EventRateLimited,
		Policy:    ClassAuth,
		ClientKey: "1.2.3.4:ua-x",
		Method:    http.MethodPost,
		Path:      "/api/auth/login",
	})

	if !buf.Contains(`"kind":"rate_limited"`) {
		t.Fatal("expected JSON line to contain the event kind")
	}
	if !buf.Contains(`"policy":"auth"`) {
		t.Fatal("expected JSON line to contain the policy class")
	}
}

func TestEventsCloseUnblocksStalledChannelSink(t *testing.T) {
	// An undrained ChannelSink: one event fills the channel, the next
	// delivery blocks inside the sink until Close cancels it.
	sink := NewChannelSink(1)
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink)

	for i := 0; i < 4; i++ {
		dispatcher.Emit(context.Background(), Event{Kind: "e"})
	}

	done := make(chan struct{})
	go func() {
		dispatcher.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close must not hang on a sink nobody drains")
	}
}

func TestEventsDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	dispatcher := newEventDispatcher(EventsConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, &countingSink{})

	dispatcher.Emit(context.Background(), Event{Kind: "e1"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), Event{Kind: "e2"})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf) != "" && containsString(string(b.buf), v)
}

func containsString(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
