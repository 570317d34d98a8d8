package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"bikeshare/internal/logging"
)

type recordingSink struct {
	mu       sync.Mutex
	failN    int32
	calls    atomic.Int32
	received []Event
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, evt Event) error {
	n := s.calls.Add(1)
	if n <= s.failN {
		return errors.New("sink unavailable")
	}
	s.mu.Lock()
	s.received = append(s.received, evt)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.received...)
}

func TestDispatcher_DeliversAndDrainsOnStop(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	d := NewDispatcher(Options{QueueSize: 16, Workers: 2, MaxAttempts: 1}, logging.Discard(), sink)
	d.Start(context.Background())

	for i := 0; i < 10; i++ {
		d.Enqueue(Event{Type: EventRideTelemetry, RideID: "r1"})
	}
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	got := sink.events()
	if len(got) != 10 {
		t.Fatalf("delivered %d events, want 10", len(got))
	}
	for _, evt := range got {
		if evt.ID == "" || evt.OccurredAt.IsZero() {
			t.Errorf("event not stamped: %+v", evt)
		}
	}
}

func TestDispatcher_RetriesWithBackoff(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failN: 2}
	d := NewDispatcher(Options{QueueSize: 4, Workers: 1, MaxAttempts: 3, Backoff: time.Millisecond}, logging.Discard(), sink)
	d.Start(context.Background())
	d.Enqueue(Event{Type: EventRideLocked, RideID: "r1"})
	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := sink.calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if got := len(sink.events()); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failN: 100}
	d := NewDispatcher(Options{QueueSize: 4, Workers: 1, MaxAttempts: 2, Backoff: time.Millisecond}, logging.Discard(), sink)
	d.Start(context.Background())
	d.Enqueue(Event{Type: EventRideLocked})
	_ = d.Stop(context.Background())

	if got := sink.calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	// Not started: the queue fills and further events are dropped.
	d := NewDispatcher(Options{QueueSize: 2, Workers: 1, MaxAttempts: 1}, logging.Discard(), sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			d.Enqueue(Event{Type: EventRideTelemetry})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestDispatcher_EnqueueAfterStopIsDropped(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	d := NewDispatcher(Options{QueueSize: 4, Workers: 1, MaxAttempts: 1}, logging.Discard(), sink)
	d.Start(context.Background())
	_ = d.Stop(context.Background())

	d.Enqueue(Event{Type: EventRideUnlocked})
	if got := sink.calls.Load(); got != 0 {
		t.Errorf("sink called %d times after stop", got)
	}
}

func TestWebhookSink_Routes(t *testing.T) {
	t.Parallel()

	type hit struct {
		path  string
		token string
		body  map[string]any
	}
	var (
		mu   sync.Mutex
		hits []hit
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		hits = append(hits, hit{path: r.URL.Path, token: r.Header.Get(ServiceTokenHeader), body: body})
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL+"/", "secret", srv.Client())
	ctx := context.Background()

	events := []Event{
		{Type: EventRideUnlocked, RideID: "r1", BikeID: "b1"},
		{Type: EventRideTelemetry, RideID: "r1", BikeID: "b1", Payload: map[string]any{"lat": 1.3, "lon": 103.8, "speed_mps": 4.0, "ts": 1700000000, "extra": true}},
		{Type: EventRideLocked, RideID: "r1", BikeID: "b1"},
		{Type: EventPricingUpdated},
	}
	for _, evt := range events {
		if err := sink.Deliver(ctx, evt); err != nil {
			t.Fatalf("Deliver(%s) error = %v", evt.Type, err)
		}
	}

	wantPaths := []string{
		"/api/v1/battery/rides/r1/start",
		"/api/v1/battery/bikes/b1/telemetry",
		"/api/v1/battery/rides/r1/end",
	}
	if len(hits) != len(wantPaths) {
		t.Fatalf("got %d webhook calls, want %d", len(hits), len(wantPaths))
	}
	for i, want := range wantPaths {
		if hits[i].path != want {
			t.Errorf("call %d path = %s, want %s", i, hits[i].path, want)
		}
		if hits[i].token != "secret" {
			t.Errorf("call %d missing service token", i)
		}
	}
	if hits[1].body["ride_id"] != "r1" || hits[1].body["speed_mps"] != 4.0 {
		t.Errorf("telemetry body = %v", hits[1].body)
	}
	if _, ok := hits[1].body["extra"]; ok {
		t.Errorf("telemetry body leaked unrelated payload keys")
	}
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, "", srv.Client())
	if err := sink.Deliver(context.Background(), Event{Type: EventRideUnlocked, RideID: "r1"}); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaSink_KeysByRide(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)

	if err := sink.Deliver(context.Background(), Event{ID: "e1", Type: EventPaymentCaptured, RideID: "r9"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if err := sink.Deliver(context.Background(), Event{ID: "e2", Type: EventBikeLowBattery, BikeID: "b3"}); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "r9" || string(w.msgs[1].Key) != "b3" {
		t.Errorf("keys = %q, %q", w.msgs[0].Key, w.msgs[1].Key)
	}
	var decoded Event
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("value not JSON: %v", err)
	}
	if decoded.Type != EventPaymentCaptured {
		t.Errorf("decoded type = %s", decoded.Type)
	}
}
