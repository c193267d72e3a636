package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger, nil)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return d, logger
}

func waitDrained(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Wait(ctx); err != nil {
		t.Fatalf("queues not drained: %v", err)
	}
}

func TestDispatch_Inline(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got any
	d.Register(":PLAYER:", func(e Event) error {
		got = e.Payload
		return nil
	})

	if err := d.Dispatch(Event{Command: ":PLAYER:", Payload: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("handler saw %v, want 7", got)
	}
}

func TestDispatch_InlineError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	errDown := errors.New("backend down")
	d.Register(":PLAYER:", func(Event) error { return errDown })

	if err := d.Dispatch(Event{Command: ":PLAYER:"}); !errors.Is(err, errDown) {
		t.Errorf("got %v, want %v", err, errDown)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(Event{Command: ":NOPE:"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("got %v, want ErrUnknownCommand", err)
	}
	if !strings.Contains(err.Error(), ":NOPE:") {
		t.Errorf("error %q does not name the command", err)
	}
}

func TestDispatch_QueuedKeepsOrder(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var (
		mu   sync.Mutex
		seen []int
	)
	d.Register(":SOLDIER:STATE:", func(e Event) error {
		mu.Lock()
		seen = append(seen, e.Payload.(int))
		mu.Unlock()
		return nil
	}, Buffered(64))

	for i := range 50 {
		if err := d.Dispatch(Event{Command: ":SOLDIER:STATE:", Payload: i}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	waitDrained(t, d)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 50 || !slices.IsSorted(seen) {
		t.Errorf("handled %v, want 0..49 in order", seen)
	}
}

func TestDispatch_QueueFullDrops(t *testing.T) {
	d, _ := newTestDispatcher(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":HIT:", func(Event) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, Buffered(1))

	// first event occupies the handler, second fills the queue
	if err := d.Dispatch(Event{Command: ":HIT:"}); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := d.Dispatch(Event{Command: ":HIT:"}); err != nil {
		t.Fatal(err)
	}

	err := d.Dispatch(Event{Command: ":HIT:"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("got %v, want ErrQueueFull", err)
	}
	if got := d.Pending(); got != 2 {
		t.Errorf("pending = %d, want 2", got)
	}

	close(release)
	waitDrained(t, d)
}

func TestDispatch_BlockingWaitsForRoom(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var handled atomic.Int32
	d.Register(":CHAT:", func(Event) error {
		time.Sleep(time.Millisecond)
		handled.Add(1)
		return nil
	}, Buffered(1), Blocking())

	for range 10 {
		if err := d.Dispatch(Event{Command: ":CHAT:"}); err != nil {
			t.Fatalf("blocking dispatch failed: %v", err)
		}
	}
	waitDrained(t, d)

	if got := handled.Load(); got != 10 {
		t.Errorf("handled %d, want 10", got)
	}
}

func TestDispatch_QueuedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(":PROJECTILE:", func(Event) error { return errors.New("write failed") }, Buffered(4))

	if err := d.Dispatch(Event{Command: ":PROJECTILE:"}); err != nil {
		t.Fatalf("enqueue should succeed: %v", err)
	}
	waitDrained(t, d)

	if logger.count("ERROR: queued handler failed") != 1 {
		t.Errorf("expected one logged failure, got %v", logger.messages)
	}
}

func TestLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)
	d.Register(":TEAM:PICK:", func(e Event) error {
		if e.Payload == nil {
			return errors.New("empty pick")
		}
		return nil
	}, Logged())

	_ = d.Dispatch(Event{Command: ":TEAM:PICK:", Payload: "red"})
	_ = d.Dispatch(Event{Command: ":TEAM:PICK:"})

	if got := logger.count("DEBUG: handling event"); got != 2 {
		t.Errorf("handling logs = %d, want 2", got)
	}
	if got := logger.count("DEBUG: event complete"); got != 1 {
		t.Errorf("complete logs = %d, want 1", got)
	}
	if got := logger.count("ERROR: event failed"); got != 1 {
		t.Errorf("failure logs = %d, want 1", got)
	}
}

func TestCommandsAndHandles(t *testing.T) {
	d, _ := newTestDispatcher(t)
	noop := func(Event) error { return nil }
	d.Register(":TICK:STATS:", noop, Buffered(8))
	d.Register(":CHAT:", noop)

	want := []string{":CHAT:", ":TICK:STATS:"}
	if got := d.Commands(); !slices.Equal(got, want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
	if !d.Handles(":CHAT:") || d.Handles(":HIT:") {
		t.Error("Handles disagrees with Register")
	}
}

func TestClose_DrainsAndRejects(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	var handled atomic.Int32
	d.Register(":SOLDIER:STATE:", func(Event) error {
		handled.Add(1)
		return nil
	}, Buffered(16))
	for range 5 {
		_ = d.Dispatch(Event{Command: ":SOLDIER:STATE:"})
	}

	d.Close()
	d.Close()

	if got := handled.Load(); got != 5 {
		t.Errorf("handled %d before close, want 5", got)
	}
	if err := d.Dispatch(Event{Command: ":SOLDIER:STATE:"}); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	d, err := New(&testLogger{}, mp.Meter(InstrumentationName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Close)

	block := make(chan struct{})
	d.Register(":HIT:", func(Event) error { <-block; return nil }, Buffered(1))
	d.Register(":PLAYER:", func(Event) error { return nil })

	_ = d.Dispatch(Event{Command: ":PLAYER:"})
	for range 4 {
		_ = d.Dispatch(Event{Command: ":HIT:"})
	}
	close(block)
	waitDrained(t, d)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}

	if sums["dispatcher.events.dropped"] < 1 {
		t.Errorf("expected drops to be counted, got %v", sums)
	}
	if got := sums["dispatcher.events.processed"] + sums["dispatcher.events.dropped"]; got != 5 {
		t.Errorf("processed+dropped = %d, want 5", got)
	}
}
