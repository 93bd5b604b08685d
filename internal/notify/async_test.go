package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type closingNotifier struct {
	mu     sync.Mutex
	sent   []Notification
	closed bool
	err    error
	block  chan struct{}
}

func (c *closingNotifier) Notify(ctx context.Context, n Notification) error {
	if c.block != nil {
		<-c.block
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func (c *closingNotifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestAsyncDetachesFromCaller(t *testing.T) {
	next := &closingNotifier{}
	a := NewAsync(next, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Notify(ctx, Notification{Kind: KindBookingConfirmed, AppointmentID: "a1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	cancel()

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(next.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(next.sent))
	}
	if !next.closed {
		t.Fatal("wrapped notifier was not closed")
	}
}

func TestAsyncLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	next := &closingNotifier{err: errors.New("broker down")}
	a := NewAsync(next, time.Second, zap.New(core))

	if err := a.Notify(context.Background(), Notification{Kind: KindBookingCancelled, AppointmentID: "a2"}); err != nil {
		t.Fatalf("Notify returned %v, want nil", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if n := logs.FilterMessage("notification delivery failed").Len(); n != 1 {
		t.Fatalf("failure logs = %d, want 1", n)
	}
}

func TestAsyncDropsAfterClose(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	next := &closingNotifier{}
	a := NewAsync(next, time.Second, zap.New(core))

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = a.Notify(context.Background(), Notification{Kind: KindBookingConfirmed})

	if len(next.sent) != 0 {
		t.Fatalf("sent = %d after close", len(next.sent))
	}
	if logs.FilterMessage("notifier closed; dropping notification").Len() != 1 {
		t.Fatal("drop was not logged")
	}
}

func TestAsyncCloseHonoursDeadline(t *testing.T) {
	next := &closingNotifier{block: make(chan struct{})}
	a := NewAsync(next, time.Minute, zap.NewNop())
	_ = a.Notify(context.Background(), Notification{Kind: KindBookingConfirmed})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close = %v, want deadline exceeded", err)
	}

	close(next.block)
	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092,")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("SplitBrokers = %q", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("empty input should yield nil")
	}
}
