package notify

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Async runs deliveries on their own goroutine with a bounded timeout. The
// delivery context is detached from the caller, so a finished request does not
// cancel its notification.
type Async struct {
	next    Notifier
	timeout time.Duration
	logger  *zap.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Notifier, timeout time.Duration, logger *zap.Logger) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{next: next, timeout: timeout, logger: logger}
}

// Notify schedules delivery and always returns nil. After Close it drops the
// notification with a warning.
func (a *Async) Notify(ctx context.Context, n Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("notifier closed; dropping notification",
			zap.String("kind", string(n.Kind)),
			zap.String("appointment_id", n.AppointmentID),
		)
		return nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.next.Notify(sendCtx, n); err != nil {
			a.logger.Warn("notification delivery failed",
				zap.String("kind", string(n.Kind)),
				zap.String("appointment_id", n.AppointmentID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Close stops accepting work and waits for in-flight deliveries until ctx is done,
// then closes the wrapped notifier if it holds resources.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if c, ok := a.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
