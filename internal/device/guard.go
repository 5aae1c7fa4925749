package device

import (
	"context"
	"sync"
	"time"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Exclusive is what flows need from a Guard.
type Exclusive interface {
	Do(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error
}

var _ Exclusive = (*Guard)(nil)

// Guard gives one flow at a time exclusive use of a Channel. The lock is
// held for a whole logical operation, not a single message, because the
// device protocols are multi-round.
type Guard struct {
	ch      Channel
	sem     chan struct{}
	timeout time.Duration
}

// NewGuard wraps ch. A positive timeout bounds every Do call, covering both
// waiting for the channel and the operation itself.
func NewGuard(ch Channel, timeout time.Duration) *Guard {
	return &Guard{
		ch:      ch,
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
}

// Do runs fn with exclusive access to the channel. The lease handed to fn
// is invalid once fn returns. Expiry of the operation timeout is reported
// as ErrTimeout, which is retryable.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context, ch Channel) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return kkerr.WithCause(kkerr.ErrTimeout, ctx.Err())
	}

	l := &lease{ch: g.ch}
	defer func() {
		l.release()
		<-g.sem
	}()

	err := fn(ctx, l)
	if err != nil && ctx.Err() != nil && !kkerr.Is(err, kkerr.ErrTimeout) {
		return kkerr.WithCause(kkerr.ErrTimeout, err)
	}
	return err
}

// Busy reports whether a flow currently holds the channel.
func (g *Guard) Busy() bool {
	return len(g.sem) == 1
}

// lease is the channel view handed to a flow inside Guard.Do.
type lease struct {
	mu       sync.Mutex
	ch       Channel
	released bool
}

func (l *lease) Send(ctx context.Context, req Request) (Response, error) {
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if released {
		return nil, kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
			"request": req.MessageType(),
			"reason":  "channel lease already released",
		})
	}
	return l.ch.Send(ctx, req)
}

func (l *lease) release() {
	l.mu.Lock()
	l.released = true
	l.mu.Unlock()
}
