package device

import (
	"context"
	"errors"
	"time"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/metrics"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// LogWriter is the logging surface the device layer needs.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Instrumented wraps a Channel with logging and metrics, and normalizes
// transport errors: anything that is not already a KeeperError is reported
// as ErrTransport so callers can classify it as retryable.
type Instrumented struct {
	ch      Channel
	log     LogWriter
	metrics *metrics.Metrics
	now     func() time.Time
}

// Instrument wraps ch. A nil metrics uses metrics.Global.
func Instrument(ch Channel, log LogWriter, m *metrics.Metrics) *Instrumented {
	if m == nil {
		m = metrics.Global
	}
	return &Instrumented{ch: ch, log: log, metrics: m, now: time.Now}
}

// Send forwards req and records the exchange.
func (i *Instrumented) Send(ctx context.Context, req Request) (Response, error) {
	start := i.now()
	resp, err := i.ch.Send(ctx, req)
	elapsed := i.now().Sub(start)

	if err == nil && resp == nil {
		err = kkerr.WithDetails(kkerr.ErrTransport, map[string]string{"request": req.MessageType(), "reason": "empty response"})
	}
	if err != nil {
		resp = nil
		var ke *kkerr.KeeperError
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			err = kkerr.WithCause(kkerr.ErrTimeout, err)
		case !errors.As(err, &ke):
			err = kkerr.WithCause(kkerr.ErrTransport, err)
		}
	}
	i.metrics.RecordDeviceCall(elapsed, err)

	if i.log != nil {
		if err != nil {
			i.log.Error("device %s failed after %s: %v", req.MessageType(), elapsed, err)
		} else {
			i.log.Debug("device %s -> %s (%s)", req.MessageType(), resp.MessageType(), elapsed)
		}
	}
	return resp, err
}

// Close closes the wrapped channel.
func (i *Instrumented) Close() error {
	return Close(i.ch)
}
