package device

import (
	"context"
	"io"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/chain"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Opener enumerates and opens a physical device. The USB/HID framing lives
// behind this interface.
type Opener interface {
	Open(ctx context.Context) (Channel, error)
}

// OpenerFunc adapts a function to an Opener.
type OpenerFunc func(ctx context.Context) (Channel, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context) (Channel, error) {
	return f(ctx)
}

// Detect opens a device, retrying transport failures with increasing
// backoff. When every attempt fails the result is ErrDeviceUnavailable.
func Detect(ctx context.Context, opener Opener, cfg chain.RetryConfig) (Channel, error) {
	ch, err := chain.Retry(ctx, cfg, func(ctx context.Context) (Channel, error) {
		ch, err := opener.Open(ctx)
		if err != nil {
			return nil, err
		}
		if ch == nil {
			return nil, kkerr.ErrTransport
		}
		return ch, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, kkerr.WithCause(kkerr.ErrTimeout, err)
		}
		return nil, kkerr.WithCause(kkerr.ErrDeviceUnavailable, err)
	}
	return ch, nil
}

// Close releases ch if the transport behind it holds resources.
func Close(ch Channel) error {
	if c, ok := ch.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
