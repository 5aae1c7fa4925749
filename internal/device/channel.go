// Package device models the KeepKey request/response protocol: the closed
// set of wire messages, the exclusive channel they travel over, and the
// helpers flows use to talk to it.
package device

import (
	"context"
	"errors"
	"fmt"

	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Channel sends one typed request and returns the device's typed response.
// Implementations wrap the USB/HID transport and are not safe for
// concurrent exchanges; use a Guard to serialize flows.
type Channel interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// ChannelFunc adapts a function to a Channel.
type ChannelFunc func(ctx context.Context, req Request) (Response, error)

// Send calls f.
func (f ChannelFunc) Send(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Call sends req and expects a response of type T. A device Failure becomes
// ErrDeviceRejected carrying the device's message; any other response type
// becomes ErrUnexpectedState.
func Call[T Response](ctx context.Context, ch Channel, req Request) (T, error) {
	var zero T

	resp, err := ch.Send(ctx, req)
	if err != nil {
		return zero, err
	}
	if f, ok := resp.(*Failure); ok {
		return zero, FailureError(f)
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, UnexpectedResponse(req, resp)
	}
	return typed, nil
}

// FailureError converts a device Failure into ErrDeviceRejected. The
// device's message is kept verbatim as the cause.
func FailureError(f *Failure) error {
	if f == nil {
		return kkerr.ErrDeviceRejected
	}
	err := kkerr.WithCause(kkerr.ErrDeviceRejected, errors.New(f.Message))
	return kkerr.WithDetails(err, map[string]string{
		"failure_code": fmt.Sprintf("%d", f.Code),
	})
}

// DeviceMessage returns the device-reported text of a rejection, or "".
func DeviceMessage(err error) string {
	var ke *kkerr.KeeperError
	if !errors.As(err, &ke) || ke.Code != kkerr.Code(kkerr.ErrDeviceRejected) || ke.Cause == nil {
		return ""
	}
	return ke.Cause.Error()
}

// UnexpectedResponse reports a response the current flow cannot handle.
func UnexpectedResponse(req Request, resp Response) error {
	got := "<nil>"
	if resp != nil {
		got = resp.MessageType()
	}
	sent := "<nil>"
	if req != nil {
		sent = req.MessageType()
	}
	return kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
		"request":  sent,
		"response": got,
	})
}
