// Package devicetest provides scripted device channels for tests.
package devicetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// Step is one expected exchange: a request check and the canned reply.
type Step struct {
	name  string
	match func(device.Request) error
	reply device.Response
	err   error
}

// Expect returns a step matching any request of type T.
func Expect[T device.Request](reply device.Response) Step {
	var zero T
	return Step{
		name: fmt.Sprintf("%T", zero),
		match: func(req device.Request) error {
			if _, ok := req.(T); !ok {
				return fmt.Errorf("expected %T, got %T", zero, req)
			}
			return nil
		},
		reply: reply,
	}
}

// ExpectFunc returns a step matching requests of type T that also pass check.
func ExpectFunc[T device.Request](check func(T) error, reply device.Response) Step {
	s := Expect[T](reply)
	match := s.match
	s.match = func(req device.Request) error {
		if err := match(req); err != nil {
			return err
		}
		return check(req.(T))
	}
	return s
}

// Fail turns a step into a transport failure instead of a reply.
func (s Step) Fail(err error) Step {
	s.reply = nil
	s.err = err
	return s
}

// Scripted replays a fixed sequence of exchanges in order and fails the
// test on any deviation.
type Scripted struct {
	t     testing.TB
	mu    sync.Mutex
	steps []Step
	sent  []device.Request
}

// NewScripted creates a scripted channel.
func NewScripted(t testing.TB, steps ...Step) *Scripted {
	t.Helper()
	return &Scripted{t: t, steps: steps}
}

// Push appends more expected exchanges.
func (s *Scripted) Push(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Send implements device.Channel.
func (s *Scripted) Send(ctx context.Context, req device.Request) (device.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sent = append(s.sent, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		s.t.Errorf("devicetest: unexpected %s, script exhausted", req.MessageType())
		return nil, kkerr.WithDetails(kkerr.ErrTransport, map[string]string{"reason": "script exhausted"})
	}

	step := s.steps[0]
	s.steps = s.steps[1:]
	if err := step.match(req); err != nil {
		s.t.Errorf("devicetest: step %s: %v", step.name, err)
		return nil, kkerr.WithCause(kkerr.ErrTransport, err)
	}
	return step.reply, step.err
}

// Calls returns the number of requests sent so far.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// Sent returns a copy of every request sent so far.
func (s *Scripted) Sent() []device.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]device.Request(nil), s.sent...)
}

// Remaining returns the number of exchanges not yet consumed.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// AssertDone fails the test if expected exchanges were never sent.
func (s *Scripted) AssertDone() {
	s.t.Helper()
	if n := s.Remaining(); n != 0 {
		s.t.Errorf("devicetest: %d scripted exchanges never happened", n)
	}
}

// Handler answers requests with a function, for flows whose request order
// is not worth scripting. It counts round trips.
type Handler struct {
	mu   sync.Mutex
	fn   func(device.Request) (device.Response, error)
	sent []device.Request
}

// NewHandler creates a function-backed channel.
func NewHandler(fn func(device.Request) (device.Response, error)) *Handler {
	return &Handler{fn: fn}
}

// Send implements device.Channel.
func (h *Handler) Send(ctx context.Context, req device.Request) (device.Response, error) {
	h.mu.Lock()
	h.sent = append(h.sent, req)
	h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.fn(req)
}

// Calls returns the number of requests sent so far.
func (h *Handler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

// Sent returns a copy of every request sent so far.
func (h *Handler) Sent() []device.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]device.Request(nil), h.sent...)
}

// Reset forgets recorded requests.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = nil
}
