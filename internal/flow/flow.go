// Package flow drives the interactive device flows that need a human at
// the device: PIN creation and seed recovery. Each flow is a session held
// by a session.Manager; every call advances it by one device exchange.
//
// Transport failures leave a session exactly as it was so the caller can
// retry the same call. Only a device Failure, an unexpected response, a
// terminal success or an explicit Cancel closes a session.
package flow

import (
	"context"
	"crypto/rand"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// MaxPinLength is the most keypad positions a PIN may have.
const MaxPinLength = 9

// entropySize is how much host entropy answers an EntropyRequest.
const entropySize = 32

// LogWriter is the logging the controllers use.
type LogWriter interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

// Config wires a controller to one connected device.
type Config struct {
	Device   device.Exclusive
	DeviceID string
	Sessions *session.Manager
	Logger   LogWriter

	// Entropy feeds EntropyAck during device reset. Nil means crypto/rand.
	Entropy io.Reader
}

// controller holds what the PIN and recovery controllers share.
type controller struct {
	kind     session.Kind
	device   device.Exclusive
	deviceID string
	sessions *session.Manager
	log      LogWriter
	entropy  io.Reader

	// mu serializes calls so a session is never advanced twice at once.
	mu sync.Mutex
}

func newController(kind session.Kind, cfg *Config) *controller {
	entropy := cfg.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	return &controller{
		kind:     kind,
		device:   cfg.Device,
		deviceID: cfg.DeviceID,
		sessions: cfg.Sessions,
		log:      cfg.Logger,
		entropy:  entropy,
	}
}

// advanceFunc applies one device response to s and returns the request
// that answers it without user input, if any.
type advanceFunc func(s *session.Session, req device.Request, resp device.Response) (device.Request, error)

// exchange sends req and keeps feeding responses to advance until it has
// nothing more to send. The updated session is stored once the device has
// answered at least once; a transport failure before that leaves the
// stored session untouched. The boolean reports whether the device answered.
func (c *controller) exchange(ctx context.Context, s session.Session, req device.Request, advance advanceFunc) (session.Session, bool, error) {
	answered := false
	err := c.device.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		for req != nil {
			resp, err := ch.Send(ctx, req)
			if err != nil {
				return err
			}
			answered = true
			next, err := advance(&s, req, resp)
			if err != nil {
				return err
			}
			req = next
		}
		return nil
	})
	if answered {
		c.sessions.Update(s)
		s, _ = c.sessions.Get(s.ID)
	}
	if err != nil {
		if kkerr.IsRetryable(err) {
			c.warn("%s session %s: device exchange interrupted, session kept: %v", c.kind, s.ID, err)
		}
		return s, answered, err
	}
	c.debug("%s session %s: now %s", c.kind, s.ID, s.Step)
	return s, answered, nil
}

// step runs one exchange for an existing session.
func (c *controller) step(ctx context.Context, s session.Session, req device.Request, advance advanceFunc) (session.Session, error) {
	s, _, err := c.exchange(ctx, s, req, advance)
	return s, err
}

// open runs the first exchange of a new session. When the opening request
// never reaches the device there is nothing to retry, so the session is
// closed as failed and the device released.
func (c *controller) open(ctx context.Context, s session.Session, req device.Request, advance advanceFunc) (session.Session, error) {
	s, answered, err := c.exchange(ctx, s, req, advance)
	if err != nil && !answered {
		closed, closeErr := c.sessions.Close(s.ID, session.StepFailed)
		if closeErr == nil {
			s = closed
		}
	}
	return s, err
}

// active loads an open session of this controller's kind.
func (c *controller) active(id string) (session.Session, error) {
	s, err := c.sessions.Active(id)
	if err != nil {
		return s, err
	}
	if s.Kind != c.kind {
		return s, kkerr.WithDetails(kkerr.ErrSessionNotFound, map[string]string{
			"session_id": id,
			"kind":       string(c.kind),
		})
	}
	return s, nil
}

// expectStep rejects calls that do not fit the session's current step.
func expectStep(s session.Session, want ...session.Step) error {
	for _, w := range want {
		if s.Step == w {
			return nil
		}
	}
	wanted := make([]string, len(want))
	for i, w := range want {
		wanted[i] = string(w)
	}
	return kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
		"session_id": s.ID,
		"step":       string(s.Step),
		"expected":   strings.Join(wanted, "|"),
	})
}

// ackButton answers a pending ButtonRequest once the caller has prompted
// the user to confirm on the device.
func (c *controller) ackButton(ctx context.Context, id string, advance advanceFunc) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.active(id)
	if err != nil {
		return s, err
	}
	if err := expectStep(s, session.StepAwaitingButton); err != nil {
		return s, err
	}
	return c.step(ctx, s, &device.ButtonAck{}, advance)
}

// cancel tells the device to abandon the flow and closes the session. The
// Cancel message is best effort: the session is closed even when the
// device cannot be reached.
func (c *controller) cancel(ctx context.Context, id string) (session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.sessions.Get(id)
	if err != nil {
		return s, err
	}
	if !s.Active {
		return s, nil
	}

	err = c.device.Do(ctx, func(ctx context.Context, ch device.Channel) error {
		_, err := ch.Send(ctx, &device.Cancel{})
		return err
	})
	if err != nil {
		c.debug("%s session %s: cancel not delivered: %v", c.kind, id, err)
	}
	c.info("%s session %s cancelled", c.kind, id)
	return c.sessions.Close(id, session.StepCancelled)
}

// fail records a device rejection on s.
func fail(s *session.Session, f *device.Failure) error {
	s.Step = session.StepFailed
	s.Message = f.Message
	return device.FailureError(f)
}

// unexpected records a response the flow has no transition for.
func unexpected(s *session.Session, req device.Request, resp device.Response) error {
	s.Step = session.StepFailed
	s.Message = "unexpected " + resp.MessageType()
	return device.UnexpectedResponse(req, resp)
}

func (c *controller) entropyAck() (device.Request, error) {
	buf := make([]byte, entropySize)
	if _, err := io.ReadFull(c.entropy, buf); err != nil {
		return nil, kkerr.WithCause(kkerr.ErrGeneral, err)
	}
	return &device.EntropyAck{Entropy: buf}, nil
}

// PinDigits validates keypad positions and encodes them the way
// PinMatrixAck carries them. Positions index the scrambled 3x3 matrix the
// device shows, 1 to 9.
func PinDigits(positions []int) (string, error) {
	if len(positions) == 0 {
		return "", kkerr.WithDetails(kkerr.ErrValidation, map[string]string{"pin": "no positions entered"})
	}
	if len(positions) > MaxPinLength {
		return "", kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"pin":    "too many positions",
			"length": strconv.Itoa(len(positions)),
			"max":    strconv.Itoa(MaxPinLength),
		})
	}
	var sb strings.Builder
	for i, p := range positions {
		if p < 1 || p > 9 {
			return "", kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"pin":      "position out of range 1-9",
				"index":    strconv.Itoa(i),
				"position": strconv.Itoa(p),
			})
		}
		sb.WriteByte(byte('0' + p))
	}
	return sb.String(), nil
}

// ParsePositions reads positions typed as digits, e.g. "1573". Spaces and
// commas are ignored.
func ParsePositions(text string) ([]int, error) {
	var out []int
	for _, r := range text {
		switch {
		case r == ' ' || r == ',':
			continue
		case r >= '0' && r <= '9':
			out = append(out, int(r-'0'))
		default:
			return nil, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
				"pin":       "positions must be digits",
				"character": string(r),
			})
		}
	}
	return out, nil
}

func (c *controller) debug(format string, args ...any) {
	if c.log != nil {
		c.log.Debug(format, args...)
	}
}

func (c *controller) info(format string, args ...any) {
	if c.log != nil {
		c.log.Info(format, args...)
	}
}

func (c *controller) warn(format string, args ...any) {
	if c.log != nil {
		c.log.Warn(format, args...)
	}
}
