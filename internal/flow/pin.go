package flow

import (
	"context"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
)

// PinOptions configures the device reset that a PIN creation starts with.
type PinOptions struct {
	Label                string
	Strength             uint32 // seed strength in bits, 0 means 256
	PassphraseProtection bool
	DisplayRandom        bool

	// Force replaces a PIN session left open on this device.
	Force bool
}

// PinController runs PIN creation:
//
//	AwaitingFirst -> AwaitingSecond -> Completed
//
// with Failed reachable from either awaiting step. A ButtonRequest parks
// the session in AwaitingButton until AckButton.
type PinController struct {
	*controller
}

// NewPinController creates a PIN controller for one device.
func NewPinController(cfg *Config) *PinController {
	return &PinController{controller: newController(session.KindPIN, cfg)}
}

// Start marks the device as in a PIN flow and sends a reset with PIN
// protection. The reply sets the first step: a PinMatrixRequest means
// AwaitingFirst, Success means Completed. A device already in a PIN flow is
// rejected with ErrSessionActive before anything is sent.
func (p *PinController) Start(ctx context.Context, opts PinOptions) (session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.sessions.Begin(session.KindPIN, p.deviceID, opts.Force, func(s *session.Session) {
		s.Step = session.StepAwaitingFirst
	})
	if err != nil {
		return s, err
	}
	p.info("pin session %s started for %s", s.ID, p.deviceID)

	strength := opts.Strength
	if strength == 0 {
		strength = 256
	}
	req := &device.ResetDevice{
		Strength:             strength,
		DisplayRandom:        opts.DisplayRandom,
		PinProtection:        true,
		PassphraseProtection: opts.PassphraseProtection,
		Label:                opts.Label,
	}
	return p.open(ctx, s, req, p.advance)
}

// SubmitPin sends one PIN entry as keypad positions. Positions are
// validated before the device is contacted.
func (p *PinController) SubmitPin(ctx context.Context, id string, positions []int) (session.Session, error) {
	digits, err := PinDigits(positions)
	if err != nil {
		return session.Session{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s, err := p.active(id)
	if err != nil {
		return s, err
	}
	if err := expectStep(s, session.StepAwaitingFirst, session.StepAwaitingSecond); err != nil {
		return s, err
	}
	return p.step(ctx, s, &device.PinMatrixAck{Pin: digits}, p.advance)
}

// AckButton answers a pending ButtonRequest.
func (p *PinController) AckButton(ctx context.Context, id string) (session.Session, error) {
	return p.ackButton(ctx, id, p.advance)
}

// Cancel aborts the flow on the device and closes the session.
func (p *PinController) Cancel(ctx context.Context, id string) (session.Session, error) {
	return p.cancel(ctx, id)
}

func (p *PinController) advance(s *session.Session, req device.Request, resp device.Response) (device.Request, error) {
	switch r := resp.(type) {
	case *device.PinMatrixRequest:
		if r.Type == device.PinMatrixNewSecond {
			s.Step = session.StepAwaitingSecond
		} else {
			s.Step = session.StepAwaitingFirst
		}
		return nil, nil
	case *device.EntropyRequest:
		p.pinAccepted(s)
		return p.entropyAck()
	case *device.ButtonRequest:
		p.pinAccepted(s)
		s.Step = session.StepAwaitingButton
		return nil, nil
	case *device.Success:
		p.pinAccepted(s)
		s.Step = session.StepCompleted
		p.info("pin session %s completed", s.ID)
		return nil, nil
	case *device.Failure:
		p.warn("pin session %s failed: %s", s.ID, r.Message)
		return nil, fail(s, r)
	default:
		return nil, unexpected(s, req, resp)
	}
}

// pinAccepted notes that the device moved past the confirmation entry.
func (p *PinController) pinAccepted(s *session.Session) {
	if s.Step == session.StepAwaitingSecond {
		s.PinSet = true
	}
}
