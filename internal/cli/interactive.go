package cli

import (
	"context"
	"io"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// maxInvalidInput is how many malformed answers in a row a prompt accepts
// before the flow is abandoned.
const maxInvalidInput = 3

// stepHandler answers the device for one awaiting step.
type stepHandler func(ctx context.Context, s session.Session) (session.Session, error)

// sessionResponse reports how an interactive flow ended.
type sessionResponse struct {
	DeviceID  string       `json:"device_id"`
	SessionID string       `json:"session_id"`
	Kind      session.Kind `json:"kind"`
	Step      session.Step `json:"step"`
	DryRun    bool         `json:"dry_run,omitempty"`
	Message   string       `json:"message,omitempty"`
}

func newSessionResponse(s session.Session) *sessionResponse {
	return &sessionResponse{
		DeviceID:  s.DeviceID,
		SessionID: s.ID,
		Kind:      s.Kind,
		Step:      s.Step,
		DryRun:    s.DryRun,
		Message:   s.Message,
	}
}

func (r *sessionResponse) RenderText(w io.Writer) error {
	switch {
	case r.Kind == session.KindPIN:
		out(w, "PIN set on device %s\n", r.DeviceID)
	case r.DryRun:
		out(w, "Recovery seed verified on device %s\n", r.DeviceID)
	default:
		out(w, "Seed recovered on device %s\n", r.DeviceID)
	}
	if r.Message != "" {
		out(w, "Device: %s\n", r.Message)
	}
	return nil
}

// driveSession answers the device until the session reaches a terminal
// step. Malformed input is reported and asked for again. When the flow is
// left early the device is told to cancel.
func driveSession(
	ctx context.Context,
	cc *CommandContext,
	w io.Writer,
	s session.Session,
	cancel func(ctx context.Context, id string) (session.Session, error),
	handlers map[session.Step]stepHandler,
) (session.Session, error) {
	defer func() {
		if s.ID == "" || s.Step.Terminal() {
			return
		}
		if _, err := cancel(context.WithoutCancel(ctx), s.ID); err != nil {
			cc.Log.Warn("cancelling %s session %s: %v", s.Kind, s.ID, err)
		}
	}()

	invalid := 0
	for !s.Step.Terminal() {
		handle, ok := handlers[s.Step]
		if !ok {
			return s, kkerr.WithDetails(kkerr.ErrUnexpectedState, map[string]string{
				"kind": string(s.Kind),
				"step": string(s.Step),
			})
		}

		next, err := handle(ctx, s)
		if next.ID != "" {
			s = next
		}
		if err != nil {
			if kkerr.Is(err, kkerr.ErrValidation) && !s.Step.Terminal() && invalid < maxInvalidInput-1 {
				invalid++
				out(w, "Invalid input: %s\n", describeInput(err))
				continue
			}
			return s, err
		}
		invalid = 0
	}

	if s.Step != session.StepCompleted {
		return s, kkerr.WithDetails(kkerr.ErrDeviceRejected, map[string]string{
			"step":    string(s.Step),
			"message": s.Message,
		})
	}
	return s, nil
}

// describeInput picks the human part of a validation error.
func describeInput(err error) string {
	for _, key := range []string{"reason", "pin"} {
		if d := kkerr.Detail(err, key); d != "" {
			return d
		}
	}
	return err.Error()
}
