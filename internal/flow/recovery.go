package flow

import (
	"context"
	"strconv"
	"strings"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

// RecoveryOptions configures a recovery or seed verification.
type RecoveryOptions struct {
	WordCount uint32 // 12, 18 or 24

	// DryRun verifies the seed already on the device instead of replacing it.
	DryRun bool

	PinProtection        bool
	PassphraseProtection bool
	Label                string

	// Force replaces a recovery session left open on this device.
	Force bool
}

// ValidWordCount reports whether n is a supported mnemonic length.
func ValidWordCount(n uint32) bool {
	return n == 12 || n == 18 || n == 24
}

type keystrokeKind int

const (
	keyLetter keystrokeKind = iota
	keySpace
	keyDelete
	keyDone
)

// Keystroke is one input to the recovery cipher: a letter, a space ending
// the current word, a delete, or done.
type Keystroke struct {
	kind   keystrokeKind
	letter byte
}

// Recovery keystrokes other than letters.
var (
	Space  = Keystroke{kind: keySpace}
	Delete = Keystroke{kind: keyDelete}
	Done   = Keystroke{kind: keyDone}
)

// Letter returns the keystroke for one alphabetic character. Upper-case
// input is folded to lower case.
func Letter(r rune) (Keystroke, error) {
	switch {
	case r >= 'a' && r <= 'z':
		return Keystroke{kind: keyLetter, letter: byte(r)}, nil
	case r >= 'A' && r <= 'Z':
		return Keystroke{kind: keyLetter, letter: byte(r - 'A' + 'a')}, nil
	default:
		return Keystroke{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"character": string(r),
			"reason":    "recovery input must be a single letter a-z",
		})
	}
}

// ParseKeystroke reads a keystroke typed at a prompt: one letter, a single
// space or "space", "delete" or "backspace", and "done".
func ParseKeystroke(text string) (Keystroke, error) {
	if text == " " {
		return Space, nil
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "space":
		return Space, nil
	case "delete", "backspace", "del":
		return Delete, nil
	case "done":
		return Done, nil
	}
	runes := []rune(strings.TrimSpace(text))
	if len(runes) != 1 {
		return Keystroke{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"input":  text,
			"reason": "enter one letter, space, delete or done",
		})
	}
	return Letter(runes[0])
}

func (k Keystroke) String() string {
	switch k.kind {
	case keySpace:
		return "space"
	case keyDelete:
		return "delete"
	case keyDone:
		return "done"
	default:
		return string(k.letter)
	}
}

func (k Keystroke) ack() *device.CharacterAck {
	switch k.kind {
	case keySpace:
		return &device.CharacterAck{Character: " "}
	case keyDelete:
		return &device.CharacterAck{Delete: true}
	case keyDone:
		return &device.CharacterAck{Done: true}
	default:
		return &device.CharacterAck{Character: string(k.letter)}
	}
}

// RecoveryController runs seed recovery and dry-run verification through
// the device's character cipher. The host never sees the words: each
// keystroke is a position in the scrambled alphabet the device shows.
type RecoveryController struct {
	*controller
}

// NewRecoveryController creates a recovery controller for one device.
func NewRecoveryController(cfg *Config) *RecoveryController {
	return &RecoveryController{controller: newController(session.KindRecovery, cfg)}
}

// Start validates the word count, marks the device as in recovery and
// sends the recovery request.
func (r *RecoveryController) Start(ctx context.Context, opts RecoveryOptions) (session.Session, error) {
	if !ValidWordCount(opts.WordCount) {
		return session.Session{}, kkerr.WithDetails(kkerr.ErrValidation, map[string]string{
			"word_count": strconv.FormatUint(uint64(opts.WordCount), 10),
			"allowed":    "12, 18, 24",
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.sessions.Begin(session.KindRecovery, r.deviceID, opts.Force, func(s *session.Session) {
		s.WordCount = opts.WordCount
		s.DryRun = opts.DryRun
	})
	if err != nil {
		return s, err
	}
	r.info("recovery session %s started for %s (dry run %t, %d words)", s.ID, r.deviceID, opts.DryRun, opts.WordCount)

	req := &device.RecoveryDevice{
		WordCount:            opts.WordCount,
		DryRun:               opts.DryRun,
		PinProtection:        opts.PinProtection,
		PassphraseProtection: opts.PassphraseProtection,
		Label:                opts.Label,
		EnforceWordlist:      true,
		UseCharacterCipher:   true,
	}
	return r.open(ctx, s, req, r.advance)
}

// SubmitPin answers a PIN prompt raised during recovery.
func (r *RecoveryController) SubmitPin(ctx context.Context, id string, positions []int) (session.Session, error) {
	digits, err := PinDigits(positions)
	if err != nil {
		return session.Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.active(id)
	if err != nil {
		return s, err
	}
	if err := expectStep(s, session.StepAwaitingPin); err != nil {
		return s, err
	}
	return r.step(ctx, s, &device.PinMatrixAck{Pin: digits}, r.advance)
}

// SubmitCharacter sends one keystroke. The returned session carries the
// device's cursor for the next character.
func (r *RecoveryController) SubmitCharacter(ctx context.Context, id string, k Keystroke) (session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.active(id)
	if err != nil {
		return s, err
	}
	if err := expectStep(s, session.StepAwaitingCharacter); err != nil {
		return s, err
	}
	r.debug("recovery session %s: word %d char %d: %s", s.ID, s.WordPos, s.CharacterPos, k.kindName())
	return r.step(ctx, s, k.ack(), r.advance)
}

// AckButton answers a pending ButtonRequest.
func (r *RecoveryController) AckButton(ctx context.Context, id string) (session.Session, error) {
	return r.ackButton(ctx, id, r.advance)
}

// Cancel aborts recovery on the device and closes the session.
func (r *RecoveryController) Cancel(ctx context.Context, id string) (session.Session, error) {
	return r.cancel(ctx, id)
}

func (r *RecoveryController) advance(s *session.Session, req device.Request, resp device.Response) (device.Request, error) {
	switch m := resp.(type) {
	case *device.PinMatrixRequest:
		s.Step = session.StepAwaitingPin
		return nil, nil
	case *device.CharacterRequest:
		s.Step = session.StepAwaitingCharacter
		s.WordPos = m.WordPos
		s.CharacterPos = m.CharacterPos
		return nil, nil
	case *device.ButtonRequest:
		s.Step = session.StepAwaitingButton
		return nil, nil
	case *device.Success:
		s.Step = session.StepCompleted
		r.info("recovery session %s completed: %s", s.ID, m.Message)
		return nil, nil
	case *device.Failure:
		r.warn("recovery session %s failed: %s", s.ID, m.Message)
		return nil, fail(s, m)
	default:
		return nil, unexpected(s, req, resp)
	}
}

// kindName keeps typed letters out of the logs.
func (k Keystroke) kindName() string {
	if k.kind == keyLetter {
		return "letter"
	}
	return k.String()
}
