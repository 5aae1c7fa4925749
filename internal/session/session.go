// Package session tracks interactive device sessions (PIN creation and
// seed recovery) and which devices are currently inside such a flow.
// Nothing here is persisted: sessions live only as long as the process.
package session

import (
	"time"
)

// Kind distinguishes the interactive flows.
type Kind string

const (
	KindPIN      Kind = "pin"
	KindRecovery Kind = "recovery"
)

// Step is where a session currently is in its flow.
type Step string

// Steps shared by both flows.
const (
	StepCompleted Step = "completed"
	StepFailed    Step = "failed"
	StepCancelled Step = "cancelled"
)

// PIN creation steps.
const (
	StepAwaitingFirst  Step = "awaiting_first"
	StepAwaitingSecond Step = "awaiting_second"
)

// Recovery steps.
const (
	StepAwaitingPin       Step = "awaiting_pin"
	StepAwaitingCharacter Step = "awaiting_character"
	StepAwaitingButton    Step = "awaiting_button"
)

// Terminal reports whether no further input is accepted in this step.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepCancelled
}

// Session is a snapshot of one interactive flow. Stores hand out copies,
// so mutating a Session has no effect until it is written back.
type Session struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	DeviceID string `json:"device_id"`
	Step     Step   `json:"step"`
	Active   bool   `json:"active"`

	// Recovery only.
	WordCount    uint32 `json:"word_count,omitempty"`
	WordPos      uint32 `json:"word_pos"`
	CharacterPos uint32 `json:"character_pos"`
	DryRun       bool   `json:"dry_run,omitempty"`

	// PIN only: set once the device has accepted the confirmation entry.
	PinSet bool `json:"pin_set,omitempty"`

	// Message is the last device Failure message, if any.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store holds sessions by id. Implementations must be safe for concurrent
// use and must copy on the way in and out.
type Store interface {
	Get(id string) (Session, bool)
	Insert(s Session)
	Remove(id string) (Session, bool)
	List() []Session
}
