package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/device/devicetest"
	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/session"
	kkerr "github.com/keepkey/keepkey-bitcoin-only-sub000/pkg/errors"
)

func charIs(want device.CharacterAck) func(*device.CharacterAck) error {
	return func(ack *device.CharacterAck) error {
		if *ack != want {
			return fmt.Errorf("ack %+v, want %+v", *ack, want)
		}
		return nil
	}
}

func setRecoveryFlags(t *testing.T, words uint32, dryRun bool) {
	t.Helper()
	t.Cleanup(func() {
		recoveryWords, recoveryDryRun, recoveryPin = 24, false, true
	})
	recoveryWords, recoveryDryRun, recoveryPin = words, dryRun, false
}

func TestRecoveryStart_DryRun(t *testing.T) {
	setRecoveryFlags(t, 12, true)
	asked := withPrompts(t, true, "2468", "q", "7", "delete", " ", "done")

	ch := devicetest.NewScripted(t,
		devicetest.Expect[*device.GetFeatures](features()),
		devicetest.ExpectFunc(func(r *device.RecoveryDevice) error {
			if r.WordCount != 12 || !r.DryRun {
				return fmt.Errorf("recovery %+v", r)
			}
			return nil
		}, &device.PinMatrixRequest{Type: device.PinMatrixCurrent}),
		devicetest.ExpectFunc(pinIs("2468"), &device.CharacterRequest{}),
		devicetest.ExpectFunc(charIs(device.CharacterAck{Character: "q"}), &device.CharacterRequest{CharacterPos: 1}),
		devicetest.ExpectFunc(charIs(device.CharacterAck{Delete: true}), &device.CharacterRequest{}),
		devicetest.ExpectFunc(charIs(device.CharacterAck{Character: " "}), &device.CharacterRequest{WordPos: 1}),
		devicetest.ExpectFunc(charIs(device.CharacterAck{Done: true}), &device.ButtonRequest{Code: device.ButtonRequestOther}),
		devicetest.Expect[*device.ButtonAck](&device.Success{Message: "Seed verified"}),
	)
	env := newTestEnv(t).withDevice(ch)

	require.NoError(t, runRecoveryStart(env.cmd(), nil))
	ch.AssertDone()

	resp := decode[sessionResponse](t, env.stdout)
	assert.Equal(t, session.KindRecovery, resp.Kind)
	assert.Equal(t, session.StepCompleted, resp.Step)
	assert.True(t, resp.DryRun)

	assert.Equal(t, []string{
		"PIN: ",
		"Word 1/12, letter 1: ",
		"Word 1/12, letter 2: ", // "7" is rejected here
		"Word 1/12, letter 2: ",
		"Word 1/12, letter 1: ",
		"Word 2/12, letter 1: ",
	}, *asked)
}

func TestRecoveryStart_InvalidWordCount(t *testing.T) {
	setRecoveryFlags(t, 13, false)
	withPrompts(t, true)

	ch := devicetest.NewScripted(t, devicetest.Expect[*device.GetFeatures](features()))
	env := newTestEnv(t).withDevice(ch)

	err := runRecoveryStart(env.cmd(), nil)
	require.ErrorIs(t, err, kkerr.ErrValidation)
	assert.Equal(t, "13", kkerr.Detail(err, "word_count"))
	ch.AssertDone()
}

func TestRecoveryStart_AbortedPromptCancelsDevice(t *testing.T) {
	setRecoveryFlags(t, 24, false)
	withPrompts(t, true)
	promptSecretFn = func(string) (string, error) { return "", errors.New("stdin closed") }

	ch := devicetest.NewScripted(t,
		devicetest.Expect[*device.GetFeatures](features()),
		devicetest.Expect[*device.RecoveryDevice](&device.CharacterRequest{}),
		devicetest.Expect[*device.Cancel](&device.Failure{Code: device.FailureActionCancelled}),
	)
	env := newTestEnv(t).withDevice(ch)

	err := runRecoveryStart(env.cmd(), nil)
	require.EqualError(t, err, "stdin closed")
	ch.AssertDone()
}
