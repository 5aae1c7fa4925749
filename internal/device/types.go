package device

import "strings"

// RequestType is the kind of data a TxRequest pulls from the host.
type RequestType int32

// TxRequest kinds.
const (
	RequestTxInput     RequestType = 0
	RequestTxOutput    RequestType = 1
	RequestTxMeta      RequestType = 2
	RequestTxFinished  RequestType = 3
	RequestTxExtraData RequestType = 4
)

func (r RequestType) String() string {
	switch r {
	case RequestTxInput:
		return "TXINPUT"
	case RequestTxOutput:
		return "TXOUTPUT"
	case RequestTxMeta:
		return "TXMETA"
	case RequestTxFinished:
		return "TXFINISHED"
	case RequestTxExtraData:
		return "TXEXTRADATA"
	default:
		return "UNKNOWN"
	}
}

// PinMatrixRequestType says which PIN the keypad is collecting.
type PinMatrixRequestType int32

// PIN matrix sub-types.
const (
	PinMatrixCurrent   PinMatrixRequestType = 1
	PinMatrixNewFirst  PinMatrixRequestType = 2
	PinMatrixNewSecond PinMatrixRequestType = 3
)

// ButtonRequestType is the reason the device wants a button press.
type ButtonRequestType int32

// Button request reasons used by the flows in this module.
const (
	ButtonRequestOther         ButtonRequestType = 1
	ButtonRequestFeeOverThresh ButtonRequestType = 2
	ButtonRequestConfirmOutput ButtonRequestType = 3
	ButtonRequestResetDevice   ButtonRequestType = 4
	ButtonRequestConfirmWord   ButtonRequestType = 5
	ButtonRequestProtectCall   ButtonRequestType = 7
	ButtonRequestSignTx        ButtonRequestType = 8
)

// FailureType classifies a device Failure.
type FailureType int32

// Failure codes.
const (
	FailureUnexpectedMessage FailureType = 1
	FailureButtonExpected    FailureType = 2
	FailureSyntaxError       FailureType = 3
	FailureActionCancelled   FailureType = 4
	FailurePinExpected       FailureType = 5
	FailurePinCancelled      FailureType = 6
	FailurePinInvalid        FailureType = 7
	FailureInvalidSignature  FailureType = 8
	FailureOther             FailureType = 9
	FailureNotEnoughFunds    FailureType = 10
	FailureNotInitialized    FailureType = 11
	FailurePinMismatch       FailureType = 12
	FailureFirmwareError     FailureType = 99
)

// InputScriptType selects how an input is spent.
type InputScriptType int32

// Input script types.
const (
	SpendAddress     InputScriptType = 0
	SpendMultisig    InputScriptType = 1
	External         InputScriptType = 2
	SpendWitness     InputScriptType = 3
	SpendP2SHWitness InputScriptType = 4
)

// OutputScriptType selects how an output is locked.
type OutputScriptType int32

// Output script types.
const (
	PayToAddress     OutputScriptType = 0
	PayToScriptHash  OutputScriptType = 1
	PayToMultisig    OutputScriptType = 2
	PayToOpReturn    OutputScriptType = 3
	PayToWitness     OutputScriptType = 4
	PayToP2SHWitness OutputScriptType = 5
)

// Script type names used by derivation paths and the cache.
const (
	ScriptP2PKH     = "p2pkh"
	ScriptP2SHP2WPK = "p2sh-p2wpkh"
	ScriptP2WPKH    = "p2wpkh"
)

// ScriptTypes maps a derivation-path script type name to the device's
// input and change-output script types. Unknown names fall back to legacy.
func ScriptTypes(name string) (InputScriptType, OutputScriptType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ScriptP2PKH:
		return SpendAddress, PayToAddress, true
	case ScriptP2SHP2WPK:
		return SpendP2SHWitness, PayToP2SHWitness, true
	case ScriptP2WPKH:
		return SpendWitness, PayToWitness, true
	default:
		return SpendAddress, PayToAddress, false
	}
}
