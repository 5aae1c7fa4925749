package device

// Request is a host-to-device protocol message. The set is closed: only
// types in this package implement it.
type Request interface {
	MessageType() string
	isRequest()
}

// Response is a device-to-host protocol message. The set is closed: only
// types in this package implement it.
type Response interface {
	MessageType() string
	isResponse()
}

// GetFeatures asks the device to describe itself.
type GetFeatures struct{}

// Features describes the connected device. It is cached verbatim as JSON.
type Features struct {
	Vendor               string `json:"vendor"`
	Model                string `json:"model"`
	MajorVersion         uint32 `json:"major_version"`
	MinorVersion         uint32 `json:"minor_version"`
	PatchVersion         uint32 `json:"patch_version"`
	BootloaderMode       bool   `json:"bootloader_mode"`
	DeviceID             string `json:"device_id"`
	PinProtection        bool   `json:"pin_protection"`
	PassphraseProtection bool   `json:"passphrase_protection"`
	Label                string `json:"label"`
	Initialized          bool   `json:"initialized"`
	PinCached            bool   `json:"pin_cached"`
	PassphraseCached     bool   `json:"passphrase_cached"`
	NeedsBackup          bool   `json:"needs_backup"`
}

// GetAddress requests a UTXO address at a leaf path.
type GetAddress struct {
	AddressN    []uint32
	CoinName    string
	ScriptType  InputScriptType
	ShowDisplay bool
}

// Address answers GetAddress.
type Address struct {
	Address string
}

// GetPublicKey requests the extended public key of an account path.
type GetPublicKey struct {
	AddressN       []uint32
	CoinName       string
	ScriptType     InputScriptType
	EcdsaCurveName string
	ShowDisplay    bool
}

// PublicKey answers GetPublicKey.
type PublicKey struct {
	Xpub string
}

// EthereumGetAddress requests an EVM address.
type EthereumGetAddress struct {
	AddressN    []uint32
	ShowDisplay bool
}

// EthereumAddress answers EthereumGetAddress with a 0x-prefixed hex string.
type EthereumAddress struct {
	Address string
}

// CosmosGetAddress requests a Cosmos-SDK bech32 address.
type CosmosGetAddress struct {
	AddressN    []uint32
	CoinName    string
	ShowDisplay bool
}

// CosmosAddress answers CosmosGetAddress.
type CosmosAddress struct {
	Address string
}

// RippleGetAddress requests an XRP ledger address.
type RippleGetAddress struct {
	AddressN    []uint32
	ShowDisplay bool
}

// RippleAddress answers RippleGetAddress.
type RippleAddress struct {
	Address string
}

// SignTx starts the TxRequest/TxAck signing exchange.
type SignTx struct {
	CoinName     string
	InputsCount  uint32
	OutputsCount uint32
	Version      uint32
	LockTime     uint32
}

// TxRequest is the device pulling one piece of transaction data, and
// optionally handing back a signature and serialized fragment.
type TxRequest struct {
	RequestType RequestType
	Details     *TxRequestDetails
	Serialized  *TxRequestSerialized
}

// TxRequestDetails identifies the requested item. A non-empty TxHash
// refers to a previous transaction rather than the one being signed.
type TxRequestDetails struct {
	RequestIndex    uint32
	TxHash          []byte
	ExtraDataLen    uint32
	ExtraDataOffset uint32
}

// TxRequestSerialized carries output produced by the device so far.
type TxRequestSerialized struct {
	SignatureIndex *uint32
	Signature      []byte
	SerializedTx   []byte
}

// TxAck answers a TxRequest.
type TxAck struct {
	Tx TransactionType
}

// TransactionType holds whichever part of a transaction the device asked for.
type TransactionType struct {
	Version      uint32
	LockTime     uint32
	InputsCount  uint32
	OutputsCount uint32
	Inputs       []TxInputType
	Outputs      []TxOutputType
	BinOutputs   []TxOutputBinType
	ExtraData    []byte
	ExtraDataLen uint32
}

// TxInputType is one input. For inputs of the transaction being signed
// AddressN and Amount are set; for previous transactions ScriptSig is.
type TxInputType struct {
	AddressN   []uint32
	PrevHash   []byte
	PrevIndex  uint32
	ScriptSig  []byte
	Sequence   uint32
	ScriptType InputScriptType
	Amount     uint64
}

// TxOutputType is an output of the transaction being signed.
type TxOutputType struct {
	Address    string
	AddressN   []uint32
	Amount     uint64
	ScriptType OutputScriptType
}

// TxOutputBinType is an output of a previous transaction.
type TxOutputBinType struct {
	Amount       uint64
	ScriptPubkey []byte
}

// ResetDevice creates a new seed on the device.
type ResetDevice struct {
	Strength             uint32
	DisplayRandom        bool
	PinProtection        bool
	PassphraseProtection bool
	Label                string
}

// PinMatrixRequest asks for a PIN through the scrambled keypad.
type PinMatrixRequest struct {
	Type PinMatrixRequestType
}

// PinMatrixAck carries scrambled keypad positions as a digit string.
type PinMatrixAck struct {
	Pin string
}

// RecoveryDevice starts seed recovery, or verification when DryRun is set.
type RecoveryDevice struct {
	WordCount            uint32
	DryRun               bool
	PinProtection        bool
	PassphraseProtection bool
	Label                string
	EnforceWordlist      bool
	UseCharacterCipher   bool
}

// CharacterRequest asks for the next ciphered character.
type CharacterRequest struct {
	WordPos      uint32
	CharacterPos uint32
}

// CharacterAck carries one recovery keystroke. Exactly one field is set.
type CharacterAck struct {
	Character string
	Delete    bool
	Done      bool
}

// ButtonRequest asks the user to confirm on the device.
type ButtonRequest struct {
	Code ButtonRequestType
}

// ButtonAck acknowledges a ButtonRequest.
type ButtonAck struct{}

// EntropyRequest asks the host for additional entropy during reset.
type EntropyRequest struct{}

// EntropyAck answers EntropyRequest.
type EntropyAck struct {
	Entropy []byte
}

// Cancel aborts the pending interactive action.
type Cancel struct{}

// Success ends an exchange successfully.
type Success struct {
	Message string
}

// Failure ends an exchange with a device-reported error.
type Failure struct {
	Code    FailureType
	Message string
}

func (*GetFeatures) isRequest()        {}
func (*GetAddress) isRequest()         {}
func (*GetPublicKey) isRequest()       {}
func (*EthereumGetAddress) isRequest() {}
func (*CosmosGetAddress) isRequest()   {}
func (*RippleGetAddress) isRequest()   {}
func (*SignTx) isRequest()             {}
func (*TxAck) isRequest()              {}
func (*ResetDevice) isRequest()        {}
func (*PinMatrixAck) isRequest()       {}
func (*RecoveryDevice) isRequest()     {}
func (*CharacterAck) isRequest()       {}
func (*ButtonAck) isRequest()          {}
func (*EntropyAck) isRequest()         {}
func (*Cancel) isRequest()             {}

func (*Features) isResponse()         {}
func (*Address) isResponse()          {}
func (*PublicKey) isResponse()        {}
func (*EthereumAddress) isResponse()  {}
func (*CosmosAddress) isResponse()    {}
func (*RippleAddress) isResponse()    {}
func (*TxRequest) isResponse()        {}
func (*PinMatrixRequest) isResponse() {}
func (*CharacterRequest) isResponse() {}
func (*ButtonRequest) isResponse()    {}
func (*EntropyRequest) isResponse()   {}
func (*Success) isResponse()          {}
func (*Failure) isResponse()          {}

// MessageType implementations return the wire message name.

func (GetFeatures) MessageType() string        { return "GetFeatures" }
func (GetAddress) MessageType() string         { return "GetAddress" }
func (GetPublicKey) MessageType() string       { return "GetPublicKey" }
func (EthereumGetAddress) MessageType() string { return "EthereumGetAddress" }
func (CosmosGetAddress) MessageType() string   { return "CosmosGetAddress" }
func (RippleGetAddress) MessageType() string   { return "RippleGetAddress" }
func (SignTx) MessageType() string             { return "SignTx" }
func (TxAck) MessageType() string              { return "TxAck" }
func (ResetDevice) MessageType() string        { return "ResetDevice" }
func (PinMatrixAck) MessageType() string       { return "PinMatrixAck" }
func (RecoveryDevice) MessageType() string     { return "RecoveryDevice" }
func (CharacterAck) MessageType() string       { return "CharacterAck" }
func (ButtonAck) MessageType() string          { return "ButtonAck" }
func (EntropyAck) MessageType() string         { return "EntropyAck" }
func (Cancel) MessageType() string             { return "Cancel" }
func (Features) MessageType() string           { return "Features" }
func (Address) MessageType() string            { return "Address" }
func (PublicKey) MessageType() string          { return "PublicKey" }
func (EthereumAddress) MessageType() string    { return "EthereumAddress" }
func (CosmosAddress) MessageType() string      { return "CosmosAddress" }
func (RippleAddress) MessageType() string      { return "RippleAddress" }
func (TxRequest) MessageType() string          { return "TxRequest" }
func (PinMatrixRequest) MessageType() string   { return "PinMatrixRequest" }
func (CharacterRequest) MessageType() string   { return "CharacterRequest" }
func (ButtonRequest) MessageType() string      { return "ButtonRequest" }
func (EntropyRequest) MessageType() string     { return "EntropyRequest" }
func (Success) MessageType() string            { return "Success" }
func (Failure) MessageType() string            { return "Failure" }
