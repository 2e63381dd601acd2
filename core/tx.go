package core

// tx.go – the versioned transaction type of §3/§6 and its payload variants.
// Field layout here is the semantic (parsed) representation; wire.go holds
// the bit-exact codec that produces and consumes it.

// TxVersion enumerates the supported wire versions (§3: "T0, T1, ...").
type TxVersion uint8

const (
	TxV0 TxVersion = iota
	TxV1
)

// PayloadKind discriminates the sum type carried by a Transaction (§3).
type PayloadKind uint8

const (
	PayloadTransfers PayloadKind = iota
	PayloadBurn
	PayloadFreezeTOS
	PayloadUnfreezeTOS
	PayloadMultiSig
	PayloadDeployContract
	PayloadInvokeContract
	PayloadScheduleExecution
	PayloadRegisterArbiter
	PayloadRequestArbiterExit
	PayloadCancelArbiterExit
	PayloadCreateEscrow
	PayloadReleaseEscrow
	PayloadRefundEscrow
	PayloadSetKyc
	PayloadRevokeKyc
	PayloadRenewKyc
	PayloadTransferKyc
	PayloadAppealKyc
	PayloadRegisterName
	PayloadTransferName
	PayloadAgentAccount
)

// FreezeDuration enumerates the three allowed FreezeTOS lock durations (§3).
type FreezeDuration uint8

const (
	Freeze3Day FreezeDuration = iota
	Freeze7Day
	Freeze14Day
)

// Days returns how many days the duration locks funds for. The conversion
// to blocks (days * blocksPerDay) lives at the call site (applyFreeze in
// payloads.go) so this type stays a pure enum.
func (d FreezeDuration) Days() uint64 {
	switch d {
	case Freeze3Day:
		return 3
	case Freeze7Day:
		return 7
	case Freeze14Day:
		return 14
	default:
		return 0
	}
}

// Transfer is one plaintext transfer entry within a Transfers payload.
type Transfer struct {
	Asset       AssetID
	Destination PubKey
	Amount      uint64
	ExtraData   []byte
}

// ConfidentialTransfer is the El-Gamal analogue of Transfer (§3, §4.3).
type ConfidentialTransfer struct {
	Asset          AssetID
	Destination    PubKey
	Commitment     CipherText
	SenderHandle   [32]byte
	ReceiverHandle [32]byte
	ValidityProof  SigmaProof
	ExtraData      []byte
}

// TransfersPayload carries 1..=MAX_TRANSFER_COUNT plaintext or confidential
// transfers, never mixed within one transaction.
type TransfersPayload struct {
	Plain         []Transfer
	Confidential  []ConfidentialTransfer
	// Y2 is present only under TxV1 and is required to verify a
	// confidential transfer's ciphertext-validity proof (§4.3).
	Y2 *[32]byte
}

// BurnPayload is a one-asset burn.
type BurnPayload struct {
	Asset  AssetID
	Amount uint64
}

// FreezePayload is FreezeTOS{amount, duration}.
type FreezePayload struct {
	Amount   uint64
	Duration FreezeDuration
}

// UnfreezePayload is UnfreezeTOS{amount}.
type UnfreezePayload struct {
	Amount uint64
}

// MultiSigPayload configures a multisig policy on the sender's account.
type MultiSigPayload struct {
	Threshold int
	Signers   []PubKey
}

// Deposit is one asset deposit accompanying an InvokeContract payload.
type Deposit struct {
	Asset  AssetID
	Amount uint64
}

// DeployContractPayload deploys new contract bytecode.
type DeployContractPayload struct {
	Bytecode []byte
}

// InvokeContractPayload calls an existing contract entry point.
type InvokeContractPayload struct {
	Contract   PubKey
	Deposits   []Deposit
	EntryID    uint32
	MaxGas     uint64
	Parameters []byte
}

// ScheduleExecutionPayload registers a future contract call (§4.4).
type ScheduleExecutionPayload struct {
	Contract          PubKey
	ChunkID           uint32
	InputData         []byte
	MaxGas            uint64
	OfferAmount       uint64
	SchedulerContract PubKey
	Kind              ScheduleKind
}

// RegisterArbiterPayload, RequestArbiterExitPayload, CancelArbiterExitPayload
// manage the arbiter lifecycle (§3).
type RegisterArbiterPayload struct {
	CommitteeID Hash
}
type RequestArbiterExitPayload struct {
	CommitteeID Hash
}
type CancelArbiterExitPayload struct {
	CommitteeID Hash
}

// CreateEscrowPayload opens a new escrow (§4.7).
type CreateEscrowPayload struct {
	TaskID              string
	Provider            PubKey
	Amount              uint64
	Asset               AssetID
	TimeoutBlocks       uint64
	ChallengeWindow     uint64
	ChallengeDepositBps uint16
	OptimisticRelease   bool
	ArbitrationConfig   *ArbitrationConfig
}

// ReleaseEscrowPayload releases funds to the provider (§4.7).
type ReleaseEscrowPayload struct {
	TaskID string
	Amount uint64
}

// RefundEscrowPayload returns funds to the payer (§4.7).
type RefundEscrowPayload struct {
	TaskID string
	Amount uint64
	Reason string
}

// KYC payloads (§4.8).
type SetKycPayload struct {
	Subject     PubKey
	Level       uint8
	DataHash    Hash
	CommitteeID Hash
	Approvals   []CommitteeApproval
}
type RevokeKycPayload struct {
	Subject     PubKey
	CommitteeID Hash
	Approvals   []CommitteeApproval
}
type RenewKycPayload struct {
	Subject     PubKey
	CommitteeID Hash
	Approvals   []CommitteeApproval
}
type TransferKycPayload struct {
	Subject  PubKey
	NewOwner PubKey
}
type AppealKycPayload struct {
	Subject        PubKey
	ParentCommittee Hash
	NewCommittee    Hash
	Approvals       []CommitteeApproval
}

// CommitteeApproval is one committee member's signature over a canonical
// KYC operation message (§4.8).
type CommitteeApproval struct {
	Member    PubKey
	Signature [64]byte
}

// TNS payloads (§4.9).
type RegisterNamePayload struct {
	Name string
}
type TransferNamePayload struct {
	Name     string
	NewOwner PubKey
}

// AgentAccountPayload registers or updates agent metadata (§3).
type AgentAccountPayload struct {
	Controller     PubKey
	PolicyHash     Hash
	SessionKeyRoot *Hash
}

// Payload is a closed sum type: exactly one field is populated, matching
// the Kind tag. The verifier and applier switch on Kind, never on which
// field is non-nil, so a malformed payload with the wrong field set is
// caught as INVALID_FORMAT during decode rather than silently ignored.
type Payload struct {
	Kind PayloadKind

	Transfers        *TransfersPayload
	Burn             *BurnPayload
	Freeze           *FreezePayload
	Unfreeze         *UnfreezePayload
	MultiSig         *MultiSigPayload
	DeployContract   *DeployContractPayload
	InvokeContract   *InvokeContractPayload
	ScheduleExec     *ScheduleExecutionPayload
	RegisterArbiter  *RegisterArbiterPayload
	RequestArbExit   *RequestArbiterExitPayload
	CancelArbExit    *CancelArbiterExitPayload
	CreateEscrow     *CreateEscrowPayload
	ReleaseEscrow    *ReleaseEscrowPayload
	RefundEscrow     *RefundEscrowPayload
	SetKyc           *SetKycPayload
	RevokeKyc        *RevokeKycPayload
	RenewKyc         *RenewKycPayload
	TransferKyc      *TransferKycPayload
	AppealKyc        *AppealKycPayload
	RegisterName     *RegisterNamePayload
	TransferName     *TransferNamePayload
	AgentAccount     *AgentAccountPayload
}

// MultiSigAggregate is the optional multisig aggregation attached to a
// Transaction (§3).
type MultiSigAggregate struct {
	Signers    []PubKey
	Signatures [][64]byte
}

// Transaction is the versioned wire transaction of §3/§6.
type Transaction struct {
	Version   TxVersion
	ChainID   uint8
	Source    PubKey
	Payload   Payload
	Fee       uint64
	FeeType   FeeType
	Nonce     uint64
	Reference Reference
	MultiSig  *MultiSigAggregate
	Signature [64]byte

	// hash caches HashTx's result; zero until first computed.
	hash *Hash
}
