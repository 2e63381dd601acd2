package core

// types.go – centralised struct and type definitions referenced across the
// core package. Declaring these in one place avoids import cycles between
// the wire codec, the verifier, the state applier and the DAG engine.

import (
	"sync"
	"time"
)

// PubKey identifies an account by its 32-byte public key. Unlike the
// 20-byte Address convention of account-model chains this core follows the
// 32-byte convention of §3: every account, contract, and name owner is
// addressed directly by its public key.
type PubKey [32]byte

// Hash is a 32-byte BLAKE3 digest, used for transaction hashes, block
// hashes, and content-addressed storage keys.
type Hash [32]byte

// AssetID identifies a fungible asset (the native coin or a registered
// token/confidential asset) by a 32-byte hash.
type AssetID [32]byte

// NativeAsset is the zero AssetID, reserved for the chain's native coin.
var NativeAsset = AssetID{}

// Topoheight is the canonical linear index assigned to every block by
// deterministic DAG traversal (§4.2).
type Topoheight = uint64

// FeeType discriminates the currency a transaction's fee is paid in.
type FeeType uint8

const (
	FeeTOS    FeeType = 0
	FeeEnergy FeeType = 2
)

// Reference anchors a transaction to a block the submitter claims to know,
// bounding how old a transaction may be relative to the current DAG head.
type Reference struct {
	Hash       Hash
	Topoheight Topoheight
}

// Account is the applier's view of one on-chain identity.
type Account struct {
	Nonce                uint64
	RegistrationTopo     Topoheight
	PlainBalances        map[AssetID]uint64
	ConfidentialBalances map[AssetID]CipherText
	Agent                *AgentMetadata
}

// AgentMetadata carries the optional agent-account fields of §3.
type AgentMetadata struct {
	Owner         PubKey
	Controller    PubKey
	PolicyHash    Hash
	Status        byte
	EnergyPool    uint64
	SessionKeyRoot *Hash
}

func newAccount(topo Topoheight) *Account {
	return &Account{
		RegistrationTopo:     topo,
		PlainBalances:        make(map[AssetID]uint64),
		ConfidentialBalances: make(map[AssetID]CipherText),
	}
}

// Block is the DAG's unit of consensus: a header plus the ordered
// transactions it commits.
type Block struct {
	Header BlockHeader
	Txs    []*Transaction
}

// BlockHeader matches the wire layout of §6.
type BlockHeader struct {
	Version     uint8
	Height      uint64
	TimestampMs uint64
	Tips        []Hash
	ExtraNonce  [extraNonceSize]byte
	Miner       PubKey
	TxHashes    []Hash
	VRF         *BlockVrfData
	MinerSig    [64]byte
}

const extraNonceSize = 32

// BlockVrfData is present iff the vrf_block_data feature is active at a
// given height (§3).
type BlockVrfData struct {
	PublicKey [32]byte
	Output    [64]byte
	Proof     [80]byte
	Binding   [64]byte
}

// blockRecord is the storage-side wrapper kept alongside a Block: its hash,
// assigned topoheight, and stability bit.
type blockRecord struct {
	block      *Block
	hash       Hash
	topoheight Topoheight
	stable     bool
}

// Mempool holds pending transactions ordered by sender and nonce (§4.5).
// It follows the teacher's lock-guarded map+slice convention
// (core/txpool_addtx.go, core/txpool_snapshot.go in the teacher tree).
type Mempool struct {
	mu      sync.RWMutex
	bySender map[PubKey]map[uint64]*Transaction
	byHash   map[Hash]*Transaction
	maxSize  int
}

// pendingExec is one entry of the scheduled execution queue (§4.4).
type pendingExec struct {
	exec *ScheduledExecution
}

// Scheduler implements the future-topoheight priority queue of §4.4.
type Scheduler struct {
	mu        sync.Mutex
	queue     map[Topoheight][]*ScheduledExecution
	byHash    map[Hash]*ScheduledExecution
	results   map[Hash]ExecutionResult
	cfg       SchedulerConfig
}

// SchedulerConfig mirrors pkg/config.Config.Scheduler, duplicated here so
// core has no import on pkg/config (kept dependency-light per the teacher's
// common_structs.go convention).
type SchedulerConfig struct {
	MaxSchedulingHorizon             uint64
	MaxScheduledExecutionsPerBlock   int
	MaxScheduledExecutionGasPerBlock uint64
	MinimumCancellationWindow        uint64
}

// ExecutionResult is the durable summary of a completed or cancelled
// scheduled execution, owned by storage indefinitely (§3).
type ExecutionResult struct {
	Status     ExecStatus
	Topoheight Topoheight
}

// ExecStatus is the scheduled-execution status lifecycle of §3.
type ExecStatus uint8

const (
	ExecPending ExecStatus = iota
	ExecExecuted
	ExecCancelled
	ExecExpired
)

// ScheduleKind discriminates a scheduled execution's trigger (§3).
type ScheduleKind struct {
	IsBlockEnd bool
	TopoHeight Topoheight // valid iff !IsBlockEnd
}

// ScheduledExecution is the full record registered via ScheduleExecution
// payloads and tracked by the Scheduler (§3, §4.4).
type ScheduledExecution struct {
	Hash                  Hash
	Contract              PubKey
	ChunkID               uint32
	InputData             []byte
	MaxGas                uint64
	OfferAmount           uint64
	SchedulerContract     PubKey
	Kind                  ScheduleKind
	RegistrationTopoheight Topoheight
	Status                ExecStatus
	deferCount            int
}

// defer bounds retry: after maxDeferRetries a scheduled execution that keeps
// missing its block budget expires rather than retrying forever (§4.4,
// "the core must guarantee no infinite loop").
const maxDeferRetries = 8

// defer is invoked when exec didn't fit in the current block's budget. It
// returns true if the execution should expire instead of being retried at
// T+1.
func (e *ScheduledExecution) defer_() bool {
	e.deferCount++
	return e.deferCount > maxDeferRetries
}

// EscrowStatus enumerates the escrow state machine of §4.7.
type EscrowStatus uint8

const (
	EscrowActive EscrowStatus = iota
	EscrowChallenged
	EscrowResolved
	EscrowRefunded
	EscrowReleased
	EscrowPendingRelease
)

// Escrow is the full escrow record.
type Escrow struct {
	TaskID              string
	Payer               PubKey
	Provider            PubKey
	Asset               AssetID
	Amount              uint64
	Released            uint64
	Refunded            uint64
	PendingRelease       uint64
	TimeoutBlocks       uint64
	ChallengeWindow     uint64
	ChallengeDepositBps uint16
	OptimisticRelease   bool
	ArbitrationConfig   *ArbitrationConfig
	Status              EscrowStatus
	CreatedAt           Topoheight
	ChallengedAt        Topoheight
}

// ArbitrationConfig names the committee governing disputes over an escrow.
type ArbitrationConfig struct {
	CommitteeID  Hash
	MaxAppeals   int
}

// CommitteeRole enumerates arbiter/committee member roles (§4.8).
type CommitteeRole uint8

const (
	RoleMember CommitteeRole = iota
	RoleAdmin
)

// Committee is a KYC/arbitration committee: a set of public keys with
// roles and an approval threshold.
type Committee struct {
	ID        Hash
	Members   map[PubKey]CommitteeRole
	Threshold int
	ParentID  *Hash
}

// KYCStatus enumerates the record status of §4.8.
type KYCStatus uint8

const (
	KYCActive KYCStatus = iota
	KYCRevoked
)

// KYCRecord is the on-chain KYC state of an account.
type KYCRecord struct {
	Level       uint8
	VerifiedAt  int64
	DataHash    Hash
	CommitteeID Hash
	Status      KYCStatus
	ParentID    *Hash

	// subjectKey is the account this record belongs to; unexported because
	// it is the map key everywhere a KYCRecord is stored and only needs to
	// travel alongside the record itself (chainstate.go's commit path).
	subjectKey PubKey
}

// ArbitrationState enumerates the dispute lifecycle of §4.6.
type ArbitrationState uint8

const (
	ArbPending ArbitrationState = iota
	ArbOpen
	ArbVoteRequested
	ArbVoting
	ArbResolved
	ArbAppealed
)

// JurorVoteChoice enumerates a juror's vote (§4.6).
type JurorVoteChoice uint8

const (
	VotePay JurorVoteChoice = iota
	VoteRefund
	VoteAbstain
)

// Dispute tracks one arbitration round over an escrow.
type Dispute struct {
	ID          Hash
	EscrowTask  string
	CommitteeID Hash
	Jurors      []PubKey
	Votes       map[PubKey]JurorVoteChoice
	State       ArbitrationState
	Round       int
	Deadline    time.Time
	OpenedBy    PubKey
	EvidenceHash Hash
}

// NameRecord is a TNS registration (§4.9).
type NameRecord struct {
	Name      string
	Owner     PubKey
	Topoheight Topoheight
}

// EnergyFreeze records one FreezeTOS lock (§3, §4.3).
type EnergyFreeze struct {
	Owner            PubKey
	Amount           uint64
	UnlockTopoheight Topoheight
	EnergyGranted    uint64
}

// ContractExecutionReceipt is a supplemented feature (SPEC_FULL.md
// "Contract execution receipts") recovered from the Rust original's
// ContractsExecutions bootstrap step.
type ContractExecutionReceipt struct {
	Contract   PubKey
	EntryID    uint32
	GasUsed    uint64
	Success    bool
	Topoheight Topoheight
}
