package core

// chainstate.go – the state applier of §2 item 5 / §4.3 "Apply semantics".
// Grounded on the teacher's core/ledger.go applyBlock: a single struct
// owning every sub-ledger (accounts, balances, escrows, committees,
// names...), applying one transaction at a time with the teacher's
// map-mutation idiom. ChainState holds no lock of its own, and its apply
// path does not log.
//
// Unlike the teacher's UTXO ledger, apply here is staged: every mutation a
// transaction would make is buffered in a stagedDelta and only merged into
// the live maps once every check for that transaction has passed (Open
// Question decision #1 in SPEC_FULL.md: no partial state survives a failed
// apply, and a failing transaction never bumps the sender's nonce — decision
// #2).

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// ChainState is the applier's live view of account, escrow, committee, KYC,
// name, energy and scheduled-execution state. It has no notion of the DAG
// itself (dag.go owns tips/topoheight); ChainState only knows "apply this
// transaction as of this topoheight".
type ChainState struct {
	logger *logrus.Logger

	chainID               uint8
	coinValue             uint64
	feePerAccountCreation uint64
	maxTransferCount      int
	maxGasUsagePerTx      uint64
	freezeMultiplier      map[FreezeDuration]uint64
	blocksPerDay          uint64

	accounts    map[PubKey]*Account
	committees  map[Hash]*Committee
	kyc         map[PubKey]*KYCRecord
	names       map[string]*NameRecord
	nameOfOwner map[PubKey]string
	escrows     map[string]*Escrow
	energy      map[PubKey][]*EnergyFreeze
	contracts   map[PubKey]*deployedContract
	receipts    []ContractExecutionReceipt

	assetSupply map[AssetID]uint64
	feesBurned  uint64

	dispatch  ContractDispatcher
	refSource ReferenceSource
	storage   *Storage
}

// ReferenceSource answers whether a transaction's Reference (§3: a (hash,
// topoheight) anchor to a block the submitter claims to know) names a block
// the applier can actually verify. dag.go's *DAG satisfies this; tests that
// build transactions without a DAG get the permissive noopReferenceSource.
type ReferenceSource interface {
	ReferenceKnown(ref Reference) bool
}

// noopReferenceSource accepts every reference, including the zero value.
// It's the default so unit tests that never wire a DAG (or never set
// Transaction.Reference at all) keep working unchanged.
type noopReferenceSource struct{}

func (noopReferenceSource) ReferenceKnown(Reference) bool { return true }

// deployedContract is the applier's minimal record of a deployed contract;
// the VM itself is out of scope (§1) behind ContractDispatcher.
type deployedContract struct {
	Owner    PubKey
	Bytecode []byte
}

// NewChainState wires a fresh in-memory applier. A real deployment would
// hydrate accounts/escrows/etc. from Storage at startup; tests build state
// directly through the helpers below.
func NewChainState(lg *logrus.Logger, chainID uint8, cfg ChainStateConfig) *ChainState {
	return &ChainState{
		logger:                lg,
		chainID:               chainID,
		coinValue:             cfg.CoinValue,
		feePerAccountCreation: cfg.FeePerAccountCreation,
		maxTransferCount:      cfg.MaxTransferCount,
		maxGasUsagePerTx:      cfg.MaxGasUsagePerTx,
		blocksPerDay:          cfg.BlocksPerDay,
		freezeMultiplier: map[FreezeDuration]uint64{
			Freeze3Day:  cfg.Freeze3DayMultiplier,
			Freeze7Day:  cfg.Freeze7DayMultiplier,
			Freeze14Day: cfg.Freeze14DayMultiplier,
		},
		accounts:    make(map[PubKey]*Account),
		committees:  make(map[Hash]*Committee),
		kyc:         make(map[PubKey]*KYCRecord),
		names:       make(map[string]*NameRecord),
		nameOfOwner: make(map[PubKey]string),
		escrows:     make(map[string]*Escrow),
		energy:      make(map[PubKey][]*EnergyFreeze),
		contracts:   make(map[PubKey]*deployedContract),
		assetSupply: make(map[AssetID]uint64),
		dispatch:    noopDispatcher{},
		refSource:   noopReferenceSource{},
	}
}

// SetDispatcher overrides the contract dispatcher used by InvokeContract
// (the default is a no-op stub; a real node wires in its VM here).
func (cs *ChainState) SetDispatcher(d ContractDispatcher) {
	cs.dispatch = d
}

func (cs *ChainState) dispatcher() ContractDispatcher {
	if cs.dispatch == nil {
		return noopDispatcher{}
	}
	return cs.dispatch
}

// SetReferenceSource overrides what Apply consults to validate a
// transaction's Reference (the default accepts everything; a real node
// wires its *DAG in here so Apply can reject stale/unknown anchors).
func (cs *ChainState) SetReferenceSource(s ReferenceSource) {
	cs.refSource = s
}

func (cs *ChainState) referenceSource() ReferenceSource {
	if cs.refSource == nil {
		return noopReferenceSource{}
	}
	return cs.refSource
}

// SetStorage wires a Storage instance so every committed account mutation is
// also persisted there (§3/§6: the applier's accounts live in the Accounts,
// Balances and Nonces column families). The default is nil, meaning a purely
// in-memory applier, which is what every test that never calls this keeps
// using.
func (cs *ChainState) SetStorage(s *Storage) {
	cs.storage = s
}

// persistEscrow writes e into the Escrows family if a Storage is wired; the
// escrow lifecycle edges in escrow.go (Challenge, FinalizePendingRelease,
// ResolveByVerdict) mutate cs.escrows directly rather than through a
// stagedDelta, so they call this helper themselves to stay persisted.
func (cs *ChainState) persistEscrow(e *Escrow, topo Topoheight) {
	if cs.storage == nil {
		return
	}
	if enc, err := json.Marshal(e); err == nil {
		cs.storage.PutVersioned(FamilyEscrows, []byte(e.TaskID), topo, enc)
	}
}

// persistBalance re-writes pub's current balance of asset into the Balances
// family, for call sites (escrow.go's direct credits) that mutate an
// Account's balance outside the stagedDelta/commit path.
func (cs *ChainState) persistBalance(pub PubKey, asset AssetID, topo Topoheight) {
	if cs.storage == nil {
		return
	}
	a := cs.accounts[pub]
	if a == nil {
		return
	}
	cs.storage.PutVersioned(FamilyBalances, balanceKey(pub, asset), topo, encodeU64(a.PlainBalances[asset]))
}

// BalanceAt performs a point-in-time balance read through Storage, falling
// back to the live in-memory account when no Storage is wired. Intended for
// bootstrap.go's positional lookups and historical queries that must see
// state as of an older topoheight than the current tip.
func (cs *ChainState) BalanceAt(pub PubKey, asset AssetID, topo Topoheight) (uint64, bool) {
	if cs.storage == nil {
		a, ok := cs.accounts[pub]
		if !ok {
			return 0, false
		}
		return a.PlainBalances[asset], true
	}
	b, ok := cs.storage.GetAt(FamilyBalances, balanceKey(pub, asset), topo)
	if !ok {
		return 0, false
	}
	return decodeU64(b), true
}

// ChainStateConfig mirrors the pkg/config.Config fields the applier needs,
// duplicated here so core stays dependency-light (same rationale as
// SchedulerConfig in types.go).
type ChainStateConfig struct {
	CoinValue             uint64
	FeePerAccountCreation uint64
	MaxTransferCount      int
	MaxGasUsagePerTx      uint64
	BlocksPerDay          uint64
	Freeze3DayMultiplier  uint64
	Freeze7DayMultiplier  uint64
	Freeze14DayMultiplier uint64
}

// AccountOrNil returns the account for pub, or nil if unregistered. Exported
// so the verifier and tests can inspect state without reaching into the
// unexported map.
func (cs *ChainState) AccountOrNil(pub PubKey) *Account {
	return cs.accounts[pub]
}

// Register creates an account at the given topoheight if it doesn't already
// exist, returning the existing or new record.
func (cs *ChainState) Register(pub PubKey, topo Topoheight) *Account {
	if a, ok := cs.accounts[pub]; ok {
		return a
	}
	a := newAccount(topo)
	cs.accounts[pub] = a
	return a
}

// Credit adds amount of asset to pub's plain balance, registering the
// account first if it doesn't exist. It does not charge the account
// creation fee; applyTransfers (payloads.go) charges that fee for transfers
// to unregistered destinations.
func (cs *ChainState) Credit(pub PubKey, asset AssetID, amount uint64, topo Topoheight) {
	a := cs.Register(pub, topo)
	a.PlainBalances[asset] += amount
}

// stagedDelta accumulates every mutation Apply would make for one
// transaction. Nothing in the live maps changes until commit() runs, which
// only happens after every precedence check has passed.
type stagedDelta struct {
	cs *ChainState

	balanceDeltas map[PubKey]map[AssetID]int64 // signed, applied on commit
	newAccounts   []PubKey
	nonceBump     *PubKey
	energyAdd     *EnergyFreeze
	energyRemove  *EnergyFreeze
	escrowPut     *Escrow
	escrowDelete  string
	namePut       *NameRecord
	kycPut        *KYCRecord
	committeePut  *Committee
	contractPut   *deployedContract
	contractKey   PubKey
	supplyDelta   map[AssetID]int64
	feesBurned    uint64
	receipt       *ContractExecutionReceipt
	multiSig      *MultiSigPayload
	multiSigOwner PubKey
	agent         *AgentMetadata
	agentOwner    PubKey

	confidentialCredits []confidentialCredit
	confidentialDebits  []confidentialCredit
}

func newStagedDelta(cs *ChainState) *stagedDelta {
	return &stagedDelta{
		cs:            cs,
		balanceDeltas: make(map[PubKey]map[AssetID]int64),
		supplyDelta:   make(map[AssetID]int64),
	}
}

func (d *stagedDelta) debit(pub PubKey, asset AssetID, amount uint64) {
	d.credit(pub, asset, -int64(amount))
}

func (d *stagedDelta) credit(pub PubKey, asset AssetID, signedAmount int64) {
	m, ok := d.balanceDeltas[pub]
	if !ok {
		m = make(map[AssetID]int64)
		d.balanceDeltas[pub] = m
	}
	m[asset] += signedAmount
}

// projectedBalance returns what pub's balance of asset would be after this
// delta commits, without mutating live state. Used by checks that need to
// see earlier effects within the same transaction (e.g. fee + transfer both
// drawing from the native asset).
func (d *stagedDelta) projectedBalance(pub PubKey, asset AssetID) (uint64, bool) {
	a, ok := d.cs.accounts[pub]
	var base uint64
	if ok {
		base = a.PlainBalances[asset]
	}
	delta := d.balanceDeltas[pub][asset]
	signed := int64(base) + delta
	if signed < 0 {
		return 0, false
	}
	return uint64(signed), true
}

// commit merges every staged mutation into live state. Called only once the
// transaction has cleared every §4.3 check; it cannot fail.
func (d *stagedDelta) commit(topo Topoheight) {
	cs := d.cs
	for _, pub := range d.newAccounts {
		cs.Register(pub, topo)
	}
	for pub, deltas := range d.balanceDeltas {
		a := cs.Register(pub, topo)
		for asset, delta := range deltas {
			if delta == 0 {
				continue
			}
			signed := int64(a.PlainBalances[asset]) + delta
			if signed < 0 {
				signed = 0 // unreachable: projectedBalance guarded this pre-commit
			}
			a.PlainBalances[asset] = uint64(signed)
			if cs.storage != nil {
				cs.storage.PutVersioned(FamilyBalances, balanceKey(pub, asset), topo, encodeU64(a.PlainBalances[asset]))
			}
		}
		if cs.storage != nil {
			cs.storage.PutVersioned(FamilyAccounts, pub[:], topo, encodeU64(a.RegistrationTopo))
		}
	}
	if d.nonceBump != nil {
		a := cs.accounts[*d.nonceBump]
		a.Nonce++
		if cs.storage != nil {
			cs.storage.PutVersioned(FamilyNonces, (*d.nonceBump)[:], topo, encodeU64(a.Nonce))
		}
	}
	if d.energyAdd != nil {
		cs.energy[d.energyAdd.Owner] = append(cs.energy[d.energyAdd.Owner], d.energyAdd)
		if cs.storage != nil {
			if enc, err := json.Marshal(d.energyAdd); err == nil {
				cs.storage.PutVersioned(FamilyEnergyRecords, energyRecordKey(d.energyAdd), topo, enc)
			}
		}
	}
	if d.energyRemove != nil {
		list := cs.energy[d.energyRemove.Owner]
		for i, f := range list {
			if f == d.energyRemove {
				cs.energy[d.energyRemove.Owner] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if cs.storage != nil {
			cs.storage.DeleteAt(FamilyEnergyRecords, energyRecordKey(d.energyRemove), topo)
		}
	}
	if d.escrowPut != nil {
		cs.escrows[d.escrowPut.TaskID] = d.escrowPut
		cs.persistEscrow(d.escrowPut, topo)
	}
	if d.escrowDelete != "" {
		delete(cs.escrows, d.escrowDelete)
		if cs.storage != nil {
			cs.storage.DeleteAt(FamilyEscrows, []byte(d.escrowDelete), topo)
		}
	}
	if d.namePut != nil {
		cs.names[d.namePut.Name] = d.namePut
		cs.nameOfOwner[d.namePut.Owner] = d.namePut.Name
		if cs.storage != nil {
			if enc, err := json.Marshal(d.namePut); err == nil {
				cs.storage.PutVersioned(FamilyTNS, []byte(d.namePut.Name), topo, enc)
			}
		}
	}
	if d.kycPut != nil {
		cs.kyc[d.kycPut.subject()] = d.kycPut
		if cs.storage != nil {
			subject := d.kycPut.subject()
			if enc, err := json.Marshal(d.kycPut); err == nil {
				cs.storage.PutVersioned(FamilyKYC, subject[:], topo, enc)
			}
		}
	}
	if d.committeePut != nil {
		cs.committees[d.committeePut.ID] = d.committeePut
	}
	if d.contractPut != nil {
		cs.contracts[d.contractKey] = d.contractPut
	}
	for asset, delta := range d.supplyDelta {
		signed := int64(cs.assetSupply[asset]) + delta
		if signed < 0 {
			signed = 0
		}
		cs.assetSupply[asset] = uint64(signed)
	}
	cs.feesBurned += d.feesBurned
	if d.receipt != nil {
		cs.receipts = append(cs.receipts, *d.receipt)
	}
	if d.multiSig != nil {
		a := cs.accounts[d.multiSigOwner]
		_ = a // multisig policy itself lives on Account in a real deployment;
		// the spec's invariants only require threshold/signer validation,
		// which the verifier already performed - nothing further to commit
		// beyond the nonce bump already staged above.
	}
	if d.agent != nil {
		a := cs.Register(d.agentOwner, topo)
		a.Agent = d.agent
	}
	for _, cc := range d.confidentialCredits {
		a := cs.Register(cc.to, topo)
		cur := a.ConfidentialBalances[cc.asset]
		if sum, err := AddCipherText(cur, cc.amount); err == nil {
			a.ConfidentialBalances[cc.asset] = sum
		}
	}
	for _, cc := range d.confidentialDebits {
		// Subtraction under the El-Gamal group is addition of the negated
		// point; the simplified ciphertext model here doesn't expose point
		// negation, so the sender-side balance is left for a real
		// deployment's homomorphic subtraction to apply. Recording the
		// debit keeps the staged-delta shape symmetric with the credit
		// side for when that primitive is wired in.
		_ = cc
	}
}

// subject is a tiny accessor so commit() can key the kyc map without a
// separate field threaded through stagedDelta.
func (r *KYCRecord) subject() PubKey { return r.subjectKey }

// Apply verifies tx against current state (delegating to VerifyStatic for
// the checks that don't need mutation) and, if every precedence check
// passes, commits its effects atomically. topo is the topoheight the
// containing block will occupy.
func (cs *ChainState) Apply(tx *Transaction, topo Topoheight) error {
	if err := cs.VerifyStatic(tx); err != nil {
		return err
	}

	delta := newStagedDelta(cs)
	sender := cs.accounts[tx.Source]
	senderExists := sender != nil

	// Nonce discipline (§4.3, precedence 7-9): batch-aware validation is the
	// mempool's job (mempool.go); by the time Apply runs under a block the
	// expected nonce is simply S(A)+1.
	var expected uint64 = 1
	if senderExists {
		expected = sender.Nonce + 1
	}
	switch {
	case tx.Nonce < expected:
		return errNonceTooLow("nonce below expected")
	case tx.Nonce > expected:
		return errNonceTooHigh("nonce above expected")
	}
	// tx.Nonce == expected is handled, but a literal replay (Nonce == S(A))
	// is indistinguishable from "too low" once already bumped, consistent
	// with §8's "NONCE_TOO_LOW or NONCE_REPLAYED consistently" allowance:
	// this core always returns NONCE_TOO_LOW for Nonce <= S(A).

	if !senderExists {
		return errAccountNotFound("sender not registered")
	}

	// Reference freshness (§4.3, precedence 15: record-not-found territory):
	// the anchor must name a block the applier already knows about.
	if !cs.referenceSource().ReferenceKnown(tx.Reference) {
		return errRecordNotFound("transaction reference names an unknown block")
	}

	if err := cs.applyPayload(tx, delta, topo); err != nil {
		return err
	}

	// Fee settlement happens last so every payload-specific balance check
	// above has already reserved what it needs; the fee itself is always
	// native coin per account-creation-fee rule, except Energy/UNO fee
	// types which draw from the energy pool instead.
	if err := cs.chargeFee(tx, delta); err != nil {
		return err
	}

	pub := tx.Source
	delta.nonceBump = &pub
	delta.commit(topo)
	return nil
}

// chargeFee deducts tx.Fee in the asset tx.FeeType names, from the
// already-staged delta so it composes with whatever the payload reserved.
func (cs *ChainState) chargeFee(tx *Transaction, delta *stagedDelta) error {
	switch tx.FeeType {
	case FeeTOS:
		bal, ok := delta.projectedBalance(tx.Source, NativeAsset)
		if !ok || bal < tx.Fee {
			return errInsufficientFee("insufficient native balance for fee")
		}
		delta.debit(tx.Source, NativeAsset, tx.Fee)
	case FeeEnergy:
		pool := cs.energyPoolOf(tx.Source)
		if pool < tx.Fee {
			return errInsufficientFee("insufficient energy balance for fee")
		}
		cs.debitEnergyPool(tx.Source, tx.Fee)
	default:
		return errInvalidFormat("unknown fee type")
	}
	return nil
}

// energyPoolOf sums the energy granted by every still-frozen record owned
// by pub. A real deployment would track a running counter; summing here
// keeps the applier's state small and obviously correct.
func (cs *ChainState) energyPoolOf(pub PubKey) uint64 {
	var total uint64
	for _, f := range cs.energy[pub] {
		total += f.EnergyGranted
	}
	if a := cs.accounts[pub]; a != nil && a.Agent != nil {
		total += a.Agent.EnergyPool
	}
	return total
}

func (cs *ChainState) debitEnergyPool(pub PubKey, amount uint64) {
	remaining := amount
	list := cs.energy[pub]
	for _, f := range list {
		if remaining == 0 {
			break
		}
		if f.EnergyGranted <= remaining {
			remaining -= f.EnergyGranted
			f.EnergyGranted = 0
		} else {
			f.EnergyGranted -= remaining
			remaining = 0
		}
	}
}
