package core

// payloads.go – the per-payload-kind state effects of §4.3/§4.4/§4.7/§4.8/
// §4.9: the state-dependent half of the precedence table (checks 10-18) plus
// the actual balance/record mutations, all staged into a stagedDelta and
// only merged by ChainState.Apply once every check has passed.
//
// Grounded on the teacher's core/ledger.go applyBlock per-tx switch (UTXO
// updates, token transfers, contract deployment, fee distribution all
// inlined in one loop body) generalised to this core's payload sum type.

import "fmt"

// applyPayload dispatches by payload kind, staging every mutation into
// delta. topo is the topoheight the containing block occupies.
func (cs *ChainState) applyPayload(tx *Transaction, delta *stagedDelta, topo Topoheight) error {
	switch tx.Payload.Kind {
	case PayloadTransfers:
		return cs.applyTransfers(tx, delta, topo)
	case PayloadBurn:
		return cs.applyBurn(tx, delta)
	case PayloadFreezeTOS:
		return cs.applyFreeze(tx, delta, topo)
	case PayloadUnfreezeTOS:
		return cs.applyUnfreeze(tx, delta, topo)
	case PayloadMultiSig:
		delta.multiSig = tx.Payload.MultiSig
		delta.multiSigOwner = tx.Source
		return nil
	case PayloadDeployContract:
		return cs.applyDeployContract(tx, delta)
	case PayloadInvokeContract:
		return cs.applyInvokeContract(tx, delta)
	case PayloadScheduleExecution:
		// Registration into the Scheduler's priority queue is handled by
		// scheduler.go's Register (it owns the queue, not ChainState); the
		// applier's only responsibility here is the offer/burn economics.
		return cs.applyScheduleEconomics(tx, delta)
	case PayloadRegisterArbiter, PayloadRequestArbiterExit, PayloadCancelArbiterExit:
		return cs.applyArbiterLifecycle(tx)
	case PayloadCreateEscrow:
		return cs.applyCreateEscrow(tx, delta, topo)
	case PayloadReleaseEscrow:
		return cs.applyReleaseEscrow(tx, delta)
	case PayloadRefundEscrow:
		return cs.applyRefundEscrow(tx, delta)
	case PayloadSetKyc:
		return cs.applySetKyc(tx, delta)
	case PayloadRevokeKyc:
		return cs.applyRevokeKyc(tx, delta)
	case PayloadRenewKyc:
		return cs.applyRenewKyc(tx, delta)
	case PayloadTransferKyc:
		return cs.applyTransferKyc(tx, delta)
	case PayloadAppealKyc:
		return cs.applyAppealKyc(tx, delta)
	case PayloadRegisterName:
		return cs.applyRegisterName(tx, delta, topo)
	case PayloadTransferName:
		return cs.applyTransferName(tx)
	case PayloadAgentAccount:
		return cs.applyAgentAccount(tx, delta)
	default:
		return errInvalidFormat(fmt.Sprintf("unhandled payload kind %d", tx.Payload.Kind))
	}
}

// --- Transfers ---------------------------------------------------------

func (cs *ChainState) applyTransfers(tx *Transaction, delta *stagedDelta, topo Topoheight) error {
	p := tx.Payload.Transfers
	for _, t := range p.Plain {
		bal, ok := delta.projectedBalance(tx.Source, t.Asset)
		if !ok || bal < t.Amount {
			return errInsufficientFunds("insufficient balance for transfer")
		}
		if t.Destination == tx.Source {
			return errSelfOperation("cannot transfer to self")
		}
		delta.debit(tx.Source, t.Asset, t.Amount)

		if _, exists := cs.accounts[t.Destination]; !exists {
			// account-creation fee: always native coin, charged on top of
			// the transfer itself regardless of the tx's own fee type.
			feeBal, ok := delta.projectedBalance(tx.Source, NativeAsset)
			if !ok || feeBal < cs.feePerAccountCreation {
				return errInsufficientFunds("insufficient native balance for account creation fee")
			}
			delta.debit(tx.Source, NativeAsset, cs.feePerAccountCreation)
			delta.newAccounts = append(delta.newAccounts, t.Destination)
		}
		delta.credit(t.Destination, t.Asset, int64(t.Amount))
	}
	for _, ct := range p.Confidential {
		if ct.Destination == tx.Source {
			return errSelfOperation("cannot transfer to self")
		}
		if _, exists := cs.accounts[ct.Destination]; !exists {
			delta.newAccounts = append(delta.newAccounts, ct.Destination)
		}
		// Confidential balances are homomorphically combined; the actual
		// ciphertext bookkeeping is a per-account map update performed at
		// commit time via a dedicated hook, since stagedDelta's signed-int
		// balance model only applies to plaintext assets.
		delta.confidentialCredits = append(delta.confidentialCredits, confidentialCredit{
			to: ct.Destination, asset: ct.Asset, amount: ct.Commitment,
		})
		delta.confidentialDebits = append(delta.confidentialDebits, confidentialCredit{
			to: tx.Source, asset: ct.Asset, amount: ct.Commitment,
		})
	}
	return nil
}

// confidentialCredit stages one El-Gamal ciphertext homomorphic add/sub
// against an account's confidential balance for asset.
type confidentialCredit struct {
	to     PubKey
	asset  AssetID
	amount CipherText
}

// --- Burn ----------------------------------------------------------------

func (cs *ChainState) applyBurn(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.Burn
	bal, ok := delta.projectedBalance(tx.Source, p.Asset)
	if !ok || bal < p.Amount {
		return errInsufficientFunds("insufficient balance to burn")
	}
	delta.debit(tx.Source, p.Asset, p.Amount)
	delta.supplyDelta[p.Asset] -= int64(p.Amount)
	return nil
}

// --- Freeze / Unfreeze (energy economy, §4.3) ---------------------------

func (cs *ChainState) applyFreeze(tx *Transaction, delta *stagedDelta, topo Topoheight) error {
	p := tx.Payload.Freeze
	bal, ok := delta.projectedBalance(tx.Source, NativeAsset)
	if !ok || bal < p.Amount {
		return errInsufficientFunds("insufficient balance to freeze")
	}
	delta.debit(tx.Source, NativeAsset, p.Amount)

	multiplier := cs.freezeMultiplier[p.Duration]
	granted := (p.Amount / cs.coinValue) * multiplier
	unlock := topo + p.Duration.Days()*cs.blocksPerDay
	delta.energyAdd = &EnergyFreeze{
		Owner:            tx.Source,
		Amount:           p.Amount,
		UnlockTopoheight: unlock,
		EnergyGranted:    granted,
	}
	return nil
}

func (cs *ChainState) applyUnfreeze(tx *Transaction, delta *stagedDelta, topo Topoheight) error {
	p := tx.Payload.Unfreeze
	var match *EnergyFreeze
	for _, f := range cs.energy[tx.Source] {
		if f.Amount == p.Amount && f.UnlockTopoheight <= topo {
			match = f
			break
		}
	}
	if match == nil {
		return errRecordNotFound("no matured freeze record for amount")
	}
	delta.credit(tx.Source, NativeAsset, int64(p.Amount))
	delta.energyRemove = match
	return nil
}

// --- Contracts -------------------------------------------------------------

func (cs *ChainState) applyDeployContract(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.DeployContract
	addr := tx.Source
	if _, exists := cs.contracts[addr]; exists {
		return errAlreadyExists("contract already deployed at this address")
	}
	delta.contractPut = &deployedContract{Owner: tx.Source, Bytecode: p.Bytecode}
	delta.contractKey = addr
	return nil
}

func (cs *ChainState) applyInvokeContract(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.InvokeContract
	target, ok := cs.contracts[p.Contract]
	if !ok {
		return errContractNotFound("contract does not exist")
	}
	bal, ok := delta.projectedBalance(tx.Source, NativeAsset)
	if !ok || bal < tx.Fee+p.MaxGas {
		return errInsufficientFunds("insufficient balance for fee + max_gas")
	}
	delta.debit(tx.Source, NativeAsset, p.MaxGas)
	for _, d := range p.Deposits {
		dbal, ok := delta.projectedBalance(tx.Source, d.Asset)
		if !ok || dbal < d.Amount {
			return errInsufficientFunds("insufficient balance for deposit")
		}
		delta.debit(tx.Source, d.Asset, d.Amount)
		delta.credit(p.Contract, d.Asset, int64(d.Amount))
	}
	gasUsed, success := cs.dispatcher().Invoke(target, p.EntryID, p.Parameters, p.MaxGas)
	refund := p.MaxGas - gasUsed
	if refund > 0 {
		delta.credit(tx.Source, NativeAsset, int64(refund))
	}
	delta.receipt = &ContractExecutionReceipt{
		Contract: p.Contract, EntryID: p.EntryID, GasUsed: gasUsed, Success: success,
	}
	return nil
}

// --- Scheduled execution economics (§4.4) --------------------------------

func (cs *ChainState) applyScheduleEconomics(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.ScheduleExec
	if p.OfferAmount == 0 {
		return nil
	}
	bal, ok := delta.projectedBalance(tx.Source, NativeAsset)
	if !ok || bal < p.OfferAmount {
		return errInsufficientFunds("insufficient balance for scheduling offer")
	}
	delta.debit(tx.Source, NativeAsset, p.OfferAmount)
	burn := p.OfferAmount * 30 / 100
	delta.supplyDelta[NativeAsset] -= int64(burn)
	delta.feesBurned += burn
	return nil
}

// --- Arbiter lifecycle (§3) ----------------------------------------------

func (cs *ChainState) applyArbiterLifecycle(tx *Transaction) error {
	var committeeID Hash
	switch tx.Payload.Kind {
	case PayloadRegisterArbiter:
		committeeID = tx.Payload.RegisterArbiter.CommitteeID
	case PayloadRequestArbiterExit:
		committeeID = tx.Payload.RequestArbExit.CommitteeID
	case PayloadCancelArbiterExit:
		committeeID = tx.Payload.CancelArbExit.CommitteeID
	}
	if _, ok := cs.committees[committeeID]; !ok {
		return errCommitteeNotFound("committee does not exist")
	}
	return nil
}

// --- Escrow (§4.7) ---------------------------------------------------------

func (cs *ChainState) applyCreateEscrow(tx *Transaction, delta *stagedDelta, topo Topoheight) error {
	p := tx.Payload.CreateEscrow
	bal, ok := delta.projectedBalance(tx.Source, p.Asset)
	if !ok || bal < p.Amount {
		return errInsufficientFunds("insufficient balance to fund escrow")
	}
	if _, exists := cs.escrows[p.TaskID]; exists {
		return errAlreadyExists("escrow task_id already in use")
	}
	if p.Provider == tx.Source {
		return errSelfOperation("provider cannot equal payer")
	}
	delta.debit(tx.Source, p.Asset, p.Amount)
	delta.escrowPut = &Escrow{
		TaskID: p.TaskID, Payer: tx.Source, Provider: p.Provider, Asset: p.Asset,
		Amount: p.Amount, TimeoutBlocks: p.TimeoutBlocks, ChallengeWindow: p.ChallengeWindow,
		ChallengeDepositBps: p.ChallengeDepositBps, OptimisticRelease: p.OptimisticRelease,
		ArbitrationConfig: p.ArbitrationConfig, Status: EscrowActive, CreatedAt: topo,
	}
	return nil
}

func (cs *ChainState) applyReleaseEscrow(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.ReleaseEscrow
	e, ok := cs.escrows[p.TaskID]
	if !ok {
		return errRecordNotFound("escrow does not exist")
	}
	if e.Payer != tx.Source {
		return errUnauthorized("only the payer may release")
	}
	remaining := e.Amount - e.Released - e.Refunded - e.PendingRelease
	if p.Amount > remaining {
		return errInsufficientFunds("release amount exceeds remaining escrow balance")
	}
	next := *e
	if e.OptimisticRelease {
		next.PendingRelease += p.Amount
		next.Status = EscrowPendingRelease
	} else {
		delta.credit(e.Provider, e.Asset, int64(p.Amount))
		next.Released += p.Amount
		if next.Released+next.Refunded == next.Amount {
			next.Status = EscrowResolved
		}
	}
	delta.escrowPut = &next
	return nil
}

func (cs *ChainState) applyRefundEscrow(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.RefundEscrow
	e, ok := cs.escrows[p.TaskID]
	if !ok {
		return errRecordNotFound("escrow does not exist")
	}
	if e.Payer != tx.Source {
		return errUnauthorized("only the payer may refund")
	}
	remaining := e.Amount - e.Released - e.Refunded - e.PendingRelease
	if p.Amount > remaining {
		return errInsufficientFunds("refund amount exceeds remaining escrow balance")
	}
	delta.credit(e.Payer, e.Asset, int64(p.Amount))
	next := *e
	next.Refunded += p.Amount
	if next.Released+next.Refunded == next.Amount {
		next.Status = EscrowRefunded
	}
	delta.escrowPut = &next
	return nil
}

// --- KYC / committee (§4.8) -----------------------------------------------

func (cs *ChainState) verifyApprovals(committeeID Hash, approvals []CommitteeApproval, msg Hash) error {
	committee, ok := cs.committees[committeeID]
	if !ok {
		return errCommitteeNotFound("committee does not exist")
	}
	valid := 0
	seen := make(map[PubKey]bool)
	for _, a := range approvals {
		if seen[a.Member] {
			continue
		}
		if _, isMember := committee.Members[a.Member]; !isMember {
			continue
		}
		if verifyRawSignature(a.Member, msg, a.Signature) {
			valid++
			seen[a.Member] = true
		}
	}
	if valid < committee.Threshold {
		return errUnauthorized("insufficient committee approvals")
	}
	return nil
}

func (cs *ChainState) applySetKyc(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.SetKyc
	msg := hashDomain("tos-kyc-set-v1", p.Subject[:], []byte{p.Level}, p.DataHash[:])
	if err := cs.verifyApprovals(p.CommitteeID, p.Approvals, msg); err != nil {
		return err
	}
	if existing, ok := cs.kyc[p.Subject]; ok && existing.Status != KYCRevoked {
		return errAlreadyExists("subject already has an active kyc record")
	}
	delta.kycPut = &KYCRecord{
		Level: p.Level, DataHash: p.DataHash, CommitteeID: p.CommitteeID,
		Status: KYCActive, subjectKey: p.Subject,
	}
	return nil
}

func (cs *ChainState) applyRevokeKyc(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.RevokeKyc
	msg := hashDomain("tos-kyc-revoke-v1", p.Subject[:])
	if err := cs.verifyApprovals(p.CommitteeID, p.Approvals, msg); err != nil {
		return err
	}
	rec, ok := cs.kyc[p.Subject]
	if !ok {
		return errRecordNotFound("no kyc record for subject")
	}
	next := *rec
	next.Status = KYCRevoked
	delta.kycPut = &next
	return nil
}

func (cs *ChainState) applyRenewKyc(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.RenewKyc
	msg := hashDomain("tos-kyc-renew-v1", p.Subject[:])
	if err := cs.verifyApprovals(p.CommitteeID, p.Approvals, msg); err != nil {
		return err
	}
	rec, ok := cs.kyc[p.Subject]
	if !ok {
		return errRecordNotFound("no kyc record for subject")
	}
	next := *rec
	next.Status = KYCActive
	delta.kycPut = &next
	return nil
}

func (cs *ChainState) applyTransferKyc(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.TransferKyc
	rec, ok := cs.kyc[p.Subject]
	if !ok {
		return errRecordNotFound("no kyc record for subject")
	}
	if p.Subject != tx.Source {
		return errUnauthorized("only the subject may transfer their own record")
	}
	next := *rec
	next.subjectKey = p.NewOwner
	delta.kycPut = &next
	return nil
}

func (cs *ChainState) applyAppealKyc(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.AppealKyc
	msg := hashDomain("tos-kyc-appeal-v1", p.Subject[:], p.NewCommittee[:])
	if err := cs.verifyApprovals(p.NewCommittee, p.Approvals, msg); err != nil {
		return err
	}
	rec, ok := cs.kyc[p.Subject]
	if !ok || rec.Status != KYCRevoked {
		return errRecordNotFound("subject has no revoked kyc record to appeal")
	}
	parent := p.ParentCommittee
	delta.kycPut = &KYCRecord{
		Level: rec.Level, DataHash: rec.DataHash, CommitteeID: p.NewCommittee,
		Status: KYCActive, ParentID: &parent, subjectKey: p.Subject,
	}
	return nil
}

// --- TNS (§4.9) -------------------------------------------------------------

func (cs *ChainState) applyRegisterName(tx *Transaction, delta *stagedDelta, topo Topoheight) error {
	p := tx.Payload.RegisterName
	if _, taken := cs.names[lower(p.Name)]; taken {
		return errAlreadyExists("name already registered")
	}
	if _, owns := cs.nameOfOwner[tx.Source]; owns {
		return errAlreadyBound("account already owns a name")
	}
	bal, ok := delta.projectedBalance(tx.Source, NativeAsset)
	if !ok || bal < tx.Fee {
		return errInsufficientFee("insufficient balance for registration fee")
	}
	delta.namePut = &NameRecord{Name: lower(p.Name), Owner: tx.Source, Topoheight: topo}
	return nil
}

func (cs *ChainState) applyTransferName(tx *Transaction) error {
	// Non-transferable per the Open Question decision recorded in
	// SPEC_FULL.md: no code path reassigns an existing NameRecord, so every
	// TransferName transaction is rejected.
	return errUnauthorized("names are not transferable")
}

// --- Agent accounts (§3) ---------------------------------------------------

func (cs *ChainState) applyAgentAccount(tx *Transaction, delta *stagedDelta) error {
	p := tx.Payload.AgentAccount
	delta.agentOwner = tx.Source
	delta.agent = &AgentMetadata{
		Owner: tx.Source, Controller: p.Controller, PolicyHash: p.PolicyHash,
		SessionKeyRoot: p.SessionKeyRoot,
	}
	return nil
}
