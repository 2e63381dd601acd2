package core

// escrow.go – the challenge-window and verdict-driven transitions of the
// §4.7 escrow state machine that aren't triggered by a single payload kind:
// raising a challenge, letting an unchallenged pending release finalize,
// and applying an arbitration verdict's partial release/refund split.
// CreateEscrow/ReleaseEscrow/RefundEscrow themselves live in payloads.go
// since they're direct payload effects; these are the state machine's
// "time passes" and "arbitration resolves" edges, grounded on the
// teacher's core/escrow.go Escrow_Challenge/Escrow_Resolve pair.

// Challenge transitions an Active or PendingRelease escrow to Challenged.
// Either party may raise it; past the challenge window it's too late.
func (cs *ChainState) Challenge(taskID string, by PubKey, topo Topoheight) error {
	e, ok := cs.escrows[taskID]
	if !ok {
		return errRecordNotFound("escrow does not exist")
	}
	if by != e.Payer && by != e.Provider {
		return errUnauthorized("only a party to the escrow may challenge it")
	}
	if e.Status != EscrowActive && e.Status != EscrowPendingRelease {
		return errInvalidPayload("escrow is not in a challengeable state")
	}
	if topo > e.CreatedAt+e.ChallengeWindow {
		return errInvalidPayload("challenge window has elapsed")
	}
	next := *e
	next.Status = EscrowChallenged
	next.ChallengedAt = topo
	cs.escrows[taskID] = &next
	cs.persistEscrow(&next, topo)
	return nil
}

// FinalizePendingRelease moves a PendingRelease escrow to Released once the
// challenge window has elapsed without a challenge (§4.7 "a pending release
// becomes final"), crediting the pending amount to the provider.
func (cs *ChainState) FinalizePendingRelease(taskID string, topo Topoheight) error {
	e, ok := cs.escrows[taskID]
	if !ok {
		return errRecordNotFound("escrow does not exist")
	}
	if e.Status != EscrowPendingRelease {
		return errInvalidPayload("escrow has no pending release to finalize")
	}
	if topo <= e.CreatedAt+e.ChallengeWindow {
		return errInvalidPayload("challenge window has not yet elapsed")
	}
	a := cs.Register(e.Provider, topo)
	a.PlainBalances[e.Asset] += e.PendingRelease
	cs.persistBalance(e.Provider, e.Asset, topo)
	next := *e
	next.Released += next.PendingRelease
	next.PendingRelease = 0
	if next.Released+next.Refunded == next.Amount {
		next.Status = EscrowResolved
	} else {
		next.Status = EscrowActive
	}
	cs.escrows[taskID] = &next
	cs.persistEscrow(&next, topo)
	return nil
}

// ResolveByVerdict applies an arbitration verdict's release/refund split to
// a Challenged escrow, per §4.6/§4.7 ("partial release + partial refund
// allowed per verdict amounts").
func (cs *ChainState) ResolveByVerdict(taskID string, releaseAmount, refundAmount uint64, topo Topoheight) error {
	e, ok := cs.escrows[taskID]
	if !ok {
		return errRecordNotFound("escrow does not exist")
	}
	if e.Status != EscrowChallenged {
		return errInvalidPayload("escrow is not under arbitration")
	}
	remaining := e.Amount - e.Released - e.Refunded - e.PendingRelease
	if releaseAmount+refundAmount > remaining {
		return errInvalidAmount("verdict amounts exceed remaining escrow balance")
	}
	if releaseAmount > 0 {
		cs.Register(e.Provider, topo).PlainBalances[e.Asset] += releaseAmount
		cs.persistBalance(e.Provider, e.Asset, topo)
	}
	if refundAmount > 0 {
		cs.Register(e.Payer, topo).PlainBalances[e.Asset] += refundAmount
		cs.persistBalance(e.Payer, e.Asset, topo)
	}
	next := *e
	next.Released += releaseAmount
	next.Refunded += refundAmount
	if next.Released+next.Refunded == next.Amount {
		next.Status = EscrowResolved
	} else {
		next.Status = EscrowActive
	}
	cs.escrows[taskID] = &next
	cs.persistEscrow(&next, topo)
	return nil
}

// EscrowByTaskID exposes a read-only lookup for query surfaces and tests.
func (cs *ChainState) EscrowByTaskID(taskID string) (*Escrow, bool) {
	e, ok := cs.escrows[taskID]
	return e, ok
}
