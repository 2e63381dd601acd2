package core

import "testing"

func TestEscrowCreateReleaseResolve(t *testing.T) {
	cs := newTestChainState(t)
	payerPriv, payer := newKey(t)
	_, provider := newKey(t)
	cs.Register(payer, 0).PlainBalances[NativeAsset] = 1_000
	cs.Register(provider, 0)

	createTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: payer, Fee: 1, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadCreateEscrow, CreateEscrow: &CreateEscrowPayload{
			TaskID: "job-1", Provider: provider, Amount: 500, Asset: NativeAsset,
			TimeoutBlocks: 100, ChallengeWindow: 10,
		}},
	}
	if err := createTx.Sign(payerPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(createTx, 1); err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	if e, ok := cs.EscrowByTaskID("job-1"); !ok || e.Status != EscrowActive {
		t.Fatalf("expected active escrow, got %+v", e)
	}

	releaseTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: payer, Fee: 1, FeeType: FeeTOS, Nonce: 2,
		Payload: Payload{Kind: PayloadReleaseEscrow, ReleaseEscrow: &ReleaseEscrowPayload{
			TaskID: "job-1", Amount: 500,
		}},
	}
	if err := releaseTx.Sign(payerPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(releaseTx, 2); err != nil {
		t.Fatalf("release escrow: %v", err)
	}
	if got := cs.accounts[provider].PlainBalances[NativeAsset]; got != 500 {
		t.Fatalf("provider balance = %d, want 500", got)
	}
	if e, _ := cs.EscrowByTaskID("job-1"); e.Status != EscrowResolved {
		t.Fatalf("expected resolved escrow, got status %d", e.Status)
	}
}

func TestEscrowCreateRejectsSelfAsProvider(t *testing.T) {
	cs := newTestChainState(t)
	priv, pub := newKey(t)
	cs.Register(pub, 0).PlainBalances[NativeAsset] = 1_000

	tx := &Transaction{
		Version: TxV0, ChainID: 1, Source: pub, Fee: 1, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadCreateEscrow, CreateEscrow: &CreateEscrowPayload{
			TaskID: "job-2", Provider: pub, Amount: 10, Asset: NativeAsset, TimeoutBlocks: 5,
		}},
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	err := cs.Apply(tx, 1)
	ce, ok := err.(*CodedError)
	if !ok || ce.Code != CodeSelfOperation {
		t.Fatalf("expected SELF_OPERATION, got %v", err)
	}
}

func TestEscrowOptimisticReleaseFinalizesAfterWindow(t *testing.T) {
	cs := newTestChainState(t)
	payerPriv, payer := newKey(t)
	_, provider := newKey(t)
	cs.Register(payer, 0).PlainBalances[NativeAsset] = 1_000
	cs.Register(provider, 0)

	createTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: payer, Fee: 1, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadCreateEscrow, CreateEscrow: &CreateEscrowPayload{
			TaskID: "job-3", Provider: provider, Amount: 200, Asset: NativeAsset,
			TimeoutBlocks: 100, ChallengeWindow: 5, OptimisticRelease: true,
		}},
	}
	if err := createTx.Sign(payerPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(createTx, 1); err != nil {
		t.Fatalf("create escrow: %v", err)
	}

	releaseTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: payer, Fee: 1, FeeType: FeeTOS, Nonce: 2,
		Payload: Payload{Kind: PayloadReleaseEscrow, ReleaseEscrow: &ReleaseEscrowPayload{
			TaskID: "job-3", Amount: 200,
		}},
	}
	if err := releaseTx.Sign(payerPriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(releaseTx, 2); err != nil {
		t.Fatalf("release escrow: %v", err)
	}
	if e, _ := cs.EscrowByTaskID("job-3"); e.Status != EscrowPendingRelease {
		t.Fatalf("expected pending release, got status %d", e.Status)
	}

	if err := cs.FinalizePendingRelease("job-3", 3); err == nil {
		t.Fatalf("expected rejection before the challenge window elapses")
	}
	if err := cs.FinalizePendingRelease("job-3", 10); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got := cs.accounts[provider].PlainBalances[NativeAsset]; got != 200 {
		t.Fatalf("provider balance = %d, want 200", got)
	}
}
