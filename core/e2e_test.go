package core

// e2e_test.go exercises the testable properties of §8 end to end: several
// components wired together the way a node actually drives them, rather than
// one unit at a time. Grounded on the teacher's integration-style tests that
// drive ledger+txpool+mining together rather than mocking the ledger out.

import (
	"testing"
	"time"
)

func TestEndToEndMultiBlockTransferSequence(t *testing.T) {
	cs := newTestChainState(t)
	dag := NewDAG(8)
	mp := NewMempool(16)

	alicePriv, alice := newKey(t)
	_, bob := newKey(t)
	cs.Register(alice, 0).PlainBalances[NativeAsset] = 1_000 * cs.coinValue
	cs.Register(bob, 0)

	genesis := &Block{Header: BlockHeader{Version: 1, Height: 0, TimestampMs: 1000}}
	dag.Genesis(genesis)

	tx1 := signedTransfer(t, alicePriv, alice, 1, bob, 100*cs.coinValue, 1000)
	tx2 := signedTransfer(t, alicePriv, alice, 2, bob, 50*cs.coinValue, 1000)

	if err := mp.Add(tx1, 0); err != nil {
		t.Fatalf("add tx1: %v", err)
	}
	if err := mp.Add(tx2, 0); err != nil {
		t.Fatalf("add tx2: %v", err)
	}
	if mp.Len() != 2 {
		t.Fatalf("mempool len = %d, want 2", mp.Len())
	}

	selected := mp.SelectForBlock(10)
	if len(selected) != 2 {
		t.Fatalf("selected = %d, want 2", len(selected))
	}
	for i, tx := range selected {
		topo, err := dag.Import(&Block{Header: BlockHeader{
			Version: 1, Height: uint64(i + 1), TimestampMs: 1000 + uint64(i+1),
			Tips: dag.Tips(),
		}, Txs: []*Transaction{tx}})
		if err != nil {
			t.Fatalf("import block %d: %v", i, err)
		}
		if err := cs.Apply(tx, topo); err != nil {
			t.Fatalf("apply tx %d at topo %d: %v", i, topo, err)
		}
	}
	mp.RemoveIncluded(selected)
	if mp.Len() != 0 {
		t.Fatalf("expected mempool drained, got %d", mp.Len())
	}

	wantAlice := 1_000*cs.coinValue - 150*cs.coinValue - 2000
	if got := cs.accounts[alice].PlainBalances[NativeAsset]; got != wantAlice {
		t.Fatalf("alice balance = %d, want %d", got, wantAlice)
	}
	if got := cs.accounts[bob].PlainBalances[NativeAsset]; got != 150*cs.coinValue {
		t.Fatalf("bob balance = %d, want %d", got, 150*cs.coinValue)
	}
	if cs.accounts[alice].Nonce != 2 {
		t.Fatalf("alice nonce = %d, want 2", cs.accounts[alice].Nonce)
	}
}

func TestEndToEndUnregisteredRecipientEnergyFeeAccepted(t *testing.T) {
	cs := newTestChainState(t)
	alicePriv, alice := newKey(t)
	var bob PubKey
	bob[0] = 0x99

	cs.Register(alice, 0).PlainBalances[NativeAsset] = 1_000 * cs.coinValue

	tx := &Transaction{
		Version: TxV0, ChainID: 1, Source: alice, FeeType: FeeEnergy, Fee: 0, Nonce: 1,
		Payload: Payload{Kind: PayloadTransfers, Transfers: &TransfersPayload{
			Plain: []Transfer{{Asset: NativeAsset, Destination: bob, Amount: 10}},
		}},
	}
	if err := tx.Sign(alicePriv); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := cs.Apply(tx, 1); err != nil {
		t.Fatalf("energy-fee transfer to a new account should be accepted (energy is a valid fee type for transfers): %v", err)
	}
	if _, ok := cs.accounts[bob]; !ok {
		t.Fatalf("expected bob registered")
	}
}

func TestEndToEndScheduledExecutionPriorityAndMinerShare(t *testing.T) {
	sched := NewScheduler(SchedulerConfig{
		MaxSchedulingHorizon:             1000,
		MaxScheduledExecutionsPerBlock:   1,
		MaxScheduledExecutionGasPerBlock: 1000,
		MinimumCancellationWindow:        5,
	})
	low := &ScheduledExecution{Hash: Hash{1}, MaxGas: 100, OfferAmount: 10, Kind: ScheduleKind{TopoHeight: 50}}
	high := &ScheduledExecution{Hash: Hash{2}, MaxGas: 100, OfferAmount: 90, Kind: ScheduleKind{TopoHeight: 50}}
	if err := sched.Register(low, 10); err != nil {
		t.Fatalf("register low: %v", err)
	}
	if err := sched.Register(high, 10); err != nil {
		t.Fatalf("register high: %v", err)
	}

	outcomes := sched.ExecuteAt(50)
	if len(outcomes) != 1 {
		t.Fatalf("expected exactly one execution within budget, got %d", len(outcomes))
	}
	if outcomes[0].Exec.Hash != high.Hash {
		t.Fatalf("expected the higher offer to execute first")
	}
	if outcomes[0].MinerShare != 63 {
		t.Fatalf("miner share = %d, want 63 (90*70/100)", outcomes[0].MinerShare)
	}

	deferred := sched.ExecuteAt(51)
	if len(deferred) != 1 || deferred[0].Exec.Hash != low.Hash {
		t.Fatalf("expected the deferred low-offer execution to run at T+1")
	}
}

func TestEndToEndBootstrapPositionalMatchingAcrossSteps(t *testing.T) {
	cs := newTestChainState(t)
	_, alice := newKey(t)
	_, bob := newKey(t)
	cs.Register(alice, 0).PlainBalances[NativeAsset] = 500
	cs.Register(bob, 0).PlainBalances[NativeAsset] = 700

	var stranger PubKey
	stranger[0] = 0xAB

	lookup := func(k PubKey) (uint64, bool) {
		a, ok := cs.accounts[k]
		if !ok {
			return 0, false
		}
		return a.PlainBalances[NativeAsset], true
	}
	out := PositionalLookup([]PubKey{alice, stranger, bob}, lookup)
	if out[0] == nil || *out[0] != 500 {
		t.Fatalf("expected alice -> 500")
	}
	if out[1] != nil {
		t.Fatalf("expected stranger -> nil (miss)")
	}
	if out[2] == nil || *out[2] != 700 {
		t.Fatalf("expected bob -> 700")
	}

	cur := StepChainInfo
	seen := map[BootstrapStep]bool{cur: true}
	for {
		next, ok := NextStep(cur)
		if !ok {
			break
		}
		seen[next] = true
		cur = next
	}
	for _, want := range []BootstrapStep{StepAccounts, StepTnsNames, StepEnergyData, StepBlocksMetadata} {
		if !seen[want] {
			t.Fatalf("expected bootstrap walk to visit step %d", want)
		}
	}
}

func TestEndToEndEscrowDisputeResolvedByArbitration(t *testing.T) {
	cs := newTestChainState(t)
	ac := NewArbitrationCoordinator()
	payerPriv, payer := newKey(t)
	_, provider := newKey(t)
	jurorPriv, juror := newKey(t)

	cs.Register(payer, 0).PlainBalances[NativeAsset] = 1_000
	cs.Register(provider, 0)

	committee := &Committee{ID: Hash{7}, Members: map[PubKey]CommitteeRole{juror: RoleMember}, Threshold: 1}

	createTx := &Transaction{
		Version: TxV0, ChainID: 1, Source: payer, Fee: 1, FeeType: FeeTOS, Nonce: 1,
		Payload: Payload{Kind: PayloadCreateEscrow, CreateEscrow: &CreateEscrowPayload{
			TaskID: "job-e2e", Provider: provider, Amount: 400, Asset: NativeAsset,
			TimeoutBlocks: 100, ChallengeWindow: 10,
			ArbitrationConfig: &ArbitrationConfig{CommitteeID: committee.ID, MaxAppeals: 1},
		}},
	}
	if err := createTx.Sign(payerPriv); err != nil {
		t.Fatalf("sign create: %v", err)
	}
	if err := cs.Apply(createTx, 1); err != nil {
		t.Fatalf("create escrow: %v", err)
	}

	if err := cs.Challenge("job-e2e", payer, 2); err != nil {
		t.Fatalf("challenge: %v", err)
	}

	escrow, _ := cs.EscrowByTaskID("job-e2e")
	evidence := hashDomain("evidence", []byte("nondelivery"))
	msg, err := CanonicalHash(escrow.TaskID, committee.ID, evidence, payer)
	if err != nil {
		t.Fatalf("canonical hash: %v", err)
	}
	sig, err := signDigest(payerPriv, msg)
	if err != nil {
		t.Fatalf("sign dispute open: %v", err)
	}
	dispute, err := ac.Open(escrow, committee.ID, evidence, payer, sig)
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if _, err := ac.RequestVote(committee, dispute.ID, 1, Hash{3}, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("request vote: %v", err)
	}
	req := requestHash(dispute)
	jurorSig, err := signDigest(jurorPriv, req)
	if err != nil {
		t.Fatalf("sign vote: %v", err)
	}
	if err := ac.Vote(dispute.ID, juror, VotePay, jurorSig); err != nil {
		t.Fatalf("vote: %v", err)
	}
	verdict, err := ac.Tally(dispute.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if verdict != VotePay {
		t.Fatalf("expected unanimous VotePay, got %v", verdict)
	}

	if err := cs.ResolveByVerdict("job-e2e", 400, 0, 3); err != nil {
		t.Fatalf("resolve by verdict: %v", err)
	}
	if got := cs.accounts[provider].PlainBalances[NativeAsset]; got != 400 {
		t.Fatalf("provider balance = %d, want 400", got)
	}
	if e, _ := cs.EscrowByTaskID("job-e2e"); e.Status != EscrowResolved {
		t.Fatalf("expected resolved escrow, got status %d", e.Status)
	}
}
