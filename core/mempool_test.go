package core

import "testing"

func makeTx(src PubKey, nonce, fee uint64) *Transaction {
	tx := &Transaction{
		Version: TxV0, ChainID: 1, Source: src, Nonce: nonce, Fee: fee, FeeType: FeeTOS,
		Payload: Payload{Kind: PayloadBurn, Burn: &BurnPayload{Asset: NativeAsset, Amount: 1}},
	}
	return tx
}

func TestMempoolSequentialBatchAccepted(t *testing.T) {
	m := NewMempool(10)
	var alice PubKey
	alice[0] = 1

	for _, n := range []uint64{1, 2, 3} {
		tx := makeTx(alice, n, 100)
		if err := m.Add(tx, 0); err != nil {
			t.Fatalf("add nonce %d: %v", n, err)
		}
	}
	if m.Len() != 3 {
		t.Fatalf("len = %d, want 3", m.Len())
	}
}

func TestMempoolNonceGapRejected(t *testing.T) {
	m := NewMempool(10)
	var alice PubKey
	alice[0] = 2

	if err := m.Add(makeTx(alice, 3, 100), 0); err == nil {
		t.Fatalf("expected nonce-too-high rejection")
	} else if ce, ok := err.(*CodedError); !ok || ce.Code != CodeNonceTooHigh {
		t.Fatalf("expected NONCE_TOO_HIGH, got %v", err)
	}
}

func TestMempoolDuplicateRejected(t *testing.T) {
	m := NewMempool(10)
	var alice PubKey
	alice[0] = 3
	tx := makeTx(alice, 1, 100)
	if err := m.Add(tx, 0); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := m.Add(tx, 0); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}

func TestMempoolEvictsLowestFee(t *testing.T) {
	m := NewMempool(2)
	var a, b, c PubKey
	a[0], b[0], c[0] = 1, 2, 3

	if err := m.Add(makeTx(a, 1, 10), 0); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := m.Add(makeTx(b, 1, 20), 0); err != nil {
		t.Fatalf("add b: %v", err)
	}
	// pool full at 2; c's higher fee should evict a (lowest fee).
	if err := m.Add(makeTx(c, 1, 30), 0); err != nil {
		t.Fatalf("add c: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d, want 2", m.Len())
	}
	if _, ok := m.bySender[a]; ok {
		t.Fatalf("expected a's transaction to be evicted")
	}
}

func TestMempoolSelectForBlockOrdersByFeeDesc(t *testing.T) {
	m := NewMempool(10)
	var a, b PubKey
	a[0], b[0] = 1, 2
	_ = m.Add(makeTx(a, 1, 10), 0)
	_ = m.Add(makeTx(b, 1, 50), 0)

	sel := m.SelectForBlock(10)
	if len(sel) != 2 || sel[0].Fee != 50 {
		t.Fatalf("expected fee-desc order, got %+v", sel)
	}
}

func TestMempoolSelectForBlockAppliesStableBranchFilter(t *testing.T) {
	m := NewMempool(10)
	dag := NewDAG(8)
	genesisHash := dag.Genesis(&Block{Header: BlockHeader{Version: 1, Height: 0, TimestampMs: 1000}})

	var a, b PubKey
	a[0], b[0] = 1, 2

	fresh := makeTx(a, 1, 10)
	fresh.Reference = Reference{Hash: genesisHash, Topoheight: 0}

	var unknownHash Hash
	unknownHash[0] = 0xFF
	stale := makeTx(b, 1, 50)
	stale.Reference = Reference{Hash: unknownHash, Topoheight: 0}

	if err := m.Add(fresh, 0); err != nil {
		t.Fatalf("add fresh: %v", err)
	}
	if err := m.Add(stale, 0); err != nil {
		t.Fatalf("add stale: %v", err)
	}

	sel := m.SelectForBlock(10, dag.StableBranchFilter())
	if len(sel) != 1 || sel[0].Source != a {
		t.Fatalf("expected only the known-reference transaction to survive the stable-branch filter, got %+v", sel)
	}
}
