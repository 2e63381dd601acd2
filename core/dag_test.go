package core

import "testing"

func TestDAGGenesisAndImport(t *testing.T) {
	d := NewDAG(8)
	genesis := &Block{Header: BlockHeader{Version: 1, Height: 0}}
	gh := d.Genesis(genesis)

	child := &Block{Header: BlockHeader{Version: 1, Height: 1, Tips: []Hash{gh}}}
	topo, err := d.Import(child)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if topo != 1 {
		t.Fatalf("topo = %d, want 1", topo)
	}
	tips := d.Tips()
	if len(tips) != 1 || tips[0] != child.Hash() {
		t.Fatalf("expected child to be the sole tip, got %v", tips)
	}
}

func TestDAGImportRejectsUnknownParent(t *testing.T) {
	d := NewDAG(8)
	d.Genesis(&Block{Header: BlockHeader{Version: 1, Height: 0}})

	orphan := &Block{Header: BlockHeader{Version: 1, Height: 5, Tips: []Hash{{0xFF}}}}
	if _, err := d.Import(orphan); err == nil {
		t.Fatalf("expected rejection of a block with an unknown parent tip")
	} else if ce, ok := err.(*CodedError); !ok || ce.Code != CodeDAGError {
		t.Fatalf("expected DAG_ERROR, got %v", err)
	}
}

func TestDAGStableHeightAdvancesWithDepth(t *testing.T) {
	d := NewDAG(2)
	gh := d.Genesis(&Block{Header: BlockHeader{Version: 1, Height: 0}})

	prev := gh
	for h := uint64(1); h <= 4; h++ {
		blk := &Block{Header: BlockHeader{Version: 1, Height: h, Tips: []Hash{prev}, ExtraNonce: [32]byte{byte(h)}}}
		if _, err := d.Import(blk); err != nil {
			t.Fatalf("import height %d: %v", h, err)
		}
		prev = blk.Hash()
	}
	if got := d.StableTopoheight(); got == 0 {
		t.Fatalf("expected stable topoheight to advance past genesis, got %d", got)
	}
}

func TestDAGAssembleHeaderUsesMaxParentTimestamp(t *testing.T) {
	d := NewDAG(8)
	d.Genesis(&Block{Header: BlockHeader{Version: 1, Height: 0, TimestampMs: 5000}})

	var miner PubKey
	miner[0] = 7
	h := d.AssembleHeader(miner, 1000) // now < parent timestamp
	if h.TimestampMs != 5000 {
		t.Fatalf("timestamp = %d, want 5000 (max of now and parent)", h.TimestampMs)
	}
	if h.Height != 1 {
		t.Fatalf("height = %d, want 1", h.Height)
	}
}
