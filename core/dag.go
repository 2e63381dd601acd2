package core

// dag.go – the DAG engine of §4.2: tip tracking, topological height
// assignment, stable-height computation, and block assembly. Grounded on
// the teacher's core/ledger.go Blocks/blockIndex slice-plus-map idiom,
// generalised from the teacher's single-parent chain to a multi-tip DAG per
// §4.2's tip-set model; the single-writer/many-reader lock shape (§5) is
// carried over unchanged.

import (
	"encoding/binary"
	"sort"
	"sync"
)

// DAG owns every imported block, the current tip set, and the topoheight
// assignment. One DAG instance per node; the §5 "single-writer/many-reader"
// rule is enforced by dagMu.
type DAG struct {
	dagMu sync.RWMutex

	blocksByHash map[Hash]*blockRecord
	tips         map[Hash]struct{}
	topoOrder    []Hash // index = topoheight
	stableTopo   Topoheight

	pruneSafetyLimit uint64
	difficulty       map[Hash]uint64 // cumulative difficulty per block, miner-supplied in a real deployment

	storage *Storage
}

func NewDAG(pruneSafetyLimit uint64) *DAG {
	return &DAG{
		blocksByHash:     make(map[Hash]*blockRecord),
		tips:             make(map[Hash]struct{}),
		pruneSafetyLimit: pruneSafetyLimit,
		difficulty:       make(map[Hash]uint64),
	}
}

// SetStorage wires a Storage instance so every block the DAG accepts -
// genesis or imported - is also persisted there. Per §3, "the DAG
// exclusively owns the storage": nothing else in core writes block data.
func (d *DAG) SetStorage(s *Storage) {
	d.dagMu.Lock()
	defer d.dagMu.Unlock()
	d.storage = s
}

// persistLocked writes blk into the by-hash and by-topoheight families and
// refreshes the persisted tip set. A no-op when no Storage is wired, so the
// many tests that build a bare DAG are unaffected.
func (d *DAG) persistLocked(h Hash, blk *Block, topo Topoheight) {
	if d.storage == nil {
		return
	}
	enc, err := EncodeBlock(blk)
	if err != nil {
		d.logWarn(err)
		return
	}
	d.storage.PutVersioned(FamilyBlocksByHash, h[:], topo, enc)
	d.storage.PutVersioned(FamilyBlocksByTopoheight, topoheightKey(topo), topo, enc)
	tips := d.sortedTipsLocked()
	buf := make([]byte, 0, len(tips)*32)
	for _, t := range tips {
		buf = append(buf, t[:]...)
	}
	d.storage.PutVersioned(FamilyDAGTips, []byte("tips"), topo, buf)
}

func (d *DAG) logWarn(err error) {
	if d.storage != nil && d.storage.logger != nil {
		d.storage.logger.WithError(err).Warn("dag: failed to persist block")
	}
}

func topoheightKey(topo Topoheight) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, topo)
	return b
}

// Genesis seeds the DAG with its first block at topoheight 0.
func (d *DAG) Genesis(blk *Block) Hash {
	d.dagMu.Lock()
	defer d.dagMu.Unlock()
	h := blk.Hash()
	d.blocksByHash[h] = &blockRecord{block: blk, hash: h, topoheight: 0, stable: false}
	d.tips[h] = struct{}{}
	d.topoOrder = []Hash{h}
	d.difficulty[h] = 1
	d.persistLocked(h, blk, 0)
	return h
}

// Tips returns the current tip set sorted deterministically (cumulative
// difficulty desc, hash asc) per §4.2's tip-selection rule.
func (d *DAG) Tips() []Hash {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	return d.sortedTipsLocked()
}

func (d *DAG) sortedTipsLocked() []Hash {
	out := make([]Hash, 0, len(d.tips))
	for h := range d.tips {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := d.difficulty[out[i]], d.difficulty[out[j]]
		if di != dj {
			return di > dj
		}
		return less(out[i], out[j])
	})
	return out
}

// Height returns the height of the current tip set: 1 + max(height(tip)).
func (d *DAG) Height() uint64 {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	var max uint64
	for h := range d.tips {
		rec := d.blocksByHash[h]
		if rec.block.Header.Height > max {
			max = rec.block.Header.Height
		}
	}
	return max + 1
}

// Import appends blk to the DAG, assigning it the next topoheight. All of
// blk's declared tips must already be known blocks; otherwise the import is
// rejected as a DAG error (§4.3 precedence 19).
func (d *DAG) Import(blk *Block) (Topoheight, error) {
	d.dagMu.Lock()
	defer d.dagMu.Unlock()

	for _, parent := range blk.Header.Tips {
		if _, ok := d.blocksByHash[parent]; !ok {
			return 0, errDAG("block references an unknown parent tip")
		}
	}
	h := blk.Hash()
	if _, dup := d.blocksByHash[h]; dup {
		return 0, errDAG("block already imported")
	}

	topo := Topoheight(len(d.topoOrder))
	d.blocksByHash[h] = &blockRecord{block: blk, hash: h, topoheight: topo}
	d.topoOrder = append(d.topoOrder, h)

	var maxParentDiff uint64
	for _, parent := range blk.Header.Tips {
		delete(d.tips, parent)
		if pd := d.difficulty[parent]; pd > maxParentDiff {
			maxParentDiff = pd
		}
	}
	d.difficulty[h] = maxParentDiff + 1
	d.tips[h] = struct{}{}

	d.recomputeStableLocked()
	d.persistLocked(h, blk, topo)
	return topo, nil
}

// recomputeStableLocked advances stableTopo while the block at the next
// topoheight satisfies §4.2's stability predicate: current_height - h ≥
// PRUNE_SAFETY_LIMIT and it is reachable from every current tip. Since this
// DAG keeps a single linear topoOrder (every import extends it, no reorg
// support), reachability from every tip reduces to "still on topoOrder",
// which always holds for an already-ordered block; the height margin is
// therefore the only real gate.
func (d *DAG) recomputeStableLocked() {
	currentHeight := d.maxTipHeightLocked()
	for {
		next := d.stableTopo + 1
		if int(next) >= len(d.topoOrder) {
			break
		}
		rec := d.blocksByHash[d.topoOrder[next]]
		if currentHeight < rec.block.Header.Height+d.pruneSafetyLimit {
			break
		}
		rec.stable = true
		d.stableTopo = next
	}
}

func (d *DAG) maxTipHeightLocked() uint64 {
	var max uint64
	for h := range d.tips {
		if hh := d.blocksByHash[h].block.Header.Height; hh > max {
			max = hh
		}
	}
	return max
}

// StableTopoheight returns the largest topoheight considered finalized for
// bootstrap purposes.
func (d *DAG) StableTopoheight() Topoheight {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	return d.stableTopo
}

// BlockAt returns the block assigned to topo, if any.
func (d *DAG) BlockAt(topo Topoheight) (*Block, bool) {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	if int(topo) >= len(d.topoOrder) {
		return nil, false
	}
	return d.blocksByHash[d.topoOrder[topo]].block, true
}

// ByHash returns the block with the given hash, if known.
func (d *DAG) ByHash(h Hash) (*Block, Topoheight, bool) {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	rec, ok := d.blocksByHash[h]
	if !ok {
		return nil, 0, false
	}
	return rec.block, rec.topoheight, true
}

// ReferenceKnown reports whether ref names a block this DAG has actually
// imported at exactly the topoheight the reference claims (§3: a reference
// anchors a transaction to "a block the submitter claims to know").
func (d *DAG) ReferenceKnown(ref Reference) bool {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	rec, ok := d.blocksByHash[ref.Hash]
	return ok && rec.topoheight == ref.Topoheight
}

// ReferenceInStableBranch additionally requires the referenced block to have
// already settled into the stable branch (§4.2 block assembly: "filter those
// whose references are still in the stable branch"), so a miner never builds
// on a transaction anchored to a block that could still be reorganized away.
func (d *DAG) ReferenceInStableBranch(ref Reference) bool {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()
	rec, ok := d.blocksByHash[ref.Hash]
	if !ok || rec.topoheight != ref.Topoheight {
		return false
	}
	return ref.Topoheight <= d.stableTopo
}

// StableBranchFilter returns a predicate suitable for Mempool.SelectForBlock
// that keeps only transactions whose Reference is still in the stable
// branch.
func (d *DAG) StableBranchFilter() func(*Transaction) bool {
	return func(tx *Transaction) bool {
		return d.ReferenceInStableBranch(tx.Reference)
	}
}

// AssembleHeader builds a new block header over the current tip set for
// miner, per §4.2's "timestamp = max(now, max(parent.timestamp))" rule. The
// caller fills in TxHashes/ExtraNonce/VRF and signs separately.
func (d *DAG) AssembleHeader(miner PubKey, nowMs uint64) BlockHeader {
	d.dagMu.RLock()
	defer d.dagMu.RUnlock()

	tips := d.sortedTipsLocked()
	ts := nowMs
	var height uint64
	for _, h := range tips {
		rec := d.blocksByHash[h]
		if rec.block.Header.TimestampMs > ts {
			ts = rec.block.Header.TimestampMs
		}
		if rec.block.Header.Height >= height {
			height = rec.block.Header.Height + 1
		}
	}
	return BlockHeader{
		Version:     1,
		Height:      height,
		TimestampMs: ts,
		Tips:        tips,
		Miner:       miner,
	}
}
