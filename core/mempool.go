package core

// mempool.go – the per-sender nonce-ordered pending pool of §4.5. Grounded
// on the teacher's core/txpool_addtx.go / core/txpool_snapshot.go pair: a
// lock-guarded sender map plus a flat hash index, eviction driven by a
// linear scan over the flat index rather than a heap (the teacher's pool
// does the same, favouring simplicity over log-n eviction since pools stay
// small relative to block capacity).

import "sort"

func NewMempool(maxSize int) *Mempool {
	return &Mempool{
		bySender: make(map[PubKey]map[uint64]*Transaction),
		byHash:   make(map[Hash]*Transaction),
		maxSize:  maxSize,
	}
}

// Add inserts tx after verifying batch-aware nonce discipline: the only
// acceptable nonce is max(S(A), last_pending_nonce(A)) + 1. storedNonce is
// the sender's last committed nonce (0 if unregistered).
func (m *Mempool) Add(tx *Transaction, storedNonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := tx.HashTx()
	if _, dup := m.byHash[h]; dup {
		return errAlreadyExists("transaction already in mempool")
	}

	pending := m.bySender[tx.Source]
	expected := storedNonce
	for n := range pending {
		if n > expected {
			expected = n
		}
	}
	expected++
	if tx.Nonce < expected {
		return errNonceTooLow("nonce already pending or committed")
	}
	if tx.Nonce > expected {
		return errNonceTooHigh("nonce leaves a gap ahead of the pending sequence")
	}

	if m.maxSize > 0 && len(m.byHash) >= m.maxSize {
		if !m.evictOneFor(tx) {
			return errInvalidFormat("mempool full and incoming transaction does not outrank any entry")
		}
	}

	if pending == nil {
		pending = make(map[uint64]*Transaction)
		m.bySender[tx.Source] = pending
	}
	pending[tx.Nonce] = tx
	m.byHash[h] = tx
	return nil
}

// evictOneFor drops the pool's lowest-fee entry (tiebreak: largest nonce)
// if it ranks below the incoming transaction, making room for it. Returns
// false if nothing in the pool is worse than the incoming transaction.
func (m *Mempool) evictOneFor(incoming *Transaction) bool {
	var worst *Transaction
	for _, tx := range m.byHash {
		if worst == nil || tx.Fee < worst.Fee || (tx.Fee == worst.Fee && tx.Nonce > worst.Nonce) {
			worst = tx
		}
	}
	if worst == nil || worst.Fee > incoming.Fee || (worst.Fee == incoming.Fee && worst.Nonce <= incoming.Nonce) {
		return false
	}
	delete(m.byHash, worst.HashTx())
	delete(m.bySender[worst.Source], worst.Nonce)
	if len(m.bySender[worst.Source]) == 0 {
		delete(m.bySender, worst.Source)
	}
	return true
}

// RemoveIncluded drops every transaction a just-mined block included.
func (m *Mempool) RemoveIncluded(txs []*Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		h := tx.HashTx()
		delete(m.byHash, h)
		if pending, ok := m.bySender[tx.Source]; ok {
			delete(pending, tx.Nonce)
			if len(pending) == 0 {
				delete(m.bySender, tx.Source)
			}
		}
	}
}

// Revalidate drops every pooled transaction that no longer clears isValid
// against the post-block chain state; called once per new block (§4.5).
func (m *Mempool) Revalidate(isValid func(*Transaction) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, tx := range m.byHash {
		if !isValid(tx) {
			delete(m.byHash, h)
			if pending, ok := m.bySender[tx.Source]; ok {
				delete(pending, tx.Nonce)
				if len(pending) == 0 {
					delete(m.bySender, tx.Source)
				}
			}
		}
	}
}

// SelectForBlock returns up to n pending transactions ordered by (fee desc,
// nonce asc, hash asc) per §4.2's block-assembly rule. An optional accept
// predicate (DAG.StableBranchFilter in a real node) filters candidates
// before ranking and truncation, so a miner never assembles a block out of
// transactions whose reference has fallen out of the stable branch.
func (m *Mempool) SelectForBlock(n int, accept ...func(*Transaction) bool) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var filter func(*Transaction) bool
	if len(accept) > 0 {
		filter = accept[0]
	}

	all := make([]*Transaction, 0, len(m.byHash))
	for _, tx := range m.byHash {
		if filter != nil && !filter(tx) {
			continue
		}
		all = append(all, tx)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Fee != all[j].Fee {
			return all[i].Fee > all[j].Fee
		}
		if all[i].Nonce != all[j].Nonce {
			return all[i].Nonce < all[j].Nonce
		}
		return less(all[i].HashTx(), all[j].HashTx())
	})
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// Len reports the number of pooled transactions.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byHash)
}
