package core

// scheduler.go – the scheduled-execution priority queue of §4.4: register,
// cancel, and per-topoheight execution walk, including the bounded-retry
// deferral semantics already carried by ScheduledExecution.defer_ in
// types.go. Grounded on the teacher's core/ai_mining.go priority-queue
// idiom (a map keyed by the trigger point, sorted on demand rather than
// kept as a heap, since the queue only needs ordering at execution time).

import "sort"

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		queue:   make(map[Topoheight][]*ScheduledExecution),
		byHash:  make(map[Hash]*ScheduledExecution),
		results: make(map[Hash]ExecutionResult),
		cfg:     cfg,
	}
}

// Register enqueues a validated ScheduleExecution payload. The caller
// (ChainState.Apply, via applyScheduleEconomics) has already staged the
// offer/burn economics; Register only owns queue placement.
func (s *Scheduler) Register(exec *ScheduledExecution, current Topoheight) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := exec.Kind.TopoHeight
	if !exec.Kind.IsBlockEnd {
		if target <= current {
			return errInvalidFormat("scheduled target must be above the current topoheight")
		}
		if target-current > s.cfg.MaxSchedulingHorizon {
			return errInvalidFormat("scheduled target exceeds the maximum scheduling horizon")
		}
	}
	if _, exists := s.byHash[exec.Hash]; exists {
		return errAlreadyExists("scheduled execution hash already queued")
	}
	if _, done := s.results[exec.Hash]; done {
		return errAlreadyExists("scheduled execution hash already completed")
	}
	exec.Status = ExecPending
	exec.RegistrationTopoheight = current
	s.queue[target] = append(s.queue[target], exec)
	s.byHash[exec.Hash] = exec
	return nil
}

// Cancel removes a pending execution, refunding 70% of its offer to the
// scheduler contract's address and permanently burning the remaining 30%
// (already burned at registration time; Cancel only returns the refundable
// share via the returned amount, leaving the caller to apply it as a
// balance credit since Scheduler itself holds no ledger reference).
func (s *Scheduler) Cancel(hash Hash, current Topoheight) (refund PubKey, amount uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exec, ok := s.byHash[hash]
	if !ok {
		return PubKey{}, 0, errRecordNotFound("no pending scheduled execution with this hash")
	}
	if exec.Status != ExecPending {
		return PubKey{}, 0, errInvalidPayload("scheduled execution is no longer pending")
	}
	if current >= exec.RegistrationTopoheight+s.cfg.MinimumCancellationWindow {
		return PubKey{}, 0, errInvalidPayload("cancellation window has elapsed")
	}
	exec.Status = ExecCancelled
	s.results[hash] = ExecutionResult{Status: ExecCancelled, Topoheight: current}
	s.removeFromQueue(exec)
	delete(s.byHash, hash)
	return exec.SchedulerContract, exec.OfferAmount * 70 / 100, nil
}

func (s *Scheduler) removeFromQueue(exec *ScheduledExecution) {
	for topo, list := range s.queue {
		for i, e := range list {
			if e == exec {
				s.queue[topo] = append(list[:i], list[i+1:]...)
				if len(s.queue[topo]) == 0 {
					delete(s.queue, topo)
				}
				return
			}
		}
	}
}

// ExecutionOutcome is one entry's result from a single ExecuteAt walk, used
// by the caller to credit the miner and persist the execution receipt.
type ExecutionOutcome struct {
	Exec       *ScheduledExecution
	MinerShare uint64
}

// ExecuteAt runs the §4.4 "Execute at topoheight T" algorithm: sort the
// bucket by (offer desc, registration_topo asc, hash asc), walk it against
// the per-block count/gas budget, and defer or expire whatever doesn't fit.
func (s *Scheduler) ExecuteAt(topo Topoheight) []ExecutionOutcome {
	s.mu.Lock()
	bucket := s.queue[topo]
	delete(s.queue, topo)
	s.mu.Unlock()

	sort.Slice(bucket, func(i, j int) bool {
		if bucket[i].OfferAmount != bucket[j].OfferAmount {
			return bucket[i].OfferAmount > bucket[j].OfferAmount
		}
		if bucket[i].RegistrationTopoheight != bucket[j].RegistrationTopoheight {
			return bucket[i].RegistrationTopoheight < bucket[j].RegistrationTopoheight
		}
		return less(bucket[i].Hash, bucket[j].Hash)
	})

	var outcomes []ExecutionOutcome
	var executed int
	var gasUsed uint64

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, exec := range bucket {
		budget := exec.MaxGas
		if budget > s.cfg.MaxScheduledExecutionGasPerBlock {
			budget = s.cfg.MaxScheduledExecutionGasPerBlock
		}
		fits := executed < s.cfg.MaxScheduledExecutionsPerBlock &&
			gasUsed+budget <= s.cfg.MaxScheduledExecutionGasPerBlock
		if !fits {
			if exec.defer_() {
				exec.Status = ExecExpired
				s.results[exec.Hash] = ExecutionResult{Status: ExecExpired, Topoheight: topo}
				delete(s.byHash, exec.Hash)
			} else {
				s.queue[topo+1] = append(s.queue[topo+1], exec)
			}
			continue
		}
		executed++
		gasUsed += budget
		exec.Status = ExecExecuted
		s.results[exec.Hash] = ExecutionResult{Status: ExecExecuted, Topoheight: topo}
		delete(s.byHash, exec.Hash)
		var share uint64
		if exec.OfferAmount > 0 {
			share = exec.OfferAmount * 70 / 100
		}
		outcomes = append(outcomes, ExecutionOutcome{Exec: exec, MinerShare: share})
	}
	return outcomes
}

// Result returns the durable outcome of a completed or cancelled execution.
func (s *Scheduler) Result(hash Hash) (ExecutionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[hash]
	return r, ok
}

func less(a, b Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
