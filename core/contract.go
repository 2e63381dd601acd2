package core

// contract.go – the ContractDispatcher boundary of §1 ("VM internals are
// out of scope"): InvokeContract payloads call through this interface, gas
// accounting and entry dispatch belong to a real VM on the other side. The
// shape mirrors the teacher's core/vm_sandbox_management.go adapter: an
// interface the ledger holds by value, with a no-op default so the package
// is self-contained without a VM wired in.

// ContractDispatcher executes one contract entry point and reports how much
// gas it actually consumed (≤ maxGas) and whether it succeeded. A failed
// invocation still consumes gas up to the point of failure; it never
// aborts the enclosing transaction, matching §4.3's "gas refund computed by
// VM and returned to sender" wording (a reverted call is a contract-level
// outcome, not a verifier-level rejection).
type ContractDispatcher interface {
	Invoke(contract *deployedContract, entryID uint32, params []byte, maxGas uint64) (gasUsed uint64, success bool)
}

// noopDispatcher is the default ContractDispatcher: it accepts the call,
// consumes no gas, and reports success. Real deployments call SetDispatcher
// with a VM-backed implementation.
type noopDispatcher struct{}

func (noopDispatcher) Invoke(_ *deployedContract, _ uint32, _ []byte, _ uint64) (uint64, bool) {
	return 0, true
}
